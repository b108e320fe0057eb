// ABOUTME: Token-form gate: POST {endpoint} {"vp_token": ...}
// ABOUTME: Accepts only an explicit verified=true answer from the oracle

package credential

import (
	"context"
	"encoding/json"
	"time"
)

type tokenRequest struct {
	VPToken json.RawMessage `json:"vp_token"`
}

type tokenResponse struct {
	Verified *bool  `json:"verified"`
	Reason   string `json:"reason"`
}

// TokenClient verifies presentations in the vp_token form.
type TokenClient struct {
	endpoint string
	oracle   oracle
}

// NewTokenClient creates a client that posts to endpoint unchanged.
func NewTokenClient(endpoint string, timeout time.Duration) *TokenClient {
	return &TokenClient{endpoint: endpoint, oracle: newOracle(timeout)}
}

// Verify implements Gate.
func (c *TokenClient) Verify(ctx context.Context, vp json.RawMessage) Verdict {
	if Missing(vp) {
		return denied("Verifiable Presentation is required")
	}

	var resp tokenResponse
	if reason := c.oracle.post(ctx, c.endpoint, tokenRequest{VPToken: vp}, &resp); reason != "" {
		return denied(reason)
	}

	if resp.Verified == nil {
		return denied("VP verification returned a malformed response: missing \"verified\"")
	}
	if !*resp.Verified {
		reason := resp.Reason
		if reason == "" {
			reason = "VP not verified"
		}
		return denied(reason)
	}
	return Verdict{Valid: true}
}
