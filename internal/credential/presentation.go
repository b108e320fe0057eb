// ABOUTME: Presentation-form gate: POST {base}/vps/verify {"vp": ...}
// ABOUTME: Used at handshake for the agent VP and, by default, for per-tool VPs

package credential

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

type presentationRequest struct {
	VP json.RawMessage `json:"vp"`
}

type presentationResponse struct {
	Valid       *bool    `json:"valid"`
	Permissions []string `json:"permissions"`
	Error       string   `json:"error"`
}

// PresentationClient verifies presentations against the oracle's /vps/verify
// endpoint.
type PresentationClient struct {
	endpoint string
	oracle   oracle
}

// NewPresentationClient creates a client for baseURL (the /vps/verify path is
// appended).
func NewPresentationClient(baseURL string, timeout time.Duration) *PresentationClient {
	return &PresentationClient{
		endpoint: strings.TrimRight(baseURL, "/") + "/vps/verify",
		oracle:   newOracle(timeout),
	}
}

// Verify implements Gate. Permissions are copied from the oracle when valid.
func (c *PresentationClient) Verify(ctx context.Context, vp json.RawMessage) Verdict {
	if Missing(vp) {
		return denied("Verifiable Presentation is required")
	}

	var resp presentationResponse
	if reason := c.oracle.post(ctx, c.endpoint, presentationRequest{VP: vp}, &resp); reason != "" {
		return denied(reason)
	}

	if resp.Valid == nil {
		return denied("VP verification returned a malformed response: missing \"valid\"")
	}
	if !*resp.Valid {
		reason := resp.Error
		if reason == "" {
			reason = "Unknown error"
		}
		return denied(reason)
	}

	return Verdict{Valid: true, Permissions: resp.Permissions}
}
