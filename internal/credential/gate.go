// ABOUTME: CredentialGate contract and the shared oracle transport
// ABOUTME: Every transport or protocol failure becomes an invalid Verdict with a specific reason

package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// maxResponseBytes bounds how much of an oracle response is read.
const maxResponseBytes = 1 << 20

// Verdict is the oracle's answer for one presentation. Valid is false for
// every failure, with Reason describing it.
type Verdict struct {
	Valid       bool
	Reason      string
	Permissions []string
}

// Gate asks an external oracle whether a presentation is valid.
// Implementations hold no per-call state and are safe for concurrent use.
type Gate interface {
	Verify(ctx context.Context, vp json.RawMessage) Verdict
}

// Missing reports whether a presentation is absent: empty, whitespace, JSON
// null, or an empty string.
func Missing(vp json.RawMessage) bool {
	trimmed := bytes.TrimSpace(vp)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`))
}

func denied(reason string) Verdict {
	return Verdict{Valid: false, Reason: reason}
}

// oracle is the HTTP transport shared by both gate forms.
type oracle struct {
	client *http.Client
}

func newOracle(timeout time.Duration) oracle {
	return oracle{client: &http.Client{Timeout: timeout}}
}

// post sends body as JSON and decodes a 2xx response into out. The returned
// string is empty on success and a denial reason otherwise.
func (o oracle) post(ctx context.Context, endpoint string, body, out any) string {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf("VP verification error: encoding request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Sprintf("VP verification error: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return transportReason(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportReason(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Sprintf("VP verification failed with HTTP %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Sprintf("VP verification returned a malformed response: %v", err)
	}
	return ""
}

func transportReason(err error) string {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "VP verification service unavailable (connection refused)"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "VP verification service timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "VP verification service timed out"
	}
	return fmt.Sprintf("VP verification error: %v", err)
}
