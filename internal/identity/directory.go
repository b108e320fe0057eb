// ABOUTME: HTTP client for the trusted identity directory
// ABOUTME: Resolves a DID to its registered public key via GET {base}/users/{did}

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUserNotFound is returned when the directory has no record for a DID.
var ErrUserNotFound = errors.New("user not found")

// DirectoryUser is a directory record.
type DirectoryUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
}

// Directory resolves DIDs to registered users.
type Directory interface {
	LookupUser(ctx context.Context, did string) (*DirectoryUser, error)
}

// HTTPDirectory is a Directory backed by the identity service REST API.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory creates a directory client. The timeout bounds each lookup.
func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// LookupUser fetches the directory record for did. Any non-200 status is
// reported as ErrUserNotFound.
func (d *HTTPDirectory) LookupUser(ctx context.Context, did string) (*DirectoryUser, error) {
	endpoint := d.baseURL + "/users/" + url.PathEscape(did)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building directory request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrUserNotFound
	}

	var user DirectoryUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decoding directory response: %w", err)
	}
	return &user, nil
}
