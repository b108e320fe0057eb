// ABOUTME: Signature verification for session handshakes
// ABOUTME: Resolves keys from the directory or inline, verifies, and enforces single use

package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/2389/helix-gateway/internal/dedupe"
)

const (
	// ReplayWindow is how long a used signature stays claimed.
	ReplayWindow = 10 * time.Minute

	// ReplayCacheSize bounds the number of tracked signatures.
	ReplayCacheSize = 10000
)

// Source records where the verifying key came from.
type Source string

const (
	SourceDirectory Source = "directory"
	SourceInlineKey Source = "inline_key"
)

// Inline-key sessions are labelled with a fixed test identity so they can
// never be confused with directory-backed users.
const (
	InlineUserID   = "test_user"
	InlineUserName = "Test User"
)

// ResolvedUser is the identity a successful verification maps to.
type ResolvedUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
}

// Result is the outcome of a verification. Valid is true only when Error is
// empty and User is set.
type Result struct {
	Valid     bool
	Algorithm Algorithm
	Source    Source
	Error     string
	User      *ResolvedUser
}

func failed(source Source, reason string) *Result {
	return &Result{Valid: false, Algorithm: AlgorithmNone, Source: source, Error: reason}
}

// Verifier checks signature proofs presented at handshake.
type Verifier struct {
	directory Directory
	used      *dedupe.Cache
}

// NewVerifier creates a verifier. directory may be nil when only inline keys
// are accepted.
func NewVerifier(directory Directory) *Verifier {
	return &Verifier{
		directory: directory,
		used:      dedupe.New(ReplayWindow, ReplayCacheSize),
	}
}

// VerifyWithDirectory resolves did through the trusted directory and verifies
// signature over message with the registered key.
func (v *Verifier) VerifyWithDirectory(ctx context.Context, did, message, signature string) *Result {
	if v.directory == nil {
		return failed(SourceDirectory, "Identity directory not configured")
	}

	user, err := v.directory.LookupUser(ctx, did)
	if errors.Is(err, ErrUserNotFound) {
		return failed(SourceDirectory, "User not found")
	}
	if err != nil {
		return failed(SourceDirectory, "Identity directory unavailable: "+err.Error())
	}
	if strings.TrimSpace(user.PublicKey) == "" {
		return failed(SourceDirectory, "No public key found for user")
	}

	name := user.Name
	if name == "" {
		name = "Unknown"
	}
	return v.verify(SourceDirectory, did, message, signature, user.PublicKey, &ResolvedUser{ID: user.ID, DisplayName: name})
}

// VerifyWithKey verifies against a caller-supplied key. A successful result
// carries the inline test identity and SourceInlineKey.
func (v *Verifier) VerifyWithKey(did, message, signature, publicKey string) *Result {
	return v.verify(SourceInlineKey, did, message, signature, publicKey, &ResolvedUser{ID: InlineUserID, DisplayName: InlineUserName})
}

func (v *Verifier) verify(source Source, did, message, signature, publicKey string, user *ResolvedUser) *Result {
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return failed(source, err.Error())
	}
	if err := key.Verify(message, signature); err != nil {
		return failed(source, err.Error())
	}

	if !v.used.Claim(proofDigest(did, message, signature)) {
		return failed(source, "signature already used")
	}

	return &Result{
		Valid:     true,
		Algorithm: key.Algorithm(),
		Source:    source,
		User:      user,
	}
}

// Release returns a claimed proof to the unused pool. A handshake that fails
// after its signature verified calls it so the client can retry.
func (v *Verifier) Release(did, message, signature string) {
	v.used.Release(proofDigest(did, message, signature))
}

// proofDigest keys the replay cache. The signature is normalized so the same
// bytes with and without a 0x prefix collide.
func proofDigest(did, message, signature string) string {
	sig := strings.ToLower(strings.TrimSpace(signature))
	sig = strings.TrimPrefix(sig, "0x")

	h := sha256.New()
	h.Write([]byte(did))
	h.Write([]byte{0})
	h.Write([]byte(message))
	h.Write([]byte{0})
	h.Write([]byte(sig))
	return hex.EncodeToString(h.Sum(nil))
}
