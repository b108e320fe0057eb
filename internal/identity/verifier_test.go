// ABOUTME: Tests for handshake signature verification
// ABOUTME: Covers ECDSA and Ed25519 proofs, directory lookups, inline keys, and replay rejection

package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newECDSAKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey))
}

// signPersonal produces a wallet-style signature with v in {27,28}.
func signPersonal(t *testing.T, key *ecdsa.PrivateKey, message string) []byte {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[64] += 27
	return sig
}

func newEd25519Key(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv, hex.EncodeToString(pub)
}

func TestParsePublicKey_SelectsAlgorithm(t *testing.T) {
	_, ecdsaPub := newECDSAKey(t)
	_, edPub := newEd25519Key(t)

	key, err := ParsePublicKey(ecdsaPub)
	require.NoError(t, err)
	assert.Equal(t, KeyFormatECDSAUncompressed, key.Format)
	assert.Equal(t, AlgorithmECDSA, key.Algorithm())

	key, err = ParsePublicKey("0x" + edPub)
	require.NoError(t, err)
	assert.Equal(t, KeyFormatEd25519Raw, key.Format)
	assert.Equal(t, AlgorithmEd25519, key.Algorithm())
	assert.Equal(t, "ed25519_raw", key.Format.String())
}

func TestParsePublicKey_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{"empty", "", "public key is empty"},
		{"not hex", "zz-not-hex", "invalid public key encoding"},
		{"wrong length", "0x" + strings.Repeat("ab", 20), "public key must be 32 bytes"},
		{"point not on curve", "0x04" + strings.Repeat("00", 64), "ECDSA verification failed: invalid public key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePublicKey(tt.key)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVerifyWithKey_ECDSAValid(t *testing.T) {
	key, pub := newECDSAKey(t)
	sig := signPersonal(t, key, "hello")

	v := NewVerifier(nil)
	res := v.VerifyWithKey("did:ethr:0xabc", "hello", hexutil.Encode(sig), pub)

	assert.True(t, res.Valid, res.Error)
	assert.Equal(t, AlgorithmECDSA, res.Algorithm)
	assert.Equal(t, SourceInlineKey, res.Source)
	require.NotNil(t, res.User)
	assert.Equal(t, InlineUserID, res.User.ID)
	assert.Equal(t, InlineUserName, res.User.DisplayName)
}

func TestVerifyWithKey_ECDSAAcceptsRawRecoveryID(t *testing.T) {
	key, pub := newECDSAKey(t)
	sig := signPersonal(t, key, "hello")
	sig[64] -= 27

	res := NewVerifier(nil).VerifyWithKey("did:ethr:0xabc", "hello", hex.EncodeToString(sig), pub)
	assert.True(t, res.Valid, res.Error)
}

func TestVerifyWithKey_ECDSAFlippedMessageByte(t *testing.T) {
	key, pub := newECDSAKey(t)
	sig := signPersonal(t, key, "hello")

	res := NewVerifier(nil).VerifyWithKey("did:ethr:0xabc", "hellp", hexutil.Encode(sig), pub)

	assert.False(t, res.Valid)
	assert.Equal(t, AlgorithmNone, res.Algorithm)
	assert.Equal(t, "Invalid ECDSA signature", res.Error)
	assert.Nil(t, res.User)
}

func TestVerifyWithKey_ECDSAFlippedSignatureByte(t *testing.T) {
	key, pub := newECDSAKey(t)
	sig := signPersonal(t, key, "hello")
	sig[10] ^= 0xff

	res := NewVerifier(nil).VerifyWithKey("did:ethr:0xabc", "hello", hexutil.Encode(sig), pub)

	assert.False(t, res.Valid)
	ok := res.Error == "Invalid ECDSA signature" || strings.HasPrefix(res.Error, "ECDSA verification failed:")
	assert.True(t, ok, "unexpected error: %s", res.Error)
}

func TestVerifyWithKey_ECDSAWrongLength(t *testing.T) {
	_, pub := newECDSAKey(t)

	res := NewVerifier(nil).VerifyWithKey("did", "hello", "0x"+strings.Repeat("11", 64), pub)

	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "ECDSA verification failed: signature must be 65 bytes")
}

func TestVerifyWithKey_Ed25519Valid(t *testing.T) {
	priv, pub := newEd25519Key(t)
	sig := ed25519.Sign(priv, []byte("login-123"))

	res := NewVerifier(nil).VerifyWithKey("did:hedera:testnet:user", "login-123", hex.EncodeToString(sig), pub)

	assert.True(t, res.Valid, res.Error)
	assert.Equal(t, AlgorithmEd25519, res.Algorithm)
	assert.Equal(t, SourceInlineKey, res.Source)
}

func TestVerifyWithKey_Ed25519Truncated(t *testing.T) {
	priv, pub := newEd25519Key(t)
	sig := ed25519.Sign(priv, []byte("login-123"))

	res := NewVerifier(nil).VerifyWithKey("did", "login-123", hex.EncodeToString(sig[:63]), pub)

	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "Ed25519 verification failed: signature must be 64 bytes, got 63")
}

func TestVerifyWithKey_Ed25519Mismatch(t *testing.T) {
	priv, pub := newEd25519Key(t)
	sig := ed25519.Sign(priv, []byte("login-123"))

	res := NewVerifier(nil).VerifyWithKey("did", "login-124", "0x"+hex.EncodeToString(sig), pub)

	assert.False(t, res.Valid)
	assert.Equal(t, "Invalid Ed25519 signature", res.Error)
}

func TestVerify_RejectsReplay(t *testing.T) {
	priv, pub := newEd25519Key(t)
	sigHex := hex.EncodeToString(ed25519.Sign(priv, []byte("login-123")))

	v := NewVerifier(nil)
	first := v.VerifyWithKey("did", "login-123", sigHex, pub)
	require.True(t, first.Valid)

	second := v.VerifyWithKey("did", "login-123", "0x"+strings.ToUpper(sigHex), pub)
	assert.False(t, second.Valid)
	assert.Equal(t, "signature already used", second.Error)
}

func TestVerify_FailedProofDoesNotConsumeSignature(t *testing.T) {
	priv, pub := newEd25519Key(t)
	sigHex := hex.EncodeToString(ed25519.Sign(priv, []byte("login-123")))

	v := NewVerifier(nil)
	bad := v.VerifyWithKey("did", "login-123", sigHex[:10], pub)
	require.False(t, bad.Valid)

	good := v.VerifyWithKey("did", "login-123", sigHex, pub)
	assert.True(t, good.Valid, good.Error)
}

func directoryServer(t *testing.T, users map[string]DirectoryUser) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		did := strings.TrimPrefix(r.URL.Path, "/api/users/")
		user, ok := users[did]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(user)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyWithDirectory(t *testing.T) {
	key, pub := newECDSAKey(t)
	did := "did:ethr:alice"

	srv := directoryServer(t, map[string]DirectoryUser{
		did:          {ID: "u-1", Name: "Alice", PublicKey: pub},
		"did:nokey":  {ID: "u-2", Name: "Bob"},
		"did:noname": {ID: "u-3", PublicKey: pub},
	})
	v := NewVerifier(NewHTTPDirectory(srv.URL+"/api/", 2*time.Second))
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		res := v.VerifyWithDirectory(ctx, did, "challenge-1", hexutil.Encode(signPersonal(t, key, "challenge-1")))
		require.True(t, res.Valid, res.Error)
		assert.Equal(t, SourceDirectory, res.Source)
		assert.Equal(t, "u-1", res.User.ID)
		assert.Equal(t, "Alice", res.User.DisplayName)
	})

	t.Run("unknown user", func(t *testing.T) {
		res := v.VerifyWithDirectory(ctx, "did:ghost", "c", "0x00")
		assert.False(t, res.Valid)
		assert.Equal(t, "User not found", res.Error)
	})

	t.Run("no public key", func(t *testing.T) {
		res := v.VerifyWithDirectory(ctx, "did:nokey", "c", "0x00")
		assert.False(t, res.Valid)
		assert.Equal(t, "No public key found for user", res.Error)
	})

	t.Run("missing name defaults", func(t *testing.T) {
		res := v.VerifyWithDirectory(ctx, "did:noname", "challenge-2", hexutil.Encode(signPersonal(t, key, "challenge-2")))
		require.True(t, res.Valid, res.Error)
		assert.Equal(t, "Unknown", res.User.DisplayName)
	})
}

func TestVerifyWithDirectory_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	res := NewVerifier(NewHTTPDirectory(srv.URL, time.Second)).VerifyWithDirectory(context.Background(), "did", "c", "0x00")
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "Identity directory unavailable")
}

func TestVerifyWithDirectory_NotConfigured(t *testing.T) {
	res := NewVerifier(nil).VerifyWithDirectory(context.Background(), "did", "c", "0x00")
	assert.False(t, res.Valid)
	assert.Equal(t, SourceDirectory, res.Source)
}

func TestVerify_ReleaseAllowsRetry(t *testing.T) {
	priv, pub := newEd25519Key(t)
	sigHex := hex.EncodeToString(ed25519.Sign(priv, []byte("login-123")))

	v := NewVerifier(nil)
	require.True(t, v.VerifyWithKey("did", "login-123", sigHex, pub).Valid)

	v.Release("did", "login-123", "0x"+sigHex)
	assert.True(t, v.VerifyWithKey("did", "login-123", sigHex, pub).Valid)
	assert.False(t, v.VerifyWithKey("did", "login-123", sigHex, pub).Valid)
}
