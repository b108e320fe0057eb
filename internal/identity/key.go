// ABOUTME: Public key parsing that decides the signature algorithm once, from the key encoding
// ABOUTME: 65-byte uncompressed secp256k1 points select ECDSA, everything else is raw Ed25519

package identity

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyFormat is the encoding a public key was supplied in.
type KeyFormat int

const (
	KeyFormatUnknown KeyFormat = iota
	KeyFormatECDSAUncompressed
	KeyFormatEd25519Raw
)

// String returns the wire name of the key format.
func (f KeyFormat) String() string {
	switch f {
	case KeyFormatECDSAUncompressed:
		return "ecdsa_uncompressed"
	case KeyFormatEd25519Raw:
		return "ed25519_raw"
	default:
		return "unknown"
	}
}

// Algorithm is the signature scheme a key format implies.
type Algorithm string

const (
	AlgorithmNone    Algorithm = ""
	AlgorithmECDSA   Algorithm = "ECDSA"
	AlgorithmEd25519 Algorithm = "Ed25519"
)

const (
	uncompressedPointLen    = 65
	uncompressedPointPrefix = 0x04
	ecdsaSignatureLen       = 65
)

var (
	errEmptyKey       = errors.New("public key is empty")
	errEmptySignature = errors.New("signature is empty")
)

// PublicKey is a parsed public key whose format has been fixed at parse time.
// Exactly one of ecdsa or ed25519 is set, matching Format.
type PublicKey struct {
	Format  KeyFormat
	ecdsa   *ecdsa.PublicKey
	ed25519 ed25519.PublicKey
}

// Algorithm returns the signature algorithm this key verifies under.
func (k *PublicKey) Algorithm() Algorithm {
	switch k.Format {
	case KeyFormatECDSAUncompressed:
		return AlgorithmECDSA
	case KeyFormatEd25519Raw:
		return AlgorithmEd25519
	default:
		return AlgorithmNone
	}
}

// Address returns the Ethereum address derived from an ECDSA key.
// The zero address is returned for other formats.
func (k *PublicKey) Address() common.Address {
	if k.ecdsa == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(*k.ecdsa)
}

// ParsePublicKey decodes a hex public key (with or without 0x) and fixes its
// format. The returned error is already prefixed with the algorithm name so
// it can be surfaced verbatim.
func ParsePublicKey(encoded string) (*PublicKey, error) {
	raw, err := decodeHex(encoded)
	if err != nil {
		return nil, fmt.Errorf("Ed25519 verification failed: invalid public key encoding: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("Ed25519 verification failed: %w", errEmptyKey)
	}

	if len(raw) == uncompressedPointLen && raw[0] == uncompressedPointPrefix {
		pub, err := crypto.UnmarshalPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("ECDSA verification failed: invalid public key: %w", err)
		}
		return &PublicKey{Format: KeyFormatECDSAUncompressed, ecdsa: pub}, nil
	}

	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("Ed25519 verification failed: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return &PublicKey{Format: KeyFormatEd25519Raw, ed25519: ed25519.PublicKey(raw)}, nil
}

// Verify checks signature over message under the key's algorithm.
// A nil return means the signature is valid.
func (k *PublicKey) Verify(message, signature string) error {
	switch k.Format {
	case KeyFormatECDSAUncompressed:
		return k.verifyECDSA(message, signature)
	case KeyFormatEd25519Raw:
		return k.verifyEd25519(message, signature)
	default:
		return errors.New("unsupported key format")
	}
}

// verifyECDSA recovers the signer of a personal_sign message and compares
// addresses. Wallet signatures carry v as 27/28; both that and 0/1 are accepted.
func (k *PublicKey) verifyECDSA(message, signature string) error {
	sig, err := decodeHex(signature)
	if err != nil {
		return fmt.Errorf("ECDSA verification failed: invalid signature encoding: %w", err)
	}
	if len(sig) == 0 {
		return fmt.Errorf("ECDSA verification failed: %w", errEmptySignature)
	}
	if len(sig) != ecdsaSignatureLen {
		return fmt.Errorf("ECDSA verification failed: signature must be %d bytes, got %d", ecdsaSignatureLen, len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	hash := accounts.TextHash([]byte(message))
	recovered, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return fmt.Errorf("ECDSA verification failed: %w", err)
	}

	if !strings.EqualFold(crypto.PubkeyToAddress(*recovered).Hex(), k.Address().Hex()) {
		return errors.New("Invalid ECDSA signature")
	}
	return nil
}

// verifyEd25519 verifies a raw 64-byte signature over the UTF-8 message bytes.
func (k *PublicKey) verifyEd25519(message, signature string) error {
	sig, err := decodeHex(signature)
	if err != nil {
		return fmt.Errorf("Ed25519 verification failed: invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("Ed25519 verification failed: signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}
	if !ed25519.Verify(k.ed25519, []byte(message), sig) {
		return errors.New("Invalid Ed25519 signature")
	}
	return nil
}

// decodeHex strips an optional 0x prefix and decodes the rest.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
