// Package identity verifies the signature a client presents when opening a
// session.
//
// # Key formats
//
// The algorithm is fixed by the public key encoding when it is parsed:
//
//   - 65 bytes starting with 0x04: uncompressed secp256k1. The signature is a
//     65-byte personal_sign signature (r || s || v, v in {0,1,27,28}); the
//     signer address is recovered and compared with the key's address.
//   - 32 bytes: raw Ed25519. The signature is 64 raw bytes over the UTF-8
//     message.
//
// Keys and signatures are hex, with or without a 0x prefix.
//
// # Sources
//
// VerifyWithDirectory looks the DID up in the identity directory.
// VerifyWithKey accepts a caller-supplied key and labels the result with
// SourceInlineKey and the fixed test identity.
//
// Every failure is returned as a Result with Valid false and a reason string;
// no error escapes the verifier. A signature that verified once is rejected
// for ReplayWindow afterwards.
package identity
