// Package auth protects the operator HTTP API of helix-gateway.
//
// Operators authenticate with HS256 JWTs signed by auth.jwt_secret. Tokens
// carry the operator name in "sub" and must carry the helix-gateway issuer
// and an expiry.
//
//	verifier := auth.NewJWTVerifier([]byte(secret))
//	token, err := verifier.Generate("ops", 24*time.Hour)
//
// HTTPAuthMiddleware wraps handlers and makes the subject available through
// FromContext. Chat sessions do not use this package; they authenticate with
// a signature proof in their init frame.
package auth
