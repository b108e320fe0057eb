// Package dedupe provides a single-use key registry with a time window.
//
// The identity verifier claims a digest of (did, challenge, signature) after
// a successful check; a second claim inside the window is treated as replay.
package dedupe
