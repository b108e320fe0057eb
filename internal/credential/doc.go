// Package credential asks the external VP oracle whether a Verifiable
// Presentation is valid.
//
// The gate makes no local trust decision. Connection refusal, timeouts,
// non-2xx statuses, and responses of the wrong shape all produce a Verdict
// with Valid false and a specific Reason.
//
// Two oracle forms exist:
//
//	POST {verify_url}/vps/verify   {"vp": <vp>}        -> {"valid", "permissions", "error"}
//	POST {token_verify_url}        {"vp_token": <vp>}  -> {"verified", "reason"}
package credential
