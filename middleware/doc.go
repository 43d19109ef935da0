// Package middleware exposes HTTP middleware adapters for authcore's access
// token verification.
//
// # Guards
//
//   - [Guard] verifies the bearer access token and the account's live
//     revocation state.
//   - [RequireDevice] is Guard plus device binding against the fingerprint
//     hash the token was minted for.
//
// Each guard reads the Authorization header, calls Engine.Verify, and injects
// the validated identity into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself. All decisions are delegated to
// Engine.Verify.
package middleware
