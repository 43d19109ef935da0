// Package token is the stateless signed-token codec. It encodes an account
// identifier, the auth tag value current at issue time, the token type, and
// (for refresh tokens) the device fingerprint hash into a compact JWT, and it
// verifies signature and expiry on the way back. Issue and Verify perform no
// I/O; the revocation cross-check against the live auth tag is deliberately
// left to the caller so that endpoints which only need "is this a live,
// unexpired token" can skip the cache round-trip.
package token
