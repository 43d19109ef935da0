// Package session binds refresh credentials to the device that obtained
// them. Each record is keyed by (account ID, fingerprint hash) and lives in
// Redis under a TTL: created at sign-in, extended on every successful
// refresh, expired passively when the device stops refreshing. A refresh
// presented with a fingerprint that was never registered, or whose record
// lapsed, fails instead of minting tokens; that is the device-binding
// guarantee. An explicit close path exists so sign-out works before the TTL
// runs out.
//
// Records are encoded as compact versioned binary blobs. Touch runs as a Lua
// script so the timestamp update and TTL extension cannot interleave with a
// concurrent open or close on the same key.
package session
