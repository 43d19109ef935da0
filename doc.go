// Package authcore is the credential lifecycle core for a client-server
// application: it mints JWT access tokens, device-bound refresh tokens, and
// single-use tokens for email verification, email change, and password reset,
// and it answers the question "is this credential still valid" without keeping
// a server-side list of issued tokens.
//
// Revocation works through a per-account auth tag, a monotonically increasing
// counter stored in Redis. Every minted token embeds the tag value current at
// issue time; rotating the tag (on sign-in, on "sign out everywhere", after a
// password reset) invalidates every outstanding token in a single atomic
// increment. Access-token verification therefore needs exactly one Redis
// round-trip (the tag comparison), and refresh additionally checks the
// session record bound to the requesting device's fingerprint hash.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy, and the collaborator interfaces ([AccountStore],
// [PasswordHasher], [DeliveryService]). The signed-token codec lives in
// [github.com/vantorre/authcore/token], the revocation counter in
// [github.com/vantorre/authcore/tag], and the device-bound session store in
// [github.com/vantorre/authcore/session]. One-time token storage lives under
// internal/ and is never exported.
//
// The account database, password hashing policy, HTTP routing, and email
// delivery are owned by the embedding service and injected through the
// Builder. authcore never stores password hashes and never opens sockets
// other than the Redis client it is given.
//
// # Concurrency contract
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. There is no in-process shared mutable state; every
// consistency requirement (tag rotation, session touch, one-time consume) is
// pushed to Redis atomic primitives and Lua scripts.
package authcore
