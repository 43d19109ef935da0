// Package tag is the per-account revocation switch. Each account owns a
// single monotonically increasing counter in Redis; tokens embed the counter
// value current at issue time and stay valid only while that value matches
// the live one. Rotating the counter invalidates every outstanding token for
// the account in one atomic step, which is what makes "sign out everywhere"
// possible without a server-side token blacklist.
//
// Initialization seeds the counter with a random value so that a cache wipe
// never resurrects tokens issued against an earlier life of the key. All
// mutations run as Lua scripts and are linearizable per account.
package tag
