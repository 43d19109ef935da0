// Package stores contains the Redis persistence layer for one-time tokens.
// Records are compact versioned binary blobs; consumption is an atomic
// check-and-mark under a WATCH transaction so that N concurrent redemptions
// of the same token yield exactly one winner.
package stores
