// Package password provides the default Argon2id implementation of the
// authcore PasswordHasher contract. Hashes are stored in PHC string format so
// parameters travel with the digest, and verification compares in constant
// time. Deployments with an existing hashing scheme can ignore this package
// and inject their own hasher.
package password
