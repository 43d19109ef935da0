package authcore

import "errors"

var (
	// ErrInvalidCredentials is the single outward failure for sign-in: unknown
	// account, wrong password, unverified or suspended account all collapse to
	// it so callers cannot enumerate accounts. The precise internal kind is
	// retained in the audit event.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountUnverified marks an account whose email is not yet verified.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrAccountSuspended marks a suspended account.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrTokenExpired is returned when a signed token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned for tokens that cannot be decoded or that
	// carry the wrong token type for the operation.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenRevoked is returned when a token's embedded auth tag no longer
	// matches the account's live tag.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrSessionNotFound is returned on refresh when the fingerprint was never
	// registered at sign-in, no longer matches, or the session record expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrFingerprintRequired is returned when an operation that binds a
	// credential to a device is called without a fingerprint hash.
	ErrFingerprintRequired = errors.New("fingerprint hash required")
	// ErrOneTimeTokenNotFound is returned for unknown or forged one-time tokens.
	ErrOneTimeTokenNotFound = errors.New("one-time token not found")
	// ErrOneTimeTokenExpired is returned for one-time tokens past their expiry.
	ErrOneTimeTokenExpired = errors.New("one-time token expired")
	// ErrOneTimeTokenConsumed is returned when a one-time token has already
	// been redeemed.
	ErrOneTimeTokenConsumed = errors.New("one-time token already consumed")
	// ErrOneTimeTokenWrongPurpose is returned when a one-time token is
	// presented for a purpose other than the one it was issued for.
	ErrOneTimeTokenWrongPurpose = errors.New("one-time token purpose mismatch")
	// ErrCacheUnavailable wraps transient Redis failures and timeouts. It is
	// the only error kind eligible for retry; it must never be interpreted as
	// "not found" or "invalid".
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrPasswordRequired is returned when redeeming a SET_PASSWORD token
	// without a new password.
	ErrPasswordRequired = errors.New("new password required")
	// ErrEngineNotReady is returned when an Engine method is called before
	// Builder.Build completed.
	ErrEngineNotReady = errors.New("engine not initialized")
)
