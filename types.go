package authcore

import (
	"context"
	"time"
)

// Purpose scopes a one-time token to exactly one out-of-band flow. A token
// issued for one purpose can never be redeemed for another.
type Purpose uint8

const (
	// PurposeAccountVerification verifies the account's email address.
	PurposeAccountVerification Purpose = iota + 1
	// PurposeSetPassword authorizes setting a new password (forgot-password flow).
	PurposeSetPassword
	// PurposeChangeEmail authorizes switching the account to a new email address.
	PurposeChangeEmail
)

// String returns the wire name of the purpose.
func (p Purpose) String() string {
	switch p {
	case PurposeAccountVerification:
		return "ACCOUNT_VERIFICATION"
	case PurposeSetPassword:
		return "SET_PASSWORD"
	case PurposeChangeEmail:
		return "CHANGE_EMAIL"
	default:
		return "UNKNOWN"
	}
}

func validPurpose(p Purpose) bool {
	switch p {
	case PurposeAccountVerification, PurposeSetPassword, PurposeChangeEmail:
		return true
	default:
		return false
	}
}

// Account is the slice of the external account record this core needs. The
// password hash is an opaque reference owned by the account store; authcore
// only ever passes it to the injected [PasswordHasher].
type Account struct {
	ID            string
	Email         string
	EmailVerified bool
	Suspended     bool
	PasswordHash  string
}

// AccountStore is the collaborator contract for the external user database.
// Lookup methods return (nil, nil) when no account matches; an error means the
// backend itself failed.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	UpdatePasswordHash(ctx context.Context, id string, newHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
	UpdateEmail(ctx context.Context, id string, newEmail string) error
}

// PasswordHasher hashes and checks passwords. Verify must compare in constant
// time. The default implementation is [github.com/vantorre/authcore/password].
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}

// DeliveryService hands a one-time token to the out-of-band channel (email,
// SMS). Calls are fire-and-forget from the engine's point of view: a delivery
// failure is logged, never propagated to the caller that requested the token.
type DeliveryService interface {
	Send(ctx context.Context, accountID string, purpose Purpose, token string) error
}

// Identity is the result of verifying an access token.
type Identity struct {
	AccountID   string
	Fingerprint string
	Tag         uint64
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// SignInResult carries the credentials minted on a successful sign-in.
type SignInResult struct {
	AccountID    string
	Email        string
	AccessToken  string
	RefreshToken string
	Tag          uint64
}

// RefreshResult carries the fresh token pair minted on a successful refresh.
type RefreshResult struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
}

// RedeemResult reports a successfully consumed one-time token.
type RedeemResult struct {
	AccountID string
	Purpose   Purpose
	Payload   string
}

// OneTimePreview is the non-consuming view of a one-time token, used where a
// flow must validate a token before asking for further input (rendering a
// "set new password" form). The eventual state change still performs its own
// atomic consume.
type OneTimePreview struct {
	AccountID string
	Purpose   Purpose
	Payload   string
	ExpiresAt time.Time
}
