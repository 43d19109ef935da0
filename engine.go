package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vantorre/authcore/internal/stores"
	"github.com/vantorre/authcore/session"
	"github.com/vantorre/authcore/tag"
	"github.com/vantorre/authcore/token"
)

// Engine is the credential lifecycle core. All methods are safe for
// concurrent use after Builder.Build; the engine itself holds no mutable
// state outside the injected Redis client.
type Engine struct {
	config   Config
	codec    *token.Codec
	tags     *tag.Registry
	sessions *session.Store
	onetime  *stores.OneTimeStore
	accounts AccountStore
	hasher   PasswordHasher
	delivery DeliveryService
	audit    *auditDispatcher
	metrics  *Metrics
}

// hashUpgrader is implemented by hashers that can flag digests produced with
// weaker-than-current parameters (the bundled Argon2 hasher does).
type hashUpgrader interface {
	NeedsUpgrade(encoded string) (bool, error)
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.close()
}

// AuditDropped reports how many audit events were dropped because the sink
// could not keep up.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.droppedCount()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.codec != nil && e.tags != nil && e.sessions != nil &&
		e.onetime != nil && e.accounts != nil && e.hasher != nil
}

// SignIn authenticates the account behind email, opens a session bound to
// the device fingerprint, rotates the auth tag, and mints a fresh token
// pair. Unknown account, wrong password, unverified and suspended accounts
// all surface as ErrInvalidCredentials; the precise reason goes to the audit
// sink only.
func (e *Engine) SignIn(ctx context.Context, email, password, fingerprintHash string) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if fingerprintHash == "" {
		return nil, ErrFingerprintRequired
	}

	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	if account == nil {
		return nil, e.rejectSignIn(ctx, "", fingerprintHash, "unknown_account")
	}

	matched, err := e.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("password verify: %w", err)
	}
	if !matched {
		return nil, e.rejectSignIn(ctx, account.ID, fingerprintHash, "wrong_password")
	}
	if !account.EmailVerified {
		return nil, e.rejectSignIn(ctx, account.ID, fingerprintHash, "unverified")
	}
	if account.Suspended {
		return nil, e.rejectSignIn(ctx, account.ID, fingerprintHash, "suspended")
	}

	e.maybeUpgradeHash(ctx, account, password)

	err = e.withCacheRetry(ctx, func(opCtx context.Context) error {
		_, openErr := e.sessions.Open(opCtx, account.ID, fingerprintHash, e.config.SessionTTL)
		return openErr
	})
	if err != nil {
		return nil, err
	}

	var tagValue uint64
	err = e.withCacheRetry(ctx, func(opCtx context.Context) error {
		var rotateErr error
		tagValue, rotateErr = e.tags.Rotate(opCtx, account.ID)
		return rotateErr
	})
	if err != nil {
		return nil, err
	}

	access, err := e.codec.Issue(account.ID, tagValue, fingerprintHash, token.TypeAccess, e.config.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := e.codec.Issue(account.ID, tagValue, fingerprintHash, token.TypeRefresh, e.config.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	e.metricInc(MetricSignInSuccess)
	e.audit.emit(ctx, AuditEvent{
		EventType:   AuditSignIn,
		AccountID:   account.ID,
		Fingerprint: fingerprintHash,
		Success:     true,
	})

	return &SignInResult{
		AccountID:    account.ID,
		Email:        account.Email,
		AccessToken:  access,
		RefreshToken: refresh,
		Tag:          tagValue,
	}, nil
}

func (e *Engine) rejectSignIn(ctx context.Context, accountID, fingerprintHash, reason string) error {
	e.metricInc(MetricSignInFailure)
	e.audit.emit(ctx, AuditEvent{
		EventType:   AuditSignInFailed,
		AccountID:   accountID,
		Fingerprint: fingerprintHash,
		Success:     false,
		Reason:      reason,
	})
	return ErrInvalidCredentials
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, account *Account, password string) {
	upgrader, ok := e.hasher.(hashUpgrader)
	if !ok {
		return
	}
	needed, err := upgrader.NeedsUpgrade(account.PasswordHash)
	if err != nil || !needed {
		return
	}

	newHash, err := e.hasher.Hash(password)
	if err != nil {
		log.Print("authcore: password hash upgrade generation failed")
		return
	}
	if err := e.accounts.UpdatePasswordHash(ctx, account.ID, newHash); err != nil {
		log.Print("authcore: password hash upgrade update failed")
	}
}

// Verify checks an access token: signature, expiry, token type, and the
// revocation cross-check against the live auth tag. It is the hot path; the
// tag comparison is its only Redis round-trip.
func (e *Engine) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Verify(accessToken)
	if err != nil {
		e.metricInc(MetricVerifyRejected)
		return nil, mapCodecError(err)
	}
	if claims.TokenType != token.TypeAccess {
		e.metricInc(MetricVerifyRejected)
		return nil, ErrTokenMalformed
	}

	var current bool
	err = e.withCacheRetry(ctx, func(opCtx context.Context) error {
		var tagErr error
		current, tagErr = e.tags.IsCurrent(opCtx, claims.AccountID, claims.Tag)
		return tagErr
	})
	if err != nil {
		return nil, err
	}
	if !current {
		e.metricInc(MetricVerifyRevoked)
		e.audit.emit(ctx, AuditEvent{
			EventType: AuditVerifyRevoked,
			AccountID: claims.AccountID,
			Success:   false,
			Reason:    "tag_mismatch",
		})
		return nil, ErrTokenRevoked
	}

	e.metricInc(MetricVerifySuccess)
	return &Identity{
		AccountID:   claims.AccountID,
		Fingerprint: claims.Fingerprint,
		Tag:         claims.Tag,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Refresh exchanges a valid refresh token for a fresh token pair. The token
// must carry the same fingerprint hash the caller presents, the embedded tag
// must still be live, and the session opened at sign-in must still exist;
// the session's TTL is extended on success.
func (e *Engine) Refresh(ctx context.Context, refreshToken, fingerprintHash string) (*RefreshResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if fingerprintHash == "" {
		return nil, ErrFingerprintRequired
	}

	claims, err := e.codec.Verify(refreshToken)
	if err != nil {
		return nil, e.rejectRefresh(ctx, "", fingerprintHash, "bad_token", mapCodecError(err))
	}
	if claims.TokenType != token.TypeRefresh {
		return nil, e.rejectRefresh(ctx, claims.AccountID, fingerprintHash, "wrong_token_type", ErrTokenMalformed)
	}

	if subtle.ConstantTimeCompare([]byte(claims.Fingerprint), []byte(fingerprintHash)) != 1 {
		return nil, e.rejectRefresh(ctx, claims.AccountID, fingerprintHash, "fingerprint_mismatch", ErrSessionNotFound)
	}

	var current bool
	err = e.withCacheRetry(ctx, func(opCtx context.Context) error {
		var tagErr error
		current, tagErr = e.tags.IsCurrent(opCtx, claims.AccountID, claims.Tag)
		return tagErr
	})
	if err != nil {
		return nil, err
	}
	if !current {
		return nil, e.rejectRefresh(ctx, claims.AccountID, fingerprintHash, "tag_mismatch", ErrTokenRevoked)
	}

	err = e.withCacheRetry(ctx, func(opCtx context.Context) error {
		_, touchErr := e.sessions.Touch(opCtx, claims.AccountID, fingerprintHash, e.config.SessionTTL)
		return touchErr
	})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorrupt) {
			return nil, e.rejectRefresh(ctx, claims.AccountID, fingerprintHash, "session_missing", ErrSessionNotFound)
		}
		return nil, err
	}

	access, err := e.codec.Issue(claims.AccountID, claims.Tag, fingerprintHash, token.TypeAccess, e.config.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := e.codec.Issue(claims.AccountID, claims.Tag, fingerprintHash, token.TypeRefresh, e.config.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.audit.emit(ctx, AuditEvent{
		EventType:   AuditRefresh,
		AccountID:   claims.AccountID,
		Fingerprint: fingerprintHash,
		Success:     true,
	})

	return &RefreshResult{
		AccountID:    claims.AccountID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (e *Engine) rejectRefresh(ctx context.Context, accountID, fingerprintHash, reason string, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.audit.emit(ctx, AuditEvent{
		EventType:   AuditRefreshFailed,
		AccountID:   accountID,
		Fingerprint: fingerprintHash,
		Success:     false,
		Reason:      reason,
	})
	return err
}

// SignOut closes the session for one device. Outstanding access tokens stay
// valid until expiry or a tag rotation; the refresh path dies immediately.
// Idempotent.
func (e *Engine) SignOut(ctx context.Context, accountID, fingerprintHash string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	err := e.withCacheRetry(ctx, func(opCtx context.Context) error {
		return e.sessions.Close(opCtx, accountID, fingerprintHash)
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricSignOut)
	e.audit.emit(ctx, AuditEvent{
		EventType:   AuditSignOut,
		AccountID:   accountID,
		Fingerprint: fingerprintHash,
		Success:     true,
	})
	return nil
}

// SignOutEverywhere closes every session for the account and rotates the
// auth tag, so outstanding access and refresh tokens fail verification even
// where a session record lingered.
func (e *Engine) SignOutEverywhere(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	err := e.withCacheRetry(ctx, func(opCtx context.Context) error {
		_, closeErr := e.sessions.CloseAll(opCtx, accountID)
		return closeErr
	})
	if err != nil {
		return err
	}

	err = e.withCacheRetry(ctx, func(opCtx context.Context) error {
		_, rotateErr := e.tags.Rotate(opCtx, accountID)
		return rotateErr
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricSignOutEverywhere)
	e.audit.emit(ctx, AuditEvent{
		EventType: AuditSignOutAll,
		AccountID: accountID,
		Success:   true,
	})
	return nil
}

// withCacheRetry runs op under the per-operation cache timeout, retrying
// transient cache failures up to the configured attempt count. All other
// error kinds are terminal and returned as-is.
func (e *Engine) withCacheRetry(ctx context.Context, op func(context.Context) error) error {
	attempts := e.config.Cache.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		opCtx, cancel := context.WithTimeout(ctx, e.config.Cache.Timeout)
		err := op(opCtx)
		cancel()

		if err == nil {
			return nil
		}
		if !isCacheUnavailable(err) {
			return err
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return fmt.Errorf("%w: %v", ErrCacheUnavailable, lastErr)
}

func isCacheUnavailable(err error) bool {
	return errors.Is(err, tag.ErrRedisUnavailable) ||
		errors.Is(err, session.ErrRedisUnavailable) ||
		errors.Is(err, stores.ErrRedisUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

func mapCodecError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrBadSignature), errors.Is(err, token.ErrMalformed):
		return ErrTokenMalformed
	default:
		return ErrTokenMalformed
	}
}

// SessionInfo reports the live session record for a device, if any.
func (e *Engine) SessionInfo(ctx context.Context, accountID, fingerprintHash string) (*session.Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var sess *session.Session
	err := e.withCacheRetry(ctx, func(opCtx context.Context) error {
		var getErr error
		sess, getErr = e.sessions.Get(opCtx, accountID, fingerprintHash)
		return getErr
	})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// ActiveDevices lists the fingerprints with an open session for the account.
func (e *Engine) ActiveDevices(ctx context.Context, accountID string) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var fingerprints []string
	err := e.withCacheRetry(ctx, func(opCtx context.Context) error {
		var listErr error
		fingerprints, listErr = e.sessions.ActiveFingerprints(opCtx, accountID)
		return listErr
	})
	if err != nil {
		return nil, err
	}
	return fingerprints, nil
}

// Ping checks cache availability and reports the round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}
