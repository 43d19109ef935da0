package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vantorre/authcore/internal"
	"github.com/vantorre/authcore/internal/stores"
)

// IssueOneTimeToken mints a single-use token for the account, scoped to one
// purpose. The returned string is the only place the secret half ever exists
// in plain form; the store keeps a hash. The token is handed to the delivery
// service when one is configured.
func (e *Engine) IssueOneTimeToken(ctx context.Context, accountID string, purpose Purpose) (string, error) {
	return e.issueOneTime(ctx, accountID, purpose, "")
}

func (e *Engine) issueOneTime(ctx context.Context, accountID string, purpose Purpose, payload string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	if !validPurpose(purpose) {
		return "", fmt.Errorf("invalid one-time token purpose %d", purpose)
	}

	id, err := internal.NewOneTimeID()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	secret, err := internal.NewOneTimeSecret()
	if err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}

	now := time.Now()
	ttl := e.config.oneTimeTTL(purpose)
	record := &stores.OneTimeRecord{
		AccountID:  accountID,
		Purpose:    byte(purpose),
		Payload:    payload,
		SecretHash: internal.HashOneTimeSecret(secret),
		CreatedAt:  now.UnixMilli(),
		ExpiresAt:  now.Add(ttl).UnixMilli(),
	}

	// The record outlives its logical expiry by the grace window so a late
	// redemption reports expired rather than not found.
	err = e.withCacheRetry(ctx, func(opCtx context.Context) error {
		return e.onetime.Save(opCtx, id.String(), record, ttl+e.config.OneTime.ConsumedGrace)
	})
	if err != nil {
		return "", err
	}

	tokenStr := internal.EncodeOneTimeToken(id, secret)

	e.metricInc(MetricOneTimeIssued)
	e.audit.emit(ctx, AuditEvent{
		EventType: AuditOneTimeIssued,
		AccountID: accountID,
		Purpose:   purpose.String(),
		Success:   true,
	})

	e.deliver(ctx, accountID, purpose, tokenStr)
	return tokenStr, nil
}

func (e *Engine) deliver(ctx context.Context, accountID string, purpose Purpose, tokenStr string) {
	if e.delivery == nil {
		log.Printf("authcore: no delivery service configured, %s token for account not sent", purpose)
		return
	}
	if err := e.delivery.Send(ctx, accountID, purpose, tokenStr); err != nil {
		log.Printf("authcore: one-time token delivery failed: %v", err)
		e.audit.emit(ctx, AuditEvent{
			EventType: AuditDeliveryFailed,
			AccountID: accountID,
			Purpose:   purpose.String(),
			Success:   false,
			Reason:    "delivery_error",
		})
	}
}

// RedeemOneTimeToken atomically consumes a one-time token and applies the
// state change its purpose stands for. Under concurrent redemption exactly
// one caller succeeds. For PurposeSetPassword the extra argument carries the
// new password; the other purposes ignore it.
func (e *Engine) RedeemOneTimeToken(ctx context.Context, tokenStr string, purpose Purpose, extra string) (*RedeemResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !validPurpose(purpose) {
		return nil, ErrOneTimeTokenWrongPurpose
	}
	// Collect the password before burning the token: a consumed token with a
	// rejected password would strand the account.
	if purpose == PurposeSetPassword && extra == "" {
		return nil, ErrPasswordRequired
	}

	id, secret, err := internal.DecodeOneTimeToken(tokenStr)
	if err != nil {
		e.rejectOneTime(ctx, "", purpose, "malformed")
		return nil, ErrOneTimeTokenNotFound
	}
	providedHash := internal.HashOneTimeSecret(secret)

	var record *stores.OneTimeRecord
	err = e.withCacheRetry(ctx, func(opCtx context.Context) error {
		var consumeErr error
		record, consumeErr = e.onetime.Consume(opCtx, id.String(), providedHash, byte(purpose))
		return consumeErr
	})
	if err != nil {
		return nil, e.mapOneTimeError(ctx, err, purpose)
	}

	if err := e.finalizeRedeem(ctx, record, purpose, extra); err != nil {
		return nil, err
	}

	e.metricInc(MetricOneTimeRedeemed)
	e.audit.emit(ctx, AuditEvent{
		EventType: AuditOneTimeRedeemed,
		AccountID: record.AccountID,
		Purpose:   purpose.String(),
		Success:   true,
	})

	return &RedeemResult{
		AccountID: record.AccountID,
		Purpose:   purpose,
		Payload:   record.Payload,
	}, nil
}

func (e *Engine) finalizeRedeem(ctx context.Context, record *stores.OneTimeRecord, purpose Purpose, extra string) error {
	switch purpose {
	case PurposeAccountVerification:
		if err := e.accounts.MarkEmailVerified(ctx, record.AccountID); err != nil {
			return fmt.Errorf("mark email verified: %w", err)
		}

	case PurposeSetPassword:
		newHash, err := e.hasher.Hash(extra)
		if err != nil {
			return fmt.Errorf("hash new password: %w", err)
		}
		if err := e.accounts.UpdatePasswordHash(ctx, record.AccountID, newHash); err != nil {
			return fmt.Errorf("update password hash: %w", err)
		}
		// A password reset invalidates everything issued before it.
		if err := e.SignOutEverywhere(ctx, record.AccountID); err != nil {
			return err
		}

	case PurposeChangeEmail:
		if err := e.accounts.UpdateEmail(ctx, record.AccountID, record.Payload); err != nil {
			return fmt.Errorf("update email: %w", err)
		}
		if err := e.accounts.MarkEmailVerified(ctx, record.AccountID); err != nil {
			return fmt.Errorf("mark email verified: %w", err)
		}
	}
	return nil
}

// PeekOneTimeToken validates a one-time token without consuming it, so a
// flow can show a form before committing the state change.
func (e *Engine) PeekOneTimeToken(ctx context.Context, tokenStr string, purpose Purpose) (*OneTimePreview, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !validPurpose(purpose) {
		return nil, ErrOneTimeTokenWrongPurpose
	}

	id, secret, err := internal.DecodeOneTimeToken(tokenStr)
	if err != nil {
		return nil, ErrOneTimeTokenNotFound
	}
	providedHash := internal.HashOneTimeSecret(secret)

	var record *stores.OneTimeRecord
	err = e.withCacheRetry(ctx, func(opCtx context.Context) error {
		var peekErr error
		record, peekErr = e.onetime.Peek(opCtx, id.String(), providedHash, byte(purpose))
		return peekErr
	})
	if err != nil {
		return nil, e.mapOneTimeError(ctx, err, purpose)
	}

	return &OneTimePreview{
		AccountID: record.AccountID,
		Purpose:   Purpose(record.Purpose),
		Payload:   record.Payload,
		ExpiresAt: time.UnixMilli(record.ExpiresAt),
	}, nil
}

func (e *Engine) mapOneTimeError(ctx context.Context, err error, purpose Purpose) error {
	switch {
	case errors.Is(err, stores.ErrNotFound), errors.Is(err, stores.ErrSecretMismatch):
		// A forged secret is indistinguishable from an unknown token.
		e.rejectOneTime(ctx, "", purpose, "not_found")
		return ErrOneTimeTokenNotFound
	case errors.Is(err, stores.ErrExpired):
		e.rejectOneTime(ctx, "", purpose, "expired")
		return ErrOneTimeTokenExpired
	case errors.Is(err, stores.ErrConsumed):
		e.rejectOneTime(ctx, "", purpose, "consumed")
		return ErrOneTimeTokenConsumed
	case errors.Is(err, stores.ErrWrongPurpose):
		e.rejectOneTime(ctx, "", purpose, "wrong_purpose")
		return ErrOneTimeTokenWrongPurpose
	default:
		return err
	}
}

func (e *Engine) rejectOneTime(ctx context.Context, accountID string, purpose Purpose, reason string) {
	e.metricInc(MetricOneTimeRejected)
	e.audit.emit(ctx, AuditEvent{
		EventType: AuditOneTimeRejected,
		AccountID: accountID,
		Purpose:   purpose.String(),
		Success:   false,
		Reason:    reason,
	})
}

// RequestEmailVerification issues and delivers an account verification token.
func (e *Engine) RequestEmailVerification(ctx context.Context, accountID string) error {
	_, err := e.IssueOneTimeToken(ctx, accountID, PurposeAccountVerification)
	return err
}

// RequestEmailChange issues a change-email token whose payload carries the
// new address. The switch happens only when the token is redeemed, which
// proves control of the delivery channel.
func (e *Engine) RequestEmailChange(ctx context.Context, accountID, newEmail string) error {
	if newEmail == "" {
		return errors.New("new email must not be empty")
	}
	_, err := e.issueOneTime(ctx, accountID, PurposeChangeEmail, newEmail)
	return err
}

// RequestPasswordReset issues a set-password token for the account behind
// email. It returns nil for unknown addresses so the call cannot be used to
// probe which emails have accounts.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}
	if account == nil {
		return nil
	}

	_, err = e.IssueOneTimeToken(ctx, account.ID, PurposeSetPassword)
	return err
}
