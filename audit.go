package authcore

import (
	"context"
	"time"
)

// Audit event types emitted by the engine. Sign-in failures carry the
// precise internal reason here even though the caller only ever sees
// ErrInvalidCredentials.
const (
	AuditSignIn          = "signin"
	AuditSignInFailed    = "signin_failed"
	AuditRefresh         = "refresh"
	AuditRefreshFailed   = "refresh_failed"
	AuditVerifyRevoked   = "verify_revoked"
	AuditSignOut         = "signout"
	AuditSignOutAll      = "signout_everywhere"
	AuditOneTimeIssued   = "one_time_issued"
	AuditOneTimeRedeemed = "one_time_redeemed"
	AuditOneTimeRejected = "one_time_rejected"
	AuditDeliveryFailed  = "delivery_failed"
)

// AuditEvent is one engine-observed security event.
type AuditEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	AccountID   string    `json:"account_id,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Purpose     string    `json:"purpose,omitempty"`
	Success     bool      `json:"success"`
	Reason      string    `json:"reason,omitempty"`
}

// AuditSink receives events from the engine's async dispatcher. Emit must
// not block for long; a slow sink causes events to be dropped (counted)
// rather than stalling request handling.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

// Emit discards the event.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a channel, for tests and custom pipelines.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit delivers the event or gives up when ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receiving side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}
