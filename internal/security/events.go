package security

import (
	"context"
	"time"

	"chordstream.io/internal/ids"
	"chordstream.io/internal/obs"
)

// Event type constants. Stable strings: they feed the audit trail and
// severity derivation.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailure       = "login_failure"
	EventLoginBruteForce    = "login_brute_force"
	EventLoginRateLimited   = "login_rate_limited"
	EventUnauthorizedAccess = "unauthorized_access"
	EventAccountLocked      = "account_locked"
	EventSuspiciousActivity = "suspicious_activity"
	EventRoleChange         = "role_change"
	EventPasswordChange     = "password_change"
	EventEmailChange        = "email_change"
	EventTokenRevoked       = "token_revoked"
)

// Severity is a coarse triage label for downstream alerting.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var severityByType = map[string]Severity{
	EventLoginBruteForce:    SeverityHigh,
	EventUnauthorizedAccess: SeverityHigh,
	EventAccountLocked:      SeverityMedium,
	EventSuspiciousActivity: SeverityMedium,
	EventRoleChange:         SeverityMedium,
	EventPasswordChange:     SeverityMedium,
	EventEmailChange:        SeverityMedium,
}

// SeverityFor derives severity from the event type. Unknown types are low.
func SeverityFor(eventType string) Severity {
	if s, ok := severityByType[eventType]; ok {
		return s
	}
	return SeverityLow
}

// Event is an immutable, write-once security event record. Consumed by an
// external audit sink; never read back by this subsystem.
type Event struct {
	ID              string
	Type            string
	SubjectUserID   string
	SourceAddress   string
	ClientSignature string
	OccurredAt      time.Time
	Details         map[string]string
	Severity        Severity
}

// Sink receives security events. Implementations must not be assumed
// reliable: recording failures are swallowed by the Recorder.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// RecorderOption configures Recorder behavior.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the time source (useful for tests).
func WithRecorderClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// Recorder builds security events with derived severity and forwards them
// to the sink. A sink failure never propagates: audit logging must not break
// the operation that triggered it.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// NewRecorder constructs a Recorder over the given sink.
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EventInput carries the caller-supplied portion of an event.
type EventInput struct {
	Type            string
	SubjectUserID   string
	SourceAddress   string
	ClientSignature string
	Details         map[string]string
}

// Record builds the event, counts it and hands it to the sink. The returned
// event is complete even when the sink fails.
func (r *Recorder) Record(ctx context.Context, in EventInput) Event {
	details := make(map[string]string, len(in.Details))
	for k, v := range in.Details {
		details[k] = v
	}

	event := Event{
		ID:              ids.New(),
		Type:            in.Type,
		SubjectUserID:   in.SubjectUserID,
		SourceAddress:   in.SourceAddress,
		ClientSignature: in.ClientSignature,
		OccurredAt:      r.now().UTC(),
		Details:         details,
		Severity:        SeverityFor(in.Type),
	}

	obs.ObserveSecurityEvent(event.Type, string(event.Severity))

	if r.sink != nil {
		if err := r.sink.Record(ctx, event); err != nil {
			obs.LogRequest(map[string]any{
				"ts":    r.now().UTC().Format(time.RFC3339Nano),
				"level": "error",
				"msg":   "security_event_sink_failed",
				"type":  event.Type,
				"err":   err.Error(),
			})
		}
	}

	return event
}
