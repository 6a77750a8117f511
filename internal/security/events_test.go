package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	events []Event
	err    error
}

func (s *captureSink) Record(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return s.err
}

func TestSeverityTable(t *testing.T) {
	cases := map[string]Severity{
		EventLoginBruteForce:    SeverityHigh,
		EventUnauthorizedAccess: SeverityHigh,
		EventAccountLocked:      SeverityMedium,
		EventSuspiciousActivity: SeverityMedium,
		EventRoleChange:         SeverityMedium,
		EventPasswordChange:     SeverityMedium,
		EventEmailChange:        SeverityMedium,
		EventLoginSuccess:       SeverityLow,
		EventLoginFailure:       SeverityLow,
		"something_else":        SeverityLow,
	}
	for eventType, expected := range cases {
		require.Equal(t, expected, SeverityFor(eventType), "type %s", eventType)
	}
}

func TestRecorderBuildsCompleteEvent(t *testing.T) {
	sink := &captureSink{}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recorder := NewRecorder(sink, WithRecorderClock(func() time.Time { return at }))

	event := recorder.Record(context.Background(), EventInput{
		Type:            EventSuspiciousActivity,
		SubjectUserID:   "user-1",
		SourceAddress:   "203.0.113.10",
		ClientSignature: "ua-1",
		Details:         map[string]string{"reasons": "rapid attempts"},
	})

	require.NotEmpty(t, event.ID)
	require.Equal(t, EventSuspiciousActivity, event.Type)
	require.Equal(t, SeverityMedium, event.Severity)
	require.Equal(t, at, event.OccurredAt)
	require.Equal(t, "rapid attempts", event.Details["reasons"])

	require.Len(t, sink.events, 1)
	require.Equal(t, event.ID, sink.events[0].ID)
}

func TestRecorderSinkFailureIsSwallowed(t *testing.T) {
	sink := &captureSink{err: errors.New("sink unavailable")}
	recorder := NewRecorder(sink)

	event := recorder.Record(context.Background(), EventInput{Type: EventLoginFailure})
	require.NotEmpty(t, event.ID)
	require.Equal(t, SeverityLow, event.Severity)
}

func TestRecorderCopiesDetails(t *testing.T) {
	sink := &captureSink{}
	recorder := NewRecorder(sink)

	details := map[string]string{"k": "v"}
	event := recorder.Record(context.Background(), EventInput{
		Type:    EventLoginFailure,
		Details: details,
	})
	details["k"] = "mutated"

	require.Equal(t, "v", event.Details["k"])
}

func TestRecorderNilSink(t *testing.T) {
	recorder := NewRecorder(nil)
	event := recorder.Record(context.Background(), EventInput{Type: EventLoginSuccess})
	require.NotEmpty(t, event.ID)
}
