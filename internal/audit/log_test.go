package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"chordstream.io/internal/obs"
	"chordstream.io/internal/security"
)

func TestLogSinkRecord(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := WithRequestID(context.Background(), "req-123")
	event := security.Event{
		ID:              "01JEVENT00000000000000000",
		Type:            security.EventLoginFailure,
		SubjectUserID:   "user-42",
		SourceAddress:   "203.0.113.9",
		ClientSignature: "cli/1.0",
		OccurredAt:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Severity:        security.SeverityLow,
		Details:         map[string]string{"identifier": "a@b.com"},
	}

	if err := (LogSink{}).Record(ctx, event); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "security_event" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != security.EventLoginFailure {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	if entry["severity"] != "low" {
		t.Fatalf("unexpected severity: %v", entry["severity"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["identifier"] != "a@b.com" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogSinkOmitsEmptyOptionalFields(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	event := security.Event{
		ID:         "01JEVENT00000000000000001",
		Type:       security.EventRoleChange,
		OccurredAt: time.Now().UTC(),
		Severity:   security.SeverityMedium,
	}
	if err := (LogSink{}).Record(context.Background(), event); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	for _, key := range []string{"request_id", "user_id", "source_address", "client_signature"} {
		if _, present := entry[key]; present {
			t.Fatalf("expected %s to be omitted, got %v", key, entry[key])
		}
	}
}
