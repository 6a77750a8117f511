// Package audit writes security events as structured JSON log lines. It is
// the always-on event sink; the Postgres sink complements it when a database
// is configured.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"chordstream.io/internal/obs"
	"chordstream.io/internal/security"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogSink records security events to the shared structured logger.
type LogSink struct{}

// Record writes the event as a single JSON line.
func (LogSink) Record(ctx context.Context, event security.Event) error {
	entry := map[string]any{
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
		"type":     "security_event",
		"event":    event.Type,
		"event_id": event.ID,
		"severity": string(event.Severity),
		"at":       event.OccurredAt.Format(time.RFC3339Nano),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if event.SubjectUserID != "" {
		entry["user_id"] = event.SubjectUserID
	}
	if event.SourceAddress != "" {
		entry["source_address"] = event.SourceAddress
	}
	if event.ClientSignature != "" {
		entry["client_signature"] = event.ClientSignature
	}
	if len(event.Details) > 0 {
		fields := make(map[string]any, len(event.Details))
		for k, v := range event.Details {
			fields[k] = v
		}
		entry["fields"] = fields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
