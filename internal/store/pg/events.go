package pg

import (
	"context"
	"encoding/json"

	"chordstream.io/internal/security"
)

var _ security.Sink = (*Store)(nil)

// Record appends the event to the security_events table. Insert-only: the
// subsystem never reads events back.
func (s *Store) Record(ctx context.Context, event security.Event) error {
	details := event.Details
	if details == nil {
		details = map[string]string{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into security_events (id, event_type, severity, subject_user_id,
			source_address, client_signature, occurred_at, details)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, event.ID, event.Type, string(event.Severity), event.SubjectUserID,
		event.SourceAddress, event.ClientSignature, event.OccurredAt, payload)
	return err
}
