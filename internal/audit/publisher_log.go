package audit

import (
	"context"
	"log/slog"
)

// LogPublisher writes audit events to the structured log. Used when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Emit(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "audit event",
		"event_id", event.ID,
		"action", string(event.Action),
		"primary_contact_id", event.PrimaryContactID,
		"contact_id", event.ContactID,
		"demoted_ids", event.DemotedIDs,
		"request_id", event.RequestID,
		"log_type", "audit",
	)
	return nil
}
