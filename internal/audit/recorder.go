package audit

import (
	"context"
	"log/slog"
)

// Recorder decouples request handling from event delivery with a buffered
// inbox. Emit never blocks; Run drains the inbox to the publisher until the
// context is cancelled.
type Recorder struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewRecorder creates a recorder with the given inbox capacity.
func NewRecorder(buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit enqueues an event. When the inbox is full the event is dropped and
// logged; audit delivery is best-effort.
func (r *Recorder) Emit(_ context.Context, event Event) error {
	select {
	case r.inbox <- event:
	default:
		r.logger.Warn("audit inbox full, dropping event",
			"action", string(event.Action),
			"primary_contact_id", event.PrimaryContactID,
		)
	}
	return nil
}

// Run consumes events and hands them to the publisher. Publisher failures
// are logged, not returned, so one bad event cannot stall the drain loop.
func (r *Recorder) Run(ctx context.Context, publisher Publisher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-r.inbox:
			if err := publisher.Emit(ctx, event); err != nil {
				r.logger.Error("audit publish failed",
					"action", string(event.Action),
					"event_id", event.ID,
					"error", err.Error(),
				)
			}
		}
	}
}
