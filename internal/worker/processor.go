package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/servicefee/internal/worker/domain"
)

// processEvent stores one audit event. A duplicate delivery counts as success.
func (w *Worker) processEvent(ctx context.Context, msg *domain.EventMessage) error {
	evt := msg.Event
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}

	eventCtx, cancel := context.WithTimeout(ctx, w.eventTimeout)
	defer cancel()

	inserted, err := w.events.RecordEvent(eventCtx, evt)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to record event %s: %w", evt.EventID, err))
	}

	w.logger.Info("Audit event recorded",
		slog.String("event_id", evt.EventID),
		slog.String("event_type", string(evt.Type)),
		slog.String("payment_id", evt.PaymentID),
		slog.Bool("duplicate", !inserted),
	)

	return nil
}
