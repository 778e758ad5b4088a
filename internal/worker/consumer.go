package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/servicefee/internal/audit"
	"github.com/cuongbtq/servicefee/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// startMessageDispatcher decodes audit deliveries and hands them to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - stopChan closed")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			evt, err := audit.Decode(delivery.Body)
			if err != nil {
				w.logger.Error("Dropping malformed audit event",
					slog.String("error", err.Error()),
					slog.Int("body_bytes", len(delivery.Body)),
				)
				// malformed messages go to the dead-letter exchange, if any
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			msg := &domain.EventMessage{Event: evt, Delivery: delivery}

			select {
			case w.eventsChan <- msg:
				w.logger.Debug("Audit event dispatched to worker pool",
					slog.String("event_id", evt.EventID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching event")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
