package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/servicefee/shared/rabbitmq"
)

const defaultPublishTimeout = 3 * time.Second

// Publisher is the message-broker operation the RabbitMQ sink needs
type Publisher interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

// RabbitMQSink publishes events for the worker to persist. Failures are logged
// and dropped.
type RabbitMQSink struct {
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
}

// NewRabbitMQSink creates a broker-backed sink
func NewRabbitMQSink(publisher Publisher, timeout time.Duration, logger *slog.Logger) *RabbitMQSink {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &RabbitMQSink{publisher: publisher, timeout: timeout, logger: logger}
}

// Record publishes on a context detached from the caller's cancellation, since
// the request that produced the event may already be finishing.
func (s *RabbitMQSink) Record(ctx context.Context, evt Event) {
	body, err := Encode(evt)
	if err != nil {
		s.logger.Error("Failed to encode audit event",
			slog.String("event_id", evt.EventID),
			slog.Any("error", err),
		)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	err = s.publisher.Publish(pubCtx, rabbitmq.Message{
		Body:        body,
		ContentType: "application/json",
		MessageID:   evt.EventID,
		Type:        string(evt.Type),
	})
	if err != nil {
		s.logger.Error("Failed to publish audit event",
			slog.String("event_id", evt.EventID),
			slog.String("payment_id", evt.PaymentID),
			slog.String("event_type", string(evt.Type)),
			slog.Any("error", err),
		)
	}
}
