// Package audit records payment lifecycle events. Recording never fails the
// operation that produced the event.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/google/uuid"
)

// EventType names a lifecycle event
type EventType string

const (
	EventPaymentCreated   EventType = "payment.created"
	EventPaymentPaid      EventType = "payment.paid"
	EventPaymentFailed    EventType = "payment.failed"
	EventPaymentExpired   EventType = "payment.expired"
	EventPaymentCancelled EventType = "payment.cancelled"
)

// EventTypeFor maps the status a payment entered onto its event type
func EventTypeFor(status domain.Status) EventType {
	switch status {
	case domain.StatusPaid:
		return EventPaymentPaid
	case domain.StatusFailed:
		return EventPaymentFailed
	case domain.StatusExpired:
		return EventPaymentExpired
	case domain.StatusCancelled:
		return EventPaymentCancelled
	default:
		return EventPaymentCreated
	}
}

// Event is one audit record
type Event struct {
	EventID    string            `json:"event_id"`
	Type       EventType         `json:"event_type"`
	PaymentID  string            `json:"payment_id"`
	JobID      string            `json:"job_id"`
	EmployerID string            `json:"employer_id"`
	FromStatus domain.Status     `json:"from_status,omitempty"`
	ToStatus   domain.Status     `json:"to_status"`
	Source     domain.Source     `json:"source"`
	OccurredAt time.Time         `json:"occurred_at"`
	Details    map[string]string `json:"details,omitempty"`
}

// NewEvent builds an event for a payment that entered its current status
func NewEvent(p *domain.Payment, from domain.Status, source domain.Source, at time.Time) Event {
	return Event{
		EventID:    uuid.NewString(),
		Type:       EventTypeFor(p.Status),
		PaymentID:  p.PaymentID,
		JobID:      p.JobID,
		EmployerID: p.EmployerID,
		FromStatus: from,
		ToStatus:   p.Status,
		Source:     source,
		OccurredAt: at.UTC(),
	}
}

// Validate checks the fields a consumer relies on
func (e Event) Validate() error {
	if _, err := uuid.Parse(e.EventID); err != nil {
		return fmt.Errorf("invalid event id %q: %w", e.EventID, err)
	}
	if e.PaymentID == "" {
		return fmt.Errorf("payment id is required")
	}
	if _, ok := domain.ParseStatus(string(e.ToStatus)); !ok {
		return fmt.Errorf("invalid to_status %q", e.ToStatus)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// Sink accepts audit events
type Sink interface {
	Record(ctx context.Context, evt Event)
}

// LogSink writes events to the structured log
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink backed by logger
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, evt Event) {
	s.logger.InfoContext(ctx, "Payment audit event",
		slog.String("event_id", evt.EventID),
		slog.String("event_type", string(evt.Type)),
		slog.String("payment_id", evt.PaymentID),
		slog.String("job_id", evt.JobID),
		slog.String("from_status", string(evt.FromStatus)),
		slog.String("to_status", string(evt.ToStatus)),
		slog.String("source", string(evt.Source)),
	)
}

// MemorySink keeps events in order; used by tests and local runs
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(ctx context.Context, evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

// Events returns a copy of the recorded events
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Count returns how many events of type t were recorded for paymentID
func (s *MemorySink) Count(paymentID string, t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.events {
		if e.PaymentID == paymentID && e.Type == t {
			n++
		}
	}
	return n
}

// Multi fans one event out to several sinks
type Multi []Sink

func (m Multi) Record(ctx context.Context, evt Event) {
	for _, s := range m {
		s.Record(ctx, evt)
	}
}

// Encode serializes an event for transport
func Encode(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// Decode parses and validates an event received from transport
func Decode(body []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("malformed audit event: %w", err)
	}
	if err := evt.Validate(); err != nil {
		return Event{}, err
	}
	return evt, nil
}
