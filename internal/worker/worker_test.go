package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/servicefee/internal/audit"
	paymentdomain "github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/cuongbtq/servicefee/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settlement struct {
	acked   bool
	requeue bool
}

// fakeAcknowledger records how each delivery tag was settled
type fakeAcknowledger struct {
	mu      sync.Mutex
	settled map[uint64]settlement
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{settled: make(map[uint64]settlement)}
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled[tag] = settlement{acked: true}
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled[tag] = settlement{requeue: requeue}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) get(tag uint64) (settlement, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.settled[tag]
	return s, ok
}

type fakeStore struct {
	mu      sync.Mutex
	seen    map[string]bool
	failFor map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[string]bool), failFor: make(map[string]error)}
}

func (s *fakeStore) RecordEvent(ctx context.Context, evt audit.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[evt.PaymentID]; err != nil {
		return false, err
	}
	if s.seen[evt.EventID] {
		return false, nil
	}
	s.seen[evt.EventID] = true
	return true, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type fakeSource struct {
	deliveries chan amqp.Delivery
	err        error
}

func (f *fakeSource) Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.deliveries, nil
}

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context) {
	r.runs.Add(1)
	<-ctx.Done()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEvent(t *testing.T, paymentID string) audit.Event {
	t.Helper()
	p := &paymentdomain.Payment{
		PaymentID:  paymentID,
		JobID:      "job-1",
		EmployerID: "emp-1",
		Status:     paymentdomain.StatusPaid,
	}
	return audit.NewEvent(p, paymentdomain.StatusPending, paymentdomain.SourceWebhook, time.Now())
}

func delivery(t *testing.T, ack amqp.Acknowledger, tag uint64, evt audit.Event) amqp.Delivery {
	t.Helper()
	body, err := audit.Encode(evt)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
}

func TestWorker_SettlesDeliveries(t *testing.T) {
	ack := newFakeAcknowledger()
	store := newFakeStore()
	store.failFor["PAY-DOWN"] = errors.New("connection refused")
	source := &fakeSource{deliveries: make(chan amqp.Delivery)}
	sweeper := &countingRunner{}

	w := NewWorker(&Config{
		Logger:       testLogger(),
		Events:       store,
		Consumer:     source,
		Sweeper:      sweeper,
		WorkerID:     "worker-test",
		Concurrency:  2,
		EventTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	paid := newEvent(t, "PAY-1")
	source.deliveries <- delivery(t, ack, 1, paid)
	source.deliveries <- delivery(t, ack, 2, paid)
	source.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte("{not json")}
	source.deliveries <- delivery(t, ack, 4, newEvent(t, "PAY-DOWN"))

	invalid := newEvent(t, "PAY-2")
	invalid.EventID = "not-a-uuid"
	source.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 5, Body: []byte(fmt.Sprintf(`{"event_id":%q}`, invalid.EventID))}

	want := map[uint64]settlement{
		1: {acked: true},
		2: {acked: true},
		3: {requeue: false},
		4: {requeue: true},
		5: {requeue: false},
	}
	assert.Eventually(t, func() bool {
		for tag := range want {
			if _, ok := ack.get(tag); !ok {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	for tag, expected := range want {
		got, _ := ack.get(tag)
		assert.Equal(t, expected, got, "delivery %d", tag)
	}
	assert.Equal(t, 1, store.count())
	assert.Equal(t, int32(1), sweeper.runs.Load())

	cancel()
	require.NoError(t, <-done)
	w.Stop()
}

func TestWorker_StartFailsWhenConsumeFails(t *testing.T) {
	w := NewWorker(&Config{
		Logger:   testLogger(),
		Events:   newFakeStore(),
		Consumer: &fakeSource{err: errors.New("not connected to RabbitMQ")},
		WorkerID: "worker-test",
	})

	err := w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestWorker_StopUnblocksStart(t *testing.T) {
	sweeper := &countingRunner{}
	w := NewWorker(&Config{Logger: testLogger(), Sweeper: sweeper, WorkerID: "worker-test"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool { return sweeper.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// the sweeper exits on ctx, so cancel before waiting on Stop
	go func() {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		cancel()
	}()
	w.Stop()
}

func TestProcessEvent_RejectsInvalidEvent(t *testing.T) {
	w := NewWorker(&Config{Logger: testLogger(), Events: newFakeStore()})

	evt := newEvent(t, "PAY-1")
	evt.PaymentID = ""
	err := w.processEvent(context.Background(), &domain.EventMessage{Event: evt})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
	assert.False(t, shouldRequeue(err))
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "retryable", err: domain.NewRetryableError(errors.New("timeout")), want: true},
		{name: "wrapped retryable", err: fmt.Errorf("store: %w", domain.NewRetryableError(errors.New("timeout"))), want: true},
		{name: "invalid event", err: fmt.Errorf("%w: bad id", domain.ErrInvalidEvent), want: false},
		{name: "unknown", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err))
		})
	}
}
