package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/servicefee/internal/audit"
	"github.com/cuongbtq/servicefee/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultEventTimeout = 10 * time.Second

// EventStore persists audit events. inserted is false for an event already stored.
type EventStore interface {
	RecordEvent(ctx context.Context, evt audit.Event) (inserted bool, err error)
}

// DeliverySource yields audit deliveries with manual acknowledgement
type DeliverySource interface {
	Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
}

// Runner is a background loop that runs until its context is canceled
type Runner interface {
	Run(ctx context.Context)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Events        EventStore
	Consumer      DeliverySource
	Sweeper       Runner
	WorkerID      string
	Concurrency   int
	PrefetchCount int
	EventTimeout  time.Duration
}

// Worker consumes payment audit events and runs the expiry sweeper
type Worker struct {
	logger        *slog.Logger
	events        EventStore
	consumer      DeliverySource
	sweeper       Runner
	workerID      string
	concurrency   int
	prefetchCount int
	eventTimeout  time.Duration
	eventsChan    chan *domain.EventMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	eventTimeout := cfg.EventTimeout
	if eventTimeout <= 0 {
		eventTimeout = defaultEventTimeout
	}

	return &Worker{
		logger:        cfg.Logger,
		events:        cfg.Events,
		consumer:      cfg.Consumer,
		sweeper:       cfg.Sweeper,
		workerID:      cfg.WorkerID,
		concurrency:   concurrency,
		prefetchCount: cfg.PrefetchCount,
		eventTimeout:  eventTimeout,
		eventsChan:    make(chan *domain.EventMessage, concurrency),
		stopChan:      make(chan struct{}),
	}
}

// Start runs the sweeper and the audit consumer. It blocks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("event_timeout", w.eventTimeout),
	)

	if w.sweeper != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.sweeper.Run(ctx)
		}()
	}

	if w.consumer != nil {
		deliveries, err := w.consumer.Consume(w.workerID, w.prefetchCount)
		if err != nil {
			return fmt.Errorf("failed to start audit consumer: %w", err)
		}

		w.spawnWorkerPool(ctx)

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startMessageDispatcher(ctx, deliveries)
		}()
	}

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
	case <-w.stopChan:
	}

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
