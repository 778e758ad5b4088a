package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/servicefee/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg := <-w.eventsChan:
			w.settle(workerName, msg, w.processEvent(ctx, msg))
		}
	}
}

// settle acks or nacks the delivery behind msg according to the processing result
func (w *Worker) settle(workerName string, msg *domain.EventMessage, err error) {
	if err != nil {
		requeue := shouldRequeue(err)
		w.logger.Error("Audit event processing failed",
			slog.String("worker_name", workerName),
			slog.String("event_id", msg.Event.EventID),
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue),
		)
		if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.String("event_id", msg.Event.EventID),
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := msg.Delivery.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("worker_name", workerName),
			slog.String("event_id", msg.Event.EventID),
			slog.String("error", ackErr.Error()),
		)
	}
}

// shouldRequeue reports whether a failed event is worth another delivery
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrInvalidEvent) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
