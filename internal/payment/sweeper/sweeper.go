// Package sweeper periodically expires pending payments that are past their deadline.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultInterval  = 5 * time.Minute
	DefaultBatchSize = 100

	// maxBatchesPerRun bounds one run when the backlog keeps refilling
	maxBatchesPerRun = 50
)

// Expirer expires up to limit overdue payments and reports how many it expired
type Expirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// Sweeper drives an Expirer on a fixed interval
type Sweeper struct {
	expirer   Expirer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// New creates a sweeper; non-positive interval or batch size fall back to defaults
func New(expirer Expirer, interval time.Duration, batchSize int, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Sweeper{
		expirer:   expirer,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Expiry sweeper started",
		slog.Duration("interval", s.interval),
		slog.Int("batch_size", s.batchSize),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.SweepOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce expires overdue payments batch by batch until a batch comes back
// short. It returns the number of payments expired.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	total := 0
	for batch := 0; batch < maxBatchesPerRun; batch++ {
		if ctx.Err() != nil {
			break
		}

		expired, err := s.expirer.ExpireOverdue(ctx, s.batchSize)
		total += expired
		if err != nil {
			s.logger.Error("Expiry sweep failed",
				slog.Int("expired", expired),
				slog.Any("error", err),
			)
			break
		}
		if expired < s.batchSize {
			break
		}
	}

	if total > 0 {
		s.logger.Info("Expired overdue payments", slog.Int("count", total))
	}
	return total
}
