package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeExpirer struct {
	mu      sync.Mutex
	backlog int
	err     error
	calls   int
	limits  []int
}

func (f *fakeExpirer) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	n := min(limit, f.backlog)
	f.backlog -= n
	return n, nil
}

func (f *fakeExpirer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSweepOnce(t *testing.T) {
	tests := []struct {
		name      string
		backlog   int
		err       error
		wantCount int
		wantCalls int
	}{
		{name: "empty", backlog: 0, wantCount: 0, wantCalls: 1},
		{name: "short batch", backlog: 7, wantCount: 7, wantCalls: 1},
		{name: "drains full batches", backlog: 25, wantCount: 25, wantCalls: 3},
		{name: "exact multiple needs a confirming batch", backlog: 20, wantCount: 20, wantCalls: 3},
		{name: "error stops the run", backlog: 100, err: errors.New("db down"), wantCount: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &fakeExpirer{backlog: tt.backlog, err: tt.err}
			s := New(exp, time.Minute, 10, discard)

			assert.Equal(t, tt.wantCount, s.SweepOnce(context.Background()))
			assert.Equal(t, tt.wantCalls, exp.Calls())
		})
	}
}

func TestSweepOnce_BoundedPerRun(t *testing.T) {
	exp := &fakeExpirer{backlog: 1 << 20}
	s := New(exp, time.Minute, 1, discard)

	assert.Equal(t, maxBatchesPerRun, s.SweepOnce(context.Background()))
}

func TestNew_Defaults(t *testing.T) {
	s := New(&fakeExpirer{}, 0, 0, discard)
	assert.Equal(t, DefaultInterval, s.interval)
	assert.Equal(t, DefaultBatchSize, s.batchSize)
}

func TestRun_StopsOnCancel(t *testing.T) {
	exp := &fakeExpirer{}
	s := New(exp, 10*time.Millisecond, 5, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return exp.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
