package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newPayment(id, jobID string, createdAt time.Time) *domain.Payment {
	return &domain.Payment{
		PaymentID:     id,
		JobID:         jobID,
		EmployerID:    "emp-1",
		ServiceFee:    298,
		Status:        domain.StatusPending,
		PaymentMethod: domain.MethodPromptPay,
		FeeBreakdown: domain.FeeBreakdown{
			Subtotal: 298, TotalBeforeTax: 298, TotalServiceFee: 298,
			Services: []domain.ServiceLine{{ServiceID: "standard", UnitFee: 199, TotalFee: 199}, {ServiceID: "featured", UnitFee: 99, TotalFee: 99}},
		},
		ExpiresAt: createdAt.Add(domain.DefaultPaymentTTL),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestMemory_CreateRejectsSecondOpenPayment(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Create(ctx, newPayment("p1", "job-1", t0)))

	err := m.Create(ctx, newPayment("p2", "job-1", t0))
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, domain.ConflictOpenPayment, conflict.Kind)
	assert.Equal(t, "p1", conflict.PaymentID)

	// a closed payment no longer blocks the job
	_, err = m.CompareAndTransition(ctx, "p1", domain.StatusPending, domain.StatusFailed, domain.TransitionPatch{At: t0}, nil)
	require.NoError(t, err)
	assert.NoError(t, m.Create(ctx, newPayment("p2", "job-1", t0)))
}

func TestMemory_StoredCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := newPayment("p1", "job-1", t0)
	require.NoError(t, m.Create(ctx, p))

	p.Status = domain.StatusPaid
	p.FeeBreakdown.Services[0].TotalFee = 1

	got, err := m.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, int64(199), got.FeeBreakdown.Services[0].TotalFee)
	assert.Equal(t, domain.CurrentSchemaVersion, got.SchemaVersion)

	_, err = m.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemory_CompareAndTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("applies patch", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Create(ctx, newPayment("p1", "job-1", t0)))

		paidAt := t0.Add(time.Minute)
		got, err := m.CompareAndTransition(ctx, "p1", domain.StatusPending, domain.StatusPaid,
			domain.TransitionPatch{At: paidAt, PaidAt: &paidAt, TransactionID: "tx-1"}, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, got.Status)
		assert.Equal(t, "tx-1", got.TransactionID)
		require.NotNil(t, got.PaidAt)
		assert.True(t, paidAt.Equal(*got.PaidAt))
	})

	t.Run("stale expectation reports current status", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Create(ctx, newPayment("p1", "job-1", t0)))
		_, err := m.CompareAndTransition(ctx, "p1", domain.StatusPending, domain.StatusCancelled, domain.TransitionPatch{At: t0}, nil)
		require.NoError(t, err)

		_, err = m.CompareAndTransition(ctx, "p1", domain.StatusPending, domain.StatusPaid, domain.TransitionPatch{At: t0}, nil)
		var conflict *domain.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, domain.StatusCancelled, conflict.Current)
		assert.Equal(t, "payment already cancelled", conflict.Error())
	})

	t.Run("illegal transition", func(t *testing.T) {
		m := NewMemory()
		_, err := m.CompareAndTransition(ctx, "p1", domain.StatusPaid, domain.StatusPending, domain.TransitionPatch{}, nil)
		assert.Error(t, err)
	})

	t.Run("missing payment", func(t *testing.T) {
		m := NewMemory()
		_, err := m.CompareAndTransition(ctx, "nope", domain.StatusPending, domain.StatusPaid, domain.TransitionPatch{}, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("hook failure leaves payment pending", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Create(ctx, newPayment("p1", "job-1", t0)))

		hookErr := errors.New("activation failed")
		_, err := m.CompareAndTransition(ctx, "p1", domain.StatusPending, domain.StatusPaid, domain.TransitionPatch{At: t0},
			func(ctx context.Context, p *domain.Payment) error {
				assert.Equal(t, domain.StatusPaid, p.Status)
				return hookErr
			})
		assert.ErrorIs(t, err, hookErr)

		got, err := m.GetByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
	})
}

func TestMemory_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, newPayment("p1", "job-1", t0)))

	targets := []domain.Status{domain.StatusPaid, domain.StatusExpired, domain.StatusCancelled, domain.StatusFailed}
	var wins, hooks atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(next domain.Status) {
			defer wg.Done()
			_, err := m.CompareAndTransition(ctx, "p1", domain.StatusPending, next, domain.TransitionPatch{At: t0},
				func(ctx context.Context, p *domain.Payment) error {
					hooks.Add(1)
					return nil
				})
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrConflict)
		}(targets[i%len(targets)])
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), hooks.Load())
}

func TestMemory_ListOverdue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 0; i < 3; i++ {
		p := newPayment(fmt.Sprintf("p%d", i), fmt.Sprintf("job-%d", i), t0)
		p.ExpiresAt = t0.Add(time.Duration(3-i) * time.Minute)
		require.NoError(t, m.Create(ctx, p))
	}
	fresh := newPayment("p-fresh", "job-fresh", t0)
	require.NoError(t, m.Create(ctx, fresh))

	got, err := m.ListOverdue(ctx, t0.Add(time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p2", got[0].PaymentID)
	assert.Equal(t, "p1", got[1].PaymentID)
}

func TestMemory_ListPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 0; i < 5; i++ {
		p := newPayment(fmt.Sprintf("p%d", i), fmt.Sprintf("job-%d", i), t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, m.Create(ctx, p))
	}
	other := newPayment("other", "job-x", t0)
	other.EmployerID = "emp-2"
	require.NoError(t, m.Create(ctx, other))

	page, err := m.List(ctx, domain.ListFilter{EmployerID: "emp-1", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, []string{"p4", "p3", "p2"}, ids(page))

	next := &domain.Cursor{CreatedAt: page[1].CreatedAt, PaymentID: page[1].PaymentID}
	page, err = m.List(ctx, domain.ListFilter{EmployerID: "emp-1", PageSize: 2, Cursor: next})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1", "p0"}, ids(page))
}

func ids(ps []*domain.Payment) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.PaymentID)
	}
	return out
}
