package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
)

// Memory is an in-process payment store with the same conditional-update
// semantics as Postgres. Stored payments are copied on the way in and out.
type Memory struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{payments: make(map[string]*domain.Payment)}
}

func (m *Memory) Create(ctx context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.payments[p.PaymentID]; exists {
		return fmt.Errorf("payment %s already exists", p.PaymentID)
	}

	for _, existing := range m.payments {
		if existing.JobID == p.JobID && existing.Status.IsOpen() {
			return &domain.ConflictError{Kind: domain.ConflictOpenPayment, PaymentID: existing.PaymentID, Current: existing.Status}
		}
	}

	stored := p.Clone()
	if stored.SchemaVersion == 0 {
		stored.SchemaVersion = domain.CurrentSchemaVersion
	}
	m.payments[p.PaymentID] = stored
	return nil
}

func (m *Memory) GetByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) FindOpenByJob(ctx context.Context, jobID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.JobID == jobID && p.Status.IsOpen() {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

// CompareAndTransition applies the transition only if the stored status equals
// expected. The hook sees the updated payment while the store is locked; if it
// fails the stored payment is left untouched.
func (m *Memory) CompareAndTransition(ctx context.Context, paymentID string, expected, next domain.Status, patch domain.TransitionPatch, onApplied AppliedHook) (*domain.Payment, error) {
	if !expected.CanTransitionTo(next) {
		return nil, fmt.Errorf("transition %s -> %s is not allowed", expected, next)
	}
	if patch.At.IsZero() {
		patch.At = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.payments[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if stored.Status != expected {
		return nil, domain.NewFinalizedError(paymentID, stored.Status)
	}

	updated := stored.Clone()
	patch.Apply(updated, next)

	if onApplied != nil {
		if err := onApplied(ctx, updated.Clone()); err != nil {
			return nil, err
		}
	}

	m.payments[paymentID] = updated
	return updated.Clone(), nil
}

func (m *Memory) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Payment
	for _, p := range m.payments {
		if p.IsOverdue(now) {
			out = append(out, p.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Payment
	for _, p := range m.payments {
		if filter.EmployerID != "" && p.EmployerID != filter.EmployerID {
			continue
		}
		if filter.JobID != "" && p.JobID != filter.JobID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if c := filter.Cursor; c != nil && !olderThan(p, c) {
			continue
		}
		out = append(out, p.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return olderThan(out[j], &domain.Cursor{CreatedAt: out[i].CreatedAt, PaymentID: out[i].PaymentID})
	})

	if filter.PageSize > 0 && len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

// olderThan reports whether p comes after the cursor in (created_at, payment_id) descending order
func olderThan(p *domain.Payment, c *domain.Cursor) bool {
	if !p.CreatedAt.Equal(c.CreatedAt) {
		return p.CreatedAt.Before(c.CreatedAt)
	}
	return p.PaymentID < c.PaymentID
}
