package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
)

// Memory is an in-process job store that also counts activations
type Memory struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	activations map[string]int
	failWith    error
}

// NewMemory creates an empty job store
func NewMemory() *Memory {
	return &Memory{
		jobs:        make(map[string]*domain.Job),
		activations: make(map[string]int),
	}
}

// Put adds or replaces a job
func (m *Memory) Put(job domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.JobID] = &job
}

// FailActivations makes every following Activate return err; nil restores normal behavior
func (m *Memory) FailActivations(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Activations reports how many times Activate changed a job
func (m *Memory) Activations(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activations[jobID]
}

func (m *Memory) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	c := *job
	return &c, nil
}

func (m *Memory) Activate(ctx context.Context, jobID, paymentID string, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}

	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.IsPaid && job.PaymentID != "" && job.PaymentID != paymentID {
		return ErrPaidByOtherPayment
	}
	if job.IsPaid && job.PaymentID == paymentID {
		return nil
	}

	t := paidAt
	job.IsActive = true
	job.IsPaid = true
	job.PaidAt = &t
	job.PaymentID = paymentID
	m.activations[jobID]++
	return nil
}
