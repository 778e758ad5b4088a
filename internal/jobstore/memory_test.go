package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Activate(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	m := NewMemory()
	m.Put(domain.Job{JobID: "job-1", EmployerID: "emp-1"})

	require.NoError(t, m.Activate(ctx, "job-1", "p1", at))
	require.NoError(t, m.Activate(ctx, "job-1", "p1", at.Add(time.Hour)))
	assert.Equal(t, 1, m.Activations("job-1"))

	job, err := m.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, job.IsActive)
	assert.True(t, job.IsPaid)
	assert.Equal(t, "p1", job.PaymentID)
	assert.True(t, at.Equal(*job.PaidAt))

	assert.ErrorIs(t, m.Activate(ctx, "job-1", "p2", at), ErrPaidByOtherPayment)
	assert.ErrorIs(t, m.Activate(ctx, "missing", "p1", at), domain.ErrJobNotFound)
}

func TestMemory_FailActivations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put(domain.Job{JobID: "job-1", EmployerID: "emp-1"})

	boom := errors.New("boom")
	m.FailActivations(boom)
	assert.ErrorIs(t, m.Activate(ctx, "job-1", "p1", time.Now()), boom)
	assert.Equal(t, 0, m.Activations("job-1"))

	m.FailActivations(nil)
	assert.NoError(t, m.Activate(ctx, "job-1", "p1", time.Now()))
}
