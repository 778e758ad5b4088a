//go:build integration

package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/servicefee/internal/audit"
	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/cuongbtq/servicefee/internal/testutil/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_RecordEventIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := pgtest.Start(t)
	s := NewStorage(client.GetDB(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	p := &domain.Payment{PaymentID: "PAY1", JobID: "job-1", EmployerID: "emp-1", Status: domain.StatusPending}
	created := audit.NewEvent(p, "", domain.SourceUser, time.Now())

	p.Status = domain.StatusPaid
	paid := audit.NewEvent(p, domain.StatusPending, domain.SourceWebhook, time.Now().Add(time.Second))
	paid.Details = map[string]string{"transaction_id": "tx-1"}

	inserted, err := s.RecordEvent(ctx, created)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.RecordEvent(ctx, paid)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.RecordEvent(ctx, paid)
	require.NoError(t, err)
	assert.False(t, inserted)

	types, err := s.EventsForPayment(ctx, "PAY1")
	require.NoError(t, err)
	assert.Equal(t, []string{"payment.created", "payment.paid"}, types)
}
