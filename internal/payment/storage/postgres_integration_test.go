//go:build integration

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/cuongbtq/servicefee/internal/testutil/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client := pgtest.Start(t)
	store := NewPostgres(client)
	pgtest.InsertJob(t, client, "job-1", "emp-1")

	p := newPayment("PAY20260501090000000-AAAAAAAAAAAA", "job-1", t0)
	require.NoError(t, store.Create(ctx, p))

	err := store.Create(ctx, newPayment("PAY20260501090000001-BBBBBBBBBBBB", "job-1", t0))
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, p.PaymentID, conflict.PaymentID)

	got, err := store.GetByID(ctx, p.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, p.FeeBreakdown, got.FeeBreakdown)
	assert.Equal(t, domain.StatusPending, got.Status)

	paidAt := t0.Add(time.Minute)
	updated, err := store.CompareAndTransition(ctx, p.PaymentID, domain.StatusPending, domain.StatusPaid, domain.TransitionPatch{
		At: paidAt, PaidAt: &paidAt, TransactionID: "tx-1", GatewayResponse: json.RawMessage(`{"ok":true}`),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, updated.Status)
	assert.Equal(t, "tx-1", updated.TransactionID)
	assert.JSONEq(t, `{"ok":true}`, string(updated.GatewayResponse))

	_, err = store.CompareAndTransition(ctx, p.PaymentID, domain.StatusPending, domain.StatusCancelled, domain.TransitionPatch{At: paidAt}, nil)
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, domain.StatusPaid, conflict.Current)
}

func TestPostgres_HookFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	client := pgtest.Start(t)
	store := NewPostgres(client)
	pgtest.InsertJob(t, client, "job-1", "emp-1")

	p := newPayment("PAY20260501090000000-AAAAAAAAAAAA", "job-1", t0)
	require.NoError(t, store.Create(ctx, p))

	boom := errors.New("boom")
	_, err := store.CompareAndTransition(ctx, p.PaymentID, domain.StatusPending, domain.StatusPaid, domain.TransitionPatch{At: t0},
		func(ctx context.Context, _ *domain.Payment) error { return boom })
	assert.ErrorIs(t, err, boom)

	got, err := store.GetByID(ctx, p.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestPostgres_ConcurrentTransitions(t *testing.T) {
	ctx := context.Background()
	client := pgtest.Start(t)
	store := NewPostgres(client)
	pgtest.InsertJob(t, client, "job-1", "emp-1")

	p := newPayment("PAY20260501090000000-AAAAAAAAAAAA", "job-1", t0)
	require.NoError(t, store.Create(ctx, p))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, next := range []domain.Status{domain.StatusPaid, domain.StatusExpired, domain.StatusCancelled, domain.StatusPaid, domain.StatusExpired} {
		wg.Add(1)
		go func(next domain.Status) {
			defer wg.Done()
			if _, err := store.CompareAndTransition(ctx, p.PaymentID, domain.StatusPending, next, domain.TransitionPatch{At: t0}, nil); err == nil {
				wins.Add(1)
			}
		}(next)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestPostgres_LegacyBreakdownIsUpgraded(t *testing.T) {
	ctx := context.Background()
	client := pgtest.Start(t)
	store := NewPostgres(client)
	pgtest.InsertJob(t, client, "job-1", "emp-1")

	_, err := client.GetDB().Exec(`
		INSERT INTO service_fee_payments (payment_id, job_id, employer_id, service_fee, status, payment_method,
			fee_breakdown, service_package, expires_at, schema_version)
		VALUES ('legacy', 'job-1', 'emp-1', 99, 'failed', 'promptpay',
			'{"amount":99,"services":[{"serviceId":"basic","serviceName":"Basic Listing","unitFee":99,"totalFee":99}]}',
			'{"serviceId":"basic","name":"Basic Listing","fee":99}', NOW(), 1)
	`)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.FeeBreakdown.TotalServiceFee)
	assert.Equal(t, domain.CurrentSchemaVersion, got.SchemaVersion)
}
