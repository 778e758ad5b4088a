// Package storage persists service-fee payments.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/cuongbtq/servicefee/shared/postgresql"
	"github.com/lib/pq"
)

const (
	uniqueViolation   = "23505"
	openJobConstraint = "uq_service_fee_payments_open_job"
)

// AppliedHook runs after a winning transition and before it becomes visible.
// A non-nil error undoes the transition.
type AppliedHook func(ctx context.Context, p *domain.Payment) error

// Postgres stores payments in the service_fee_payments table
type Postgres struct {
	client *postgresql.Client
}

// NewPostgres creates a Postgres-backed payment store
func NewPostgres(client *postgresql.Client) *Postgres {
	return &Postgres{client: client}
}

// Create inserts a pending payment unless the job already has an open one
func (s *Postgres) Create(ctx context.Context, p *domain.Payment) error {
	row, err := newPaymentRow(p)
	if err != nil {
		return err
	}

	err = s.client.RunInTx(ctx, func(ctx context.Context) error {
		exec := s.client.Executor(ctx)

		var open struct {
			PaymentID string `db:"payment_id"`
			Status    string `db:"status"`
		}
		err := exec.GetContext(ctx, &open, `
			SELECT payment_id, status
			FROM service_fee_payments
			WHERE job_id = $1 AND status IN ('pending', 'paid')
			LIMIT 1
			FOR UPDATE
		`, p.JobID)
		switch {
		case err == nil:
			return &domain.ConflictError{Kind: domain.ConflictOpenPayment, PaymentID: open.PaymentID, Current: domain.Status(open.Status)}
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check open payments: %w", err)
		}

		_, err = exec.NamedExecContext(ctx, `
			INSERT INTO service_fee_payments (`+paymentColumns+`
			) VALUES (
				:payment_id, :job_id, :employer_id, :service_fee, :status, :payment_method,
				:fee_breakdown, :service_package, :additional_services, :qr_code_data,
				:expires_at, :paid_at, :cancelled_at, :cancel_reason, :cancelled_by,
				:transaction_id, :gateway_response, :schema_version, :created_at, :updated_at
			)
		`, row)
		return err
	})

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == openJobConstraint {
		// lost an insert race against another creator for the same job
		conflict := &domain.ConflictError{Kind: domain.ConflictOpenPayment}
		if existing, findErr := s.FindOpenByJob(ctx, p.JobID); findErr == nil {
			conflict.PaymentID = existing.PaymentID
			conflict.Current = existing.Status
		}
		return conflict
	}

	var conflict *domain.ConflictError
	if err != nil && !errors.As(err, &conflict) {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return err
}

// GetByID loads one payment
func (s *Postgres) GetByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	var row paymentRow
	err := s.client.Executor(ctx).GetContext(ctx, &row,
		`SELECT `+paymentColumns+` FROM service_fee_payments WHERE payment_id = $1`, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return row.toDomain()
}

// FindOpenByJob returns the pending or paid payment of a job
func (s *Postgres) FindOpenByJob(ctx context.Context, jobID string) (*domain.Payment, error) {
	var row paymentRow
	err := s.client.Executor(ctx).GetContext(ctx, &row, `
		SELECT `+paymentColumns+`
		FROM service_fee_payments
		WHERE job_id = $1 AND status IN ('pending', 'paid')
		ORDER BY created_at DESC
		LIMIT 1
	`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find open payment: %w", err)
	}
	return row.toDomain()
}

// CompareAndTransition moves a payment from expected to next in one conditional
// update. When the stored status is no longer expected it returns a
// *domain.ConflictError carrying the current status. onApplied, if set, runs in
// the same transaction as the update.
func (s *Postgres) CompareAndTransition(ctx context.Context, paymentID string, expected, next domain.Status, patch domain.TransitionPatch, onApplied AppliedHook) (*domain.Payment, error) {
	if !expected.CanTransitionTo(next) {
		return nil, fmt.Errorf("transition %s -> %s is not allowed", expected, next)
	}
	if patch.At.IsZero() {
		patch.At = time.Now()
	}

	var updated *domain.Payment
	err := s.client.RunInTx(ctx, func(ctx context.Context) error {
		exec := s.client.Executor(ctx)

		var row paymentRow
		err := exec.GetContext(ctx, &row, `
			UPDATE service_fee_payments
			SET status = $3,
			    paid_at = COALESCE($4, paid_at),
			    cancelled_at = COALESCE($5, cancelled_at),
			    cancel_reason = COALESCE(NULLIF($6, ''), cancel_reason),
			    cancelled_by = COALESCE(NULLIF($7, ''), cancelled_by),
			    transaction_id = COALESCE(NULLIF($8, ''), transaction_id),
			    gateway_response = COALESCE($9::jsonb, gateway_response),
			    updated_at = $10
			WHERE payment_id = $1 AND status = $2
			RETURNING `+paymentColumns,
			paymentID,
			string(expected),
			string(next),
			nullTime(patch.PaidAt),
			nullTime(patch.CancelledAt),
			patch.CancelReason,
			patch.CancelledBy,
			patch.TransactionID,
			nullString(string(patch.GatewayResponse)),
			patch.At,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return s.transitionMiss(ctx, paymentID)
		}
		if err != nil {
			return fmt.Errorf("failed to transition payment: %w", err)
		}

		updated, err = row.toDomain()
		if err != nil {
			return err
		}

		if onApplied != nil {
			return onApplied(ctx, updated.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// transitionMiss explains why a conditional update touched no row
func (s *Postgres) transitionMiss(ctx context.Context, paymentID string) error {
	var current string
	err := s.client.Executor(ctx).GetContext(ctx, &current,
		`SELECT status FROM service_fee_payments WHERE payment_id = $1`, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read payment status: %w", err)
	}
	return domain.NewFinalizedError(paymentID, domain.Status(current))
}

// ListOverdue returns pending payments whose deadline passed before now, oldest first
func (s *Postgres) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Payment, error) {
	var rows []paymentRow
	err := s.client.Executor(ctx).SelectContext(ctx, &rows, `
		SELECT `+paymentColumns+`
		FROM service_fee_payments
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue payments: %w", err)
	}
	return toDomainList(rows)
}

// List returns up to PageSize+1 payments so callers can tell whether another page exists
func (s *Postgres) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM service_fee_payments WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.EmployerID != "" {
		query += fmt.Sprintf(" AND employer_id = $%d", argIdx)
		args = append(args, filter.EmployerID)
		argIdx++
	}

	if filter.JobID != "" {
		query += fmt.Sprintf(" AND job_id = $%d", argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, payment_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.PaymentID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, payment_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []paymentRow
	if err := s.client.Executor(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return toDomainList(rows)
}

func toDomainList(rows []paymentRow) ([]*domain.Payment, error) {
	out := make([]*domain.Payment, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
