// Package jobstore reads and activates the job postings that payments unlock.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/cuongbtq/servicefee/shared/postgresql"
)

// ErrPaidByOtherPayment is returned when a job is already paid through a different payment
var ErrPaidByOtherPayment = errors.New("job already paid by another payment")

type jobRow struct {
	JobID      string         `db:"job_id"`
	EmployerID string         `db:"employer_id"`
	IsActive   bool           `db:"is_active"`
	IsPaid     bool           `db:"is_paid"`
	PaidAt     sql.NullTime   `db:"paid_at"`
	PaymentID  sql.NullString `db:"payment_id"`
}

func (r jobRow) toDomain() *domain.Job {
	j := &domain.Job{
		JobID:      r.JobID,
		EmployerID: r.EmployerID,
		IsActive:   r.IsActive,
		IsPaid:     r.IsPaid,
		PaymentID:  r.PaymentID.String,
	}
	if r.PaidAt.Valid {
		t := r.PaidAt.Time
		j.PaidAt = &t
	}
	return j
}

// Postgres reads and updates the jobs table. Statements join the caller's
// transaction when ctx carries one.
type Postgres struct {
	client *postgresql.Client
	logger *slog.Logger
}

// NewPostgres creates a Postgres-backed job store
func NewPostgres(client *postgresql.Client, logger *slog.Logger) *Postgres {
	return &Postgres{client: client, logger: logger}
}

// GetJob loads the payment-relevant fields of a job posting
func (s *Postgres) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	err := s.client.Executor(ctx).GetContext(ctx, &row, `
		SELECT job_id, employer_id, is_active, is_paid, paid_at, payment_id
		FROM jobs
		WHERE job_id = $1
	`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain(), nil
}

// Activate marks the job paid and active. Repeating it for the same payment is a no-op.
func (s *Postgres) Activate(ctx context.Context, jobID, paymentID string, paidAt time.Time) error {
	result, err := s.client.Executor(ctx).ExecContext(ctx, `
		UPDATE jobs
		SET is_active = TRUE,
		    is_paid = TRUE,
		    paid_at = COALESCE(paid_at, $3),
		    payment_id = $2,
		    updated_at = NOW()
		WHERE job_id = $1
		  AND (is_paid = FALSE OR payment_id IS NULL OR payment_id = $2)
	`, jobID, paymentID, paidAt)
	if err != nil {
		return fmt.Errorf("failed to activate job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, err := s.GetJob(ctx, jobID); err != nil {
			return err
		}
		s.logger.Warn("Job already paid by another payment",
			slog.String("job_id", jobID),
			slog.String("payment_id", paymentID),
		)
		return ErrPaidByOtherPayment
	}

	s.logger.Info("Job activated",
		slog.String("job_id", jobID),
		slog.String("payment_id", paymentID),
	)
	return nil
}
