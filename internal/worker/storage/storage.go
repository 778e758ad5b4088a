package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/servicefee/internal/audit"
	"github.com/jmoiron/sqlx"
)

// Storage persists audit events consumed by the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// RecordEvent inserts evt unless an event with the same id exists.
// It reports whether a row was written.
func (s *Storage) RecordEvent(ctx context.Context, evt audit.Event) (bool, error) {
	query := `
		INSERT INTO payment_audit_events
			(event_id, event_type, payment_id, job_id, employer_id, from_status, to_status, source, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
	`

	details := evt.Details
	if details == nil {
		details = map[string]string{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event details: %w", err)
	}

	fromStatus := sql.NullString{String: string(evt.FromStatus), Valid: evt.FromStatus != ""}

	result, err := s.db.ExecContext(ctx, query,
		evt.EventID,
		string(evt.Type),
		evt.PaymentID,
		evt.JobID,
		evt.EmployerID,
		fromStatus,
		string(evt.ToStatus),
		string(evt.Source),
		string(detailsJSON),
		evt.OccurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert audit event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Info("Audit event already recorded",
			slog.String("event_id", evt.EventID),
			slog.String("payment_id", evt.PaymentID),
		)
		return false, nil
	}

	return true, nil
}

// EventsForPayment lists the recorded event types for a payment in occurrence order
func (s *Storage) EventsForPayment(ctx context.Context, paymentID string) ([]string, error) {
	var types []string
	err := s.db.SelectContext(ctx, &types, `
		SELECT event_type FROM payment_audit_events
		WHERE payment_id = $1
		ORDER BY occurred_at, recorded_at
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return types, nil
}
