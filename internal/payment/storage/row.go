package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
)

const paymentColumns = `
	payment_id, job_id, employer_id, service_fee, status, payment_method,
	fee_breakdown, service_package, additional_services, qr_code_data,
	expires_at, paid_at, cancelled_at, cancel_reason, cancelled_by,
	transaction_id, gateway_response, schema_version, created_at, updated_at`

type paymentRow struct {
	PaymentID          string         `db:"payment_id"`
	JobID              string         `db:"job_id"`
	EmployerID         string         `db:"employer_id"`
	ServiceFee         int64          `db:"service_fee"`
	Status             string         `db:"status"`
	PaymentMethod      string         `db:"payment_method"`
	FeeBreakdown       string         `db:"fee_breakdown"`
	ServicePackage     string         `db:"service_package"`
	AdditionalServices string         `db:"additional_services"`
	QRCodeData         sql.NullString `db:"qr_code_data"`
	ExpiresAt          time.Time      `db:"expires_at"`
	PaidAt             sql.NullTime   `db:"paid_at"`
	CancelledAt        sql.NullTime   `db:"cancelled_at"`
	CancelReason       sql.NullString `db:"cancel_reason"`
	CancelledBy        sql.NullString `db:"cancelled_by"`
	TransactionID      sql.NullString `db:"transaction_id"`
	GatewayResponse    sql.NullString `db:"gateway_response"`
	SchemaVersion      int            `db:"schema_version"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func newPaymentRow(p *domain.Payment) (*paymentRow, error) {
	breakdown, err := json.Marshal(p.FeeBreakdown)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fee breakdown: %w", err)
	}
	pkg, err := json.Marshal(p.ServicePackage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal service package: %w", err)
	}
	extras := p.AdditionalServices
	if extras == nil {
		extras = []domain.ServiceSnapshot{}
	}
	additional, err := json.Marshal(extras)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal additional services: %w", err)
	}

	version := p.SchemaVersion
	if version == 0 {
		version = domain.CurrentSchemaVersion
	}

	return &paymentRow{
		PaymentID:          p.PaymentID,
		JobID:              p.JobID,
		EmployerID:         p.EmployerID,
		ServiceFee:         p.ServiceFee,
		Status:             string(p.Status),
		PaymentMethod:      string(p.PaymentMethod),
		FeeBreakdown:       string(breakdown),
		ServicePackage:     string(pkg),
		AdditionalServices: string(additional),
		QRCodeData:         nullString(p.QRCodeData),
		ExpiresAt:          p.ExpiresAt,
		PaidAt:             nullTime(p.PaidAt),
		CancelledAt:        nullTime(p.CancelledAt),
		CancelReason:       nullString(p.CancelReason),
		CancelledBy:        nullString(p.CancelledBy),
		TransactionID:      nullString(p.TransactionID),
		GatewayResponse:    nullString(string(p.GatewayResponse)),
		SchemaVersion:      version,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}, nil
}

// toDomain upgrades older fee breakdown layouts as it decodes
func (r *paymentRow) toDomain() (*domain.Payment, error) {
	status, ok := domain.ParseStatus(r.Status)
	if !ok {
		return nil, fmt.Errorf("payment %s has unknown status %q", r.PaymentID, r.Status)
	}

	breakdown, err := domain.DecodeFeeBreakdown(r.SchemaVersion, json.RawMessage(r.FeeBreakdown))
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", r.PaymentID, err)
	}

	p := &domain.Payment{
		PaymentID:     r.PaymentID,
		JobID:         r.JobID,
		EmployerID:    r.EmployerID,
		ServiceFee:    r.ServiceFee,
		Status:        status,
		PaymentMethod: domain.Method(r.PaymentMethod),
		FeeBreakdown:  breakdown,
		QRCodeData:    r.QRCodeData.String,
		ExpiresAt:     r.ExpiresAt,
		CancelReason:  r.CancelReason.String,
		CancelledBy:   r.CancelledBy.String,
		TransactionID: r.TransactionID.String,
		SchemaVersion: domain.CurrentSchemaVersion,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}

	if len(r.ServicePackage) > 0 {
		if err := json.Unmarshal([]byte(r.ServicePackage), &p.ServicePackage); err != nil {
			return nil, fmt.Errorf("payment %s: failed to decode service package: %w", r.PaymentID, err)
		}
	}
	if len(r.AdditionalServices) > 0 {
		if err := json.Unmarshal([]byte(r.AdditionalServices), &p.AdditionalServices); err != nil {
			return nil, fmt.Errorf("payment %s: failed to decode additional services: %w", r.PaymentID, err)
		}
	}
	if r.GatewayResponse.Valid && r.GatewayResponse.String != "" {
		p.GatewayResponse = json.RawMessage(r.GatewayResponse.String)
	}
	if r.PaidAt.Valid {
		t := r.PaidAt.Time
		p.PaidAt = &t
	}
	if r.CancelledAt.Valid {
		t := r.CancelledAt.Time
		p.CancelledAt = &t
	}

	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
