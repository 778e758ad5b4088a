package dto

import (
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
)

type CreatePaymentRequest struct {
	JobID         string   `json:"job_id" binding:"required"`
	PackageID     string   `json:"package_id" binding:"required"`
	BoostIDs      []string `json:"boost_ids"`
	PaymentMethod string   `json:"payment_method" binding:"required"`
}

type CancelPaymentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type ListPaymentsRequest struct {
	JobID    string `form:"job_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type QuoteRequest struct {
	PackageID string `form:"package_id" binding:"required"`
	BoostIDs  string `form:"boost_ids"` // comma separated
}

type ListPaymentsResponse struct {
	Payments   []PaymentDTO `json:"payments"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type ServiceLineDTO struct {
	ServiceID   string `json:"service_id"`
	ServiceName string `json:"service_name"`
	UnitFee     int64  `json:"unit_fee"`
	TotalFee    int64  `json:"total_fee"`
}

type FeeBreakdownDTO struct {
	Subtotal        int64            `json:"subtotal"`
	TaxRate         float64          `json:"tax_rate"`
	TaxAmount       int64            `json:"tax_amount"`
	TotalBeforeTax  int64            `json:"total_before_tax"`
	TotalServiceFee int64            `json:"total_service_fee"`
	VATEnabled      bool             `json:"vat_enabled"`
	Services        []ServiceLineDTO `json:"services"`
}

type PaymentDTO struct {
	PaymentID     string          `json:"payment_id"`
	JobID         string          `json:"job_id"`
	ServiceFee    int64           `json:"service_fee"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	FeeBreakdown  FeeBreakdownDTO `json:"fee_breakdown"`
	QRCodeData    string          `json:"qr_code_data,omitempty"`
	ExpiresAt     string          `json:"expires_at"`
	PaidAt        string          `json:"paid_at,omitempty"`
	CancelledAt   string          `json:"cancelled_at,omitempty"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

// NewFeeBreakdownDTO converts a domain breakdown for responses
func NewFeeBreakdownDTO(b domain.FeeBreakdown) FeeBreakdownDTO {
	lines := make([]ServiceLineDTO, len(b.Services))
	for i, l := range b.Services {
		lines[i] = ServiceLineDTO{
			ServiceID:   l.ServiceID,
			ServiceName: l.ServiceName,
			UnitFee:     l.UnitFee,
			TotalFee:    l.TotalFee,
		}
	}
	return FeeBreakdownDTO{
		Subtotal:        b.Subtotal,
		TaxRate:         b.TaxRate,
		TaxAmount:       b.TaxAmount,
		TotalBeforeTax:  b.TotalBeforeTax,
		TotalServiceFee: b.TotalServiceFee,
		VATEnabled:      b.VATEnabled,
		Services:        lines,
	}
}

// NewPaymentDTO converts a domain payment for responses
func NewPaymentDTO(p *domain.Payment) PaymentDTO {
	return PaymentDTO{
		PaymentID:     p.PaymentID,
		JobID:         p.JobID,
		ServiceFee:    p.ServiceFee,
		Status:        string(p.Status),
		PaymentMethod: string(p.PaymentMethod),
		FeeBreakdown:  NewFeeBreakdownDTO(p.FeeBreakdown),
		QRCodeData:    p.QRCodeData,
		ExpiresAt:     formatTime(&p.ExpiresAt),
		PaidAt:        formatTime(p.PaidAt),
		CancelledAt:   formatTime(p.CancelledAt),
		CancelReason:  p.CancelReason,
		TransactionID: p.TransactionID,
		CreatedAt:     formatTime(&p.CreatedAt),
		UpdatedAt:     formatTime(&p.UpdatedAt),
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
