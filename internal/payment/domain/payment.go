package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPaymentTTL is how long a payment stays payable after creation
const DefaultPaymentTTL = 24 * time.Hour

// ServiceLine is one itemized entry of a fee breakdown
type ServiceLine struct {
	ServiceID   string `json:"serviceId"`
	ServiceName string `json:"serviceName"`
	UnitFee     int64  `json:"unitFee"`
	TotalFee    int64  `json:"totalFee"`
}

// FeeBreakdown is the itemized service fee for one payment
type FeeBreakdown struct {
	Subtotal        int64         `json:"subtotal"`
	TaxRate         float64       `json:"taxRate"`
	TaxAmount       int64         `json:"taxAmount"`
	TotalBeforeTax  int64         `json:"totalBeforeTax"`
	TotalServiceFee int64         `json:"totalServiceFee"`
	VATEnabled      bool          `json:"vatEnabled"`
	Services        []ServiceLine `json:"services"`
}

// Validate checks the summation invariants of the breakdown
func (b FeeBreakdown) Validate() error {
	var sum int64
	for _, line := range b.Services {
		sum += line.TotalFee
	}

	switch {
	case len(b.Services) == 0:
		return NewValidationError("fee_breakdown", "at least one service line is required")
	case sum != b.Subtotal:
		return NewValidationError("fee_breakdown", fmt.Sprintf("service lines sum to %d but subtotal is %d", sum, b.Subtotal))
	case b.TotalBeforeTax != b.Subtotal:
		return NewValidationError("fee_breakdown", "totalBeforeTax must equal subtotal")
	case b.TotalServiceFee != b.TotalBeforeTax+b.TaxAmount:
		return NewValidationError("fee_breakdown", "totalServiceFee must equal totalBeforeTax + taxAmount")
	case !b.VATEnabled && (b.TaxAmount != 0 || b.TaxRate != 0):
		return NewValidationError("fee_breakdown", "tax lines present while VAT is disabled")
	case b.TotalServiceFee <= 0:
		return NewValidationError("fee_breakdown", "total service fee must be positive")
	}

	return nil
}

// ServiceSnapshot freezes what was purchased at creation time
type ServiceSnapshot struct {
	ServiceID string `json:"serviceId"`
	Name      string `json:"name"`
	Fee       int64  `json:"fee"`
}

// Payment is a service-fee payment gating the activation of one job posting
type Payment struct {
	PaymentID          string            `json:"paymentId"`
	JobID              string            `json:"jobId"`
	EmployerID         string            `json:"employerId"`
	ServiceFee         int64             `json:"serviceFee"`
	Status             Status            `json:"status"`
	PaymentMethod      Method            `json:"paymentMethod"`
	FeeBreakdown       FeeBreakdown      `json:"feeBreakdown"`
	ServicePackage     ServiceSnapshot   `json:"servicePackage"`
	AdditionalServices []ServiceSnapshot `json:"additionalServices"`
	QRCodeData         string            `json:"qrCodeData,omitempty"`
	ExpiresAt          time.Time         `json:"expiresAt"`
	PaidAt             *time.Time        `json:"paidAt,omitempty"`
	CancelledAt        *time.Time        `json:"cancelledAt,omitempty"`
	CancelReason       string            `json:"cancelReason,omitempty"`
	CancelledBy        string            `json:"cancelledBy,omitempty"`
	TransactionID      string            `json:"transactionId,omitempty"`
	GatewayResponse    json.RawMessage   `json:"gatewayResponse,omitempty"`
	SchemaVersion      int               `json:"schemaVersion"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// IsOverdue reports whether a pending payment has outlived its TTL
func (p *Payment) IsOverdue(now time.Time) bool {
	return p.Status == StatusPending && now.After(p.ExpiresAt)
}

// Clone returns a deep copy so callers cannot mutate stored state
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}

	c := *p
	c.FeeBreakdown.Services = append([]ServiceLine(nil), p.FeeBreakdown.Services...)
	c.AdditionalServices = append([]ServiceSnapshot(nil), p.AdditionalServices...)
	if p.GatewayResponse != nil {
		c.GatewayResponse = append(json.RawMessage(nil), p.GatewayResponse...)
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		c.PaidAt = &t
	}
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// TransitionPatch carries the metadata written together with a status change.
// Zero-valued fields leave the stored value untouched.
type TransitionPatch struct {
	At              time.Time
	PaidAt          *time.Time
	CancelledAt     *time.Time
	CancelReason    string
	CancelledBy     string
	TransactionID   string
	GatewayResponse json.RawMessage
}

// Apply writes the patch and the new status onto p
func (tp TransitionPatch) Apply(p *Payment, next Status) {
	p.Status = next
	p.UpdatedAt = tp.At
	if tp.PaidAt != nil {
		t := *tp.PaidAt
		p.PaidAt = &t
	}
	if tp.CancelledAt != nil {
		t := *tp.CancelledAt
		p.CancelledAt = &t
	}
	if tp.CancelReason != "" {
		p.CancelReason = tp.CancelReason
	}
	if tp.CancelledBy != "" {
		p.CancelledBy = tp.CancelledBy
	}
	if tp.TransactionID != "" {
		p.TransactionID = tp.TransactionID
	}
	if len(tp.GatewayResponse) > 0 {
		p.GatewayResponse = append(json.RawMessage(nil), tp.GatewayResponse...)
	}
}

// Job holds the fields of a job posting that payments read or toggle
type Job struct {
	JobID      string
	EmployerID string
	IsActive   bool
	IsPaid     bool
	PaidAt     *time.Time
	PaymentID  string
}

// ListFilter narrows an employer's payment listing
type ListFilter struct {
	EmployerID string
	JobID      string
	Status     Status
	PageSize   int
	Cursor     *Cursor
}

// Cursor is a keyset position for (created_at, payment_id) descending pagination
type Cursor struct {
	CreatedAt time.Time
	PaymentID string
}
