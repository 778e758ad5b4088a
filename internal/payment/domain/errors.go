package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a payment does not exist
	ErrNotFound = errors.New("payment not found")

	// ErrJobNotFound is returned when the referenced job does not exist
	ErrJobNotFound = errors.New("job not found")

	// ErrJobActivation means a won paid transition could not activate its job; the transition is rolled back
	ErrJobActivation = errors.New("job activation failed")

	// ErrNotOwner is returned when the caller does not own the job or payment
	ErrNotOwner = errors.New("caller does not own this resource")

	// ErrVerificationUnavailable means the backend could not answer; the payment stays pending
	ErrVerificationUnavailable = errors.New("verification backend unavailable")

	// ErrValidation is the sentinel wrapped by every ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrConflict is the sentinel wrapped by every ConflictError
	ErrConflict = errors.New("conflict")
)

// ValidationError rejects input before anything is persisted
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConflictKind tells apart the reasons a request conflicts with stored state
type ConflictKind string

const (
	ConflictOpenPayment    ConflictKind = "open_payment_exists"
	ConflictFinalized      ConflictKind = "already_finalized"
	ConflictJobAlreadyPaid ConflictKind = "job_already_paid"
)

// ConflictError is a domain-level rejection caused by the current state
type ConflictError struct {
	Kind      ConflictKind
	PaymentID string
	Current   Status
}

func (e *ConflictError) Error() string {
	switch e.Kind {
	case ConflictOpenPayment:
		return fmt.Sprintf("an open payment %s already exists for this job", e.PaymentID)
	case ConflictJobAlreadyPaid:
		return "job has already been paid for"
	default:
		return fmt.Sprintf("payment already %s", e.Current)
	}
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewFinalizedError reports that a payment has left pending
func NewFinalizedError(paymentID string, current Status) *ConflictError {
	return &ConflictError{Kind: ConflictFinalized, PaymentID: paymentID, Current: current}
}
