// Package webhook authenticates and decodes payment gateway notifications.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
)

// DefaultSignatureHeader carries the hex HMAC of the raw request body
const DefaultSignatureHeader = "X-Signature"

const signaturePrefix = "sha256="

// ErrInvalidSignature is returned for a missing or mismatching signature
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Verifier checks HMAC-SHA256 signatures with a shared secret
type Verifier struct {
	secret []byte
	header string
}

// NewVerifier fails on an empty secret; accepting unsigned notifications is never valid
func NewVerifier(secret, header string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("webhook secret is required")
	}
	if header == "" {
		header = DefaultSignatureHeader
	}
	return &Verifier{secret: []byte(secret), header: header}, nil
}

// Header is the request header holding the signature
func (v *Verifier) Header() string {
	return v.header
}

// Sign returns the hex signature for body
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the header value against the HMAC of the exact raw body
func (v *Verifier) VerifySignature(signature string, body []byte) error {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, signaturePrefix)
	if signature == "" {
		return ErrInvalidSignature
	}

	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Action is what a notification asks the orchestrator to do
type Action int

const (
	// ActionIgnore acknowledges the notification without a transition
	ActionIgnore Action = iota
	ActionMarkPaid
	ActionMarkFailed
)

// Notification is a decoded gateway callback
type Notification struct {
	PaymentID     string          `json:"paymentId"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transactionId"`
	GatewayData   json.RawMessage `json:"gatewayData"`
}

// Action maps the reported status onto the payment state machine
func (n Notification) Action() (Action, error) {
	switch strings.ToLower(n.Status) {
	case "paid", "success", "completed":
		return ActionMarkPaid, nil
	case "failed", "denied":
		return ActionMarkFailed, nil
	case "pending":
		return ActionIgnore, nil
	default:
		return ActionIgnore, domain.NewValidationError("status", fmt.Sprintf("unsupported status %q", n.Status))
	}
}

// ParseNotification decodes and validates a notification body
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, domain.NewValidationError("body", "malformed JSON")
	}
	if n.PaymentID == "" {
		return Notification{}, domain.NewValidationError("paymentId", "paymentId is required")
	}
	if _, err := n.Action(); err != nil {
		return Notification{}, err
	}
	return n, nil
}
