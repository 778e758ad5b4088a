// Package verifier asks a payment backend whether a pending payment has settled.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
)

// Outcome is a backend's answer about one payment
type Outcome string

const (
	OutcomePaid    Outcome = "paid"
	OutcomeFailed  Outcome = "failed"
	OutcomePending Outcome = "pending"
)

// Verdict is the result of a verification call
type Verdict struct {
	Outcome       Outcome
	TransactionID string
	GatewayData   json.RawMessage
}

// Verifier checks the settlement state of a payment. Implementations return an
// error wrapping domain.ErrVerificationUnavailable when they cannot answer.
type Verifier interface {
	CheckPaid(ctx context.Context, p *domain.Payment) (Verdict, error)
}

// Factory builds a verifier from the verification configuration
type Factory func(cfg Config, logger *slog.Logger) (Verifier, error)

// Registry maps backend names to factories
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in backends
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(BackendMock, func(cfg Config, logger *slog.Logger) (Verifier, error) {
		return NewMock(cfg.Mock, nil), nil
	})
	r.Register(BackendKBank, func(cfg Config, logger *slog.Logger) (Verifier, error) {
		return NewBankPlaceholder(BackendKBank, logger), nil
	})
	r.Register(BackendSCB, func(cfg Config, logger *slog.Logger) (Verifier, error) {
		return NewBankPlaceholder(BackendSCB, logger), nil
	})
	r.Register(BackendGateway, func(cfg Config, logger *slog.Logger) (Verifier, error) {
		return NewGateway(cfg.Gateway, nil)
	})
	r.Register(BackendMidtrans, func(cfg Config, logger *slog.Logger) (Verifier, error) {
		return NewMidtrans(cfg.Midtrans)
	})
	r.Register(BackendStripe, func(cfg Config, logger *slog.Logger) (Verifier, error) {
		return NewStripe(cfg.Stripe)
	})
	return r
}

// Register adds or replaces a backend
func (r *Registry) Register(name string, f Factory) {
	r.factories[strings.ToLower(name)] = f
}

// Names lists the registered backends
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the backend named in cfg
func (r *Registry) Build(cfg Config, logger *slog.Logger) (Verifier, error) {
	f, ok := r.factories[strings.ToLower(cfg.Backend)]
	if !ok {
		return nil, fmt.Errorf("unknown verification backend %q (available: %s)", cfg.Backend, strings.Join(r.Names(), ", "))
	}

	v, err := f(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s verifier: %w", cfg.Backend, err)
	}

	logger.Info("Verification backend ready", slog.String("backend", cfg.Backend))
	return v, nil
}

// unavailable wraps a backend-specific cause
func unavailable(backend string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", backend, domain.ErrVerificationUnavailable)
	}
	return fmt.Errorf("%s: %w: %v", backend, domain.ErrVerificationUnavailable, cause)
}
