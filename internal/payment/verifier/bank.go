package verifier

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
)

// BankPlaceholder stands in for a bank API whose contract is not available yet.
// It always reports the backend as unavailable so payments stay pending.
type BankPlaceholder struct {
	name   string
	logger *slog.Logger
}

// NewBankPlaceholder creates a placeholder for the named bank
func NewBankPlaceholder(name string, logger *slog.Logger) *BankPlaceholder {
	return &BankPlaceholder{name: name, logger: logger}
}

func (b *BankPlaceholder) CheckPaid(ctx context.Context, p *domain.Payment) (Verdict, error) {
	b.logger.Warn("Bank verification is not integrated",
		slog.String("backend", b.name),
		slog.String("payment_id", p.PaymentID),
	)
	return Verdict{}, unavailable(b.name, nil)
}
