package verifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
)

// Mock settles payments once they are older than a configured delay
type Mock struct {
	cfg MockConfig
	now func() time.Time
}

// NewMock creates the development backend
func NewMock(cfg MockConfig, now func() time.Time) *Mock {
	if now == nil {
		now = time.Now
	}
	if cfg.Outcome == "" {
		cfg.Outcome = OutcomePaid
	}
	return &Mock{cfg: cfg, now: now}
}

func (m *Mock) CheckPaid(ctx context.Context, p *domain.Payment) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, unavailable(BackendMock, err)
	}

	if m.now().Sub(p.CreatedAt) < m.cfg.AutoApproveAfter {
		return Verdict{Outcome: OutcomePending}, nil
	}

	data, _ := json.Marshal(map[string]any{"backend": BackendMock, "outcome": m.cfg.Outcome})
	return Verdict{
		Outcome:       m.cfg.Outcome,
		TransactionID: "MOCK-" + p.PaymentID,
		GatewayData:   data,
	}, nil
}
