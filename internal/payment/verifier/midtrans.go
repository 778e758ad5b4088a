package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
)

// transactionChecker is the slice of the Midtrans Core API client used here
type transactionChecker interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// Midtrans verifies payments through the Midtrans Core API status endpoint.
// The payment id is used as the Midtrans order id.
type Midtrans struct {
	client transactionChecker
}

// NewMidtrans creates a Core API backed verifier
func NewMidtrans(cfg MidtransConfig) (*Midtrans, error) {
	if cfg.ServerKey == "" {
		return nil, fmt.Errorf("midtrans server key is required")
	}

	env := midtrans.Sandbox
	if cfg.IsProduction {
		env = midtrans.Production
	}

	var c coreapi.Client
	c.New(cfg.ServerKey, env)
	return &Midtrans{client: &c}, nil
}

func newMidtransWithClient(client transactionChecker) *Midtrans {
	return &Midtrans{client: client}
}

// CheckPaid calls the blocking SDK in a goroutine so ctx still bounds the wait
func (m *Midtrans) CheckPaid(ctx context.Context, p *domain.Payment) (Verdict, error) {
	type result struct {
		resp *coreapi.TransactionStatusResponse
		err  *midtrans.Error
	}

	done := make(chan result, 1)
	go func() {
		resp, err := m.client.CheckTransaction(p.PaymentID)
		done <- result{resp: resp, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return Verdict{}, unavailable(BackendMidtrans, ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		if res.err.StatusCode == http.StatusNotFound {
			return Verdict{Outcome: OutcomePending}, nil
		}
		return Verdict{}, unavailable(BackendMidtrans, fmt.Errorf("%s (status %d)", res.err.Message, res.err.StatusCode))
	}
	if res.resp == nil {
		return Verdict{}, unavailable(BackendMidtrans, fmt.Errorf("empty status response"))
	}

	data, _ := json.Marshal(map[string]string{
		"transaction_status": res.resp.TransactionStatus,
		"transaction_id":     res.resp.TransactionID,
		"status_code":        res.resp.StatusCode,
		"gross_amount":       res.resp.GrossAmount,
		"payment_type":       res.resp.PaymentType,
		"fraud_status":       res.resp.FraudStatus,
	})

	return Verdict{
		Outcome:       midtransOutcome(res.resp.TransactionStatus, res.resp.FraudStatus),
		TransactionID: res.resp.TransactionID,
		GatewayData:   data,
	}, nil
}

func midtransOutcome(status, fraud string) Outcome {
	switch status {
	case "settlement":
		return OutcomePaid
	case "capture":
		// card captures flagged for review are not settled yet
		if fraud == "challenge" {
			return OutcomePending
		}
		return OutcomePaid
	case "deny", "expire", "cancel", "failure":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}
