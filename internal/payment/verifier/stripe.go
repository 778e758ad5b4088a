package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// intentFinder looks up the PaymentIntent created for a payment
type intentFinder interface {
	FindByPaymentID(paymentID string) (*stripe.PaymentIntent, error)
}

type stripeSearch struct {
	api *client.API
}

// FindByPaymentID searches intents by the payment_id metadata key. It returns nil when none exists.
func (s *stripeSearch) FindByPaymentID(paymentID string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentSearchParams{}
	params.Query = fmt.Sprintf("metadata['payment_id']:'%s'", strings.ReplaceAll(paymentID, "'", ""))

	iter := s.api.PaymentIntents.Search(params)
	if iter.Next() {
		return iter.PaymentIntent(), nil
	}
	return nil, iter.Err()
}

// Stripe verifies card payments against PaymentIntents tagged with the payment id
type Stripe struct {
	finder intentFinder
}

// NewStripe creates a Stripe backed verifier
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Stripe{finder: &stripeSearch{api: api}}, nil
}

func newStripeWithFinder(finder intentFinder) *Stripe {
	return &Stripe{finder: finder}
}

// CheckPaid runs the SDK call in a goroutine so ctx bounds the wait
func (s *Stripe) CheckPaid(ctx context.Context, p *domain.Payment) (Verdict, error) {
	type result struct {
		intent *stripe.PaymentIntent
		err    error
	}

	done := make(chan result, 1)
	go func() {
		intent, err := s.finder.FindByPaymentID(p.PaymentID)
		done <- result{intent: intent, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return Verdict{}, unavailable(BackendStripe, ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		var stripeErr *stripe.Error
		if errors.As(res.err, &stripeErr) {
			return Verdict{}, unavailable(BackendStripe, fmt.Errorf("%s (status %d)", stripeErr.Msg, stripeErr.HTTPStatusCode))
		}
		return Verdict{}, unavailable(BackendStripe, res.err)
	}
	if res.intent == nil {
		return Verdict{Outcome: OutcomePending}, nil
	}

	data, _ := json.Marshal(map[string]any{
		"payment_intent": res.intent.ID,
		"status":         string(res.intent.Status),
		"amount":         res.intent.Amount,
		"currency":       string(res.intent.Currency),
	})

	return Verdict{
		Outcome:       stripeOutcome(res.intent.Status),
		TransactionID: res.intent.ID,
		GatewayData:   data,
	}, nil
}

func stripeOutcome(status stripe.PaymentIntentStatus) Outcome {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return OutcomePaid
	case stripe.PaymentIntentStatusCanceled:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}
