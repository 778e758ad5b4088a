package service

import (
	"context"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/cuongbtq/servicefee/internal/payment/webhook"
)

// ApplyNotification settles a payment from an authenticated gateway
// notification. Replays and notifications for finalized payments return
// Applied=false. Unknown payments yield domain.ErrNotFound.
func (s *Service) ApplyNotification(ctx context.Context, n webhook.Notification) (TransitionResult, error) {
	action, err := n.Action()
	if err != nil {
		return TransitionResult{}, err
	}

	var next domain.Status
	switch action {
	case webhook.ActionMarkPaid:
		next = domain.StatusPaid
	case webhook.ActionMarkFailed:
		next = domain.StatusFailed
	default:
		p, err := s.store.GetByID(ctx, n.PaymentID)
		if err != nil {
			return TransitionResult{}, err
		}
		return TransitionResult{Payment: p}, nil
	}

	return s.Transition(ctx, TransitionRequest{
		PaymentID: n.PaymentID,
		Next:      next,
		Source:    domain.SourceWebhook,
		Patch: domain.TransitionPatch{
			TransactionID:   n.TransactionID,
			GatewayResponse: n.GatewayData,
		},
	})
}
