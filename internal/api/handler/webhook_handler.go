package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/cuongbtq/servicefee/internal/payment/webhook"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// Webhook outcome labels
const (
	WebhookApplied          = "applied"
	WebhookIgnored          = "ignored"
	WebhookInvalidSignature = "invalid_signature"
	WebhookInvalidPayload   = "invalid_payload"
	WebhookUnknownPayment   = "unknown_payment"
	WebhookError            = "error"
)

// HandlePaymentNotification handles POST /api/v1/webhooks/payments.
// The signature is checked against the raw body before anything is read from storage.
func (h *WebhookHandler) HandlePaymentNotification(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.observe(WebhookInvalidPayload)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.verifier.VerifySignature(c.GetHeader(h.verifier.Header()), body); err != nil {
		h.observe(WebhookInvalidSignature)
		h.logger.Warn("Rejected webhook with invalid signature",
			slog.String("ip", c.ClientIP()),
		)
		writeError(c, h.logger, err)
		return
	}

	n, err := webhook.ParseNotification(body)
	if err != nil {
		h.observe(WebhookInvalidPayload)
		writeError(c, h.logger, err)
		return
	}

	res, err := h.payments.ApplyNotification(c.Request.Context(), n)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.observe(WebhookUnknownPayment)
		h.logger.Warn("Webhook for unknown payment", slog.String("payment_id", n.PaymentID))
		writeError(c, h.logger, err)
		return
	case err != nil:
		h.observe(WebhookError)
		writeError(c, h.logger, err)
		return
	}

	if res.Applied {
		h.observe(WebhookApplied)
	} else {
		h.observe(WebhookIgnored)
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_id": res.Payment.PaymentID,
		"status":     res.Payment.Status,
		"applied":    res.Applied,
	})
}

func (h *WebhookHandler) observe(result string) {
	if h.metrics != nil {
		h.metrics.ObserveWebhook(result)
	}
}
