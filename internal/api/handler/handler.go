package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/cuongbtq/servicefee/internal/payment/service"
	"github.com/cuongbtq/servicefee/internal/payment/webhook"
	"github.com/gin-gonic/gin"
)

// EmployerIDKey is the gin context key holding the authenticated employer
const EmployerIDKey = "employer_id"

// PaymentService is the orchestrator surface used by the HTTP layer
type PaymentService interface {
	CreatePayment(ctx context.Context, req service.CreateRequest) (*domain.Payment, error)
	CheckStatus(ctx context.Context, paymentID, employerID string) (*domain.Payment, error)
	ListPayments(ctx context.Context, filter domain.ListFilter) (service.Page, error)
	Cancel(ctx context.Context, req service.CancelRequest) (*domain.Payment, error)
	ApplyNotification(ctx context.Context, n webhook.Notification) (service.TransitionResult, error)
	Quote(packageID string, boostIDs []string) (domain.FeeBreakdown, error)
}

// WebhookObserver counts webhook outcomes
type WebhookObserver interface {
	ObserveWebhook(result string)
}

// HealthCheck is one dependency probed by the readiness endpoint
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger          *slog.Logger
	Payments        PaymentService
	WebhookVerifier *webhook.Verifier
	WebhookMetrics  WebhookObserver
	HealthChecks    []HealthCheck
}

// PaymentHandler handles employer-facing payment requests
type PaymentHandler struct {
	logger   *slog.Logger
	payments PaymentService
}

// NewPaymentHandler creates a new PaymentHandler instance
func NewPaymentHandler(deps *Dependencies) *PaymentHandler {
	return &PaymentHandler{
		logger:   deps.Logger,
		payments: deps.Payments,
	}
}

// WebhookHandler handles signed gateway notifications
type WebhookHandler struct {
	logger   *slog.Logger
	payments PaymentService
	verifier *webhook.Verifier
	metrics  WebhookObserver
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:   deps.Logger,
		payments: deps.Payments,
		verifier: deps.WebhookVerifier,
		metrics:  deps.WebhookMetrics,
	}
}

// writeError maps domain errors onto HTTP responses
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		validation *domain.ValidationError
		conflict   *domain.ConflictError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validation.Error(),
			"field": validation.Field,
		})
	case errors.As(err, &conflict):
		body := gin.H{
			"error": conflict.Error(),
			"code":  string(conflict.Kind),
		}
		if conflict.PaymentID != "" {
			body["payment_id"] = conflict.PaymentID
		}
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, webhook.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.Error("Request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
