package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/servicefee/internal/api/dto"
	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/cuongbtq/servicefee/internal/payment/service"
	"github.com/gin-gonic/gin"
)

// CreatePayment handles POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	p, err := h.payments.CreatePayment(c.Request.Context(), service.CreateRequest{
		EmployerID: c.GetString(EmployerIDKey),
		JobID:      req.JobID,
		PackageID:  req.PackageID,
		BoostIDs:   req.BoostIDs,
		Method:     domain.Method(req.PaymentMethod),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewPaymentDTO(p))
}

// GetPayment handles GET /api/v1/payments/:payment_id.
// A pending payment is checked against the verification backend first.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID := c.Param("payment_id")

	p, err := h.payments.CheckStatus(c.Request.Context(), paymentID, c.GetString(EmployerIDKey))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaymentDTO(p))
}

// ListPayments handles GET /api/v1/payments
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var req dto.ListPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	cursor, err := DecodePaymentCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	page, err := h.payments.ListPayments(c.Request.Context(), domain.ListFilter{
		EmployerID: c.GetString(EmployerIDKey),
		JobID:      req.JobID,
		Status:     domain.Status(req.Status),
		PageSize:   req.PageSize,
		Cursor:     cursor,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	resp := dto.ListPaymentsResponse{
		Payments:   make([]dto.PaymentDTO, len(page.Payments)),
		NextCursor: EncodePaymentCursor(page.NextCursor),
	}
	for i, p := range page.Payments {
		resp.Payments[i] = dto.NewPaymentDTO(p)
	}

	c.JSON(http.StatusOK, resp)
}

// CancelPayment handles POST /api/v1/payments/:payment_id/cancel
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	var req dto.CancelPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	p, err := h.payments.Cancel(c.Request.Context(), service.CancelRequest{
		PaymentID:  c.Param("payment_id"),
		EmployerID: c.GetString(EmployerIDKey),
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaymentDTO(p))
}

// Quote handles GET /api/v1/pricing/quote
func (h *PaymentHandler) Quote(c *gin.Context) {
	var req dto.QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "package_id is required",
		})
		return
	}

	var boostIDs []string
	for _, id := range strings.Split(req.BoostIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			boostIDs = append(boostIDs, id)
		}
	}

	breakdown, err := h.payments.Quote(req.PackageID, boostIDs)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewFeeBreakdownDTO(breakdown))
}
