package router

import (
	"net/http"

	"github.com/cuongbtq/servicefee/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes.
// A nil gatherer disables /metrics; nil metrics disables request instrumentation.
func SetupRouter(deps *handler.Dependencies, metrics *Metrics, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	if metrics != nil {
		r.Use(MetricsMiddleware(metrics))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "servicefee-api",
		})
	})
	r.GET("/ready", handler.Readiness(deps))
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	paymentHandler := handler.NewPaymentHandler(deps)
	webhookHandler := handler.NewWebhookHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// gateway callbacks authenticate with the body signature, not an employer
		v1.POST("/webhooks/payments", webhookHandler.HandlePaymentNotification)

		v1.GET("/pricing/quote", paymentHandler.Quote)

		payments := v1.Group("/payments", EmployerMiddleware())
		{
			payments.POST("", paymentHandler.CreatePayment)
			payments.GET("", paymentHandler.ListPayments)
			payments.GET("/:payment_id", paymentHandler.GetPayment)
			payments.POST("/:payment_id/cancel", paymentHandler.CancelPayment)
		}
	}

	return r
}
