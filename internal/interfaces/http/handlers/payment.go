// internal/interfaces/http/handlers/payment.go
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/payment"
	"github.com/sirupsen/logrus"
)

// PaymentHandler handles payment provider callbacks
type PaymentHandler struct {
	paymentService *payment.Service
	config         *config.Config
	logger         *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *payment.Service, cfg *config.Config, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		config:         cfg,
		logger:         logger,
	}
}

// StripeWebhook handles POST /webhooks/stripe. The raw body is passed
// to the service untouched because the signature covers the exact
// bytes on the wire. A 4xx tells Stripe the delivery is unprocessable;
// a 5xx asks it to retry.
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Failed to read request body")
		return
	}

	signature := c.GetHeader("Stripe-Signature")

	result, err := h.paymentService.HandleWebhook(c.Request.Context(), body, signature)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrMissingSignature),
			errors.Is(err, payment.ErrBadSignature),
			errors.Is(err, payment.ErrStaleTimestamp):
			abortWithError(c, http.StatusBadRequest, CodeInvalidSignature, "Webhook signature verification failed")
		default:
			h.logger.WithError(err).Error("Webhook processing failed")
			abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Webhook processing failed")
		}
		return
	}

	response := gin.H{
		"status":     string(result.Outcome),
		"event_id":   result.EventID,
		"event_type": result.EventType,
	}
	if result.OrderID != 0 {
		response["order_id"] = result.OrderID
	}

	c.JSON(http.StatusOK, response)
}
