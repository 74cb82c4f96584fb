// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/cart"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/checkout"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/promotion"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/shipping"
	"github.com/pasargadprints/ecommerce-backend/internal/interfaces/http/middleware"
)

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	checkoutService *checkout.Service
	config          *config.Config
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkoutService *checkout.Service, cfg *config.Config) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		config:          cfg,
	}
}

// CreateSession handles POST /checkout/session. It revalidates the
// cart, prices the order and returns the hosted payment page URL.
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	userID := middleware.UserIDPtr(c)
	sessionID := getOrCreateSessionID(c, h.config)

	var req checkout.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	response, err := h.checkoutService.CreateCheckoutSession(c.Request.Context(), userID, sessionID, &req)
	if err != nil {
		h.respondCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout session created successfully",
		"data":    response,
	})
}

// VerifySession handles GET /checkout/verify. The success page calls
// this as a fallback in case the webhook has not landed yet.
func (h *CheckoutHandler) VerifySession(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "session_id query parameter is required")
		return
	}

	response, err := h.checkoutService.VerifyCheckoutSession(c.Request.Context(), sessionID)
	if err != nil {
		abortWithError(c, http.StatusBadGateway, CodeInternalError, "Failed to verify checkout session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout session verified",
		"data":    response,
	})
}

// GetShippingMethods handles POST /checkout/shipping-methods
func (h *CheckoutHandler) GetShippingMethods(c *gin.Context) {
	userID := middleware.UserIDPtr(c)
	sessionID := getOrCreateSessionID(c, h.config)

	var req shipping.Address
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	methods, err := h.checkoutService.GetShippingMethods(c.Request.Context(), userID, sessionID, req)
	if err != nil {
		h.respondCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipping methods retrieved successfully",
		"data":    methods,
	})
}

// ApplyPromoCode handles POST /checkout/promo
func (h *CheckoutHandler) ApplyPromoCode(c *gin.Context) {
	userID := middleware.UserIDPtr(c)
	sessionID := getOrCreateSessionID(c, h.config)

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	application, err := h.checkoutService.ApplyPromoCode(c.Request.Context(), userID, sessionID, req.Code)
	if err != nil {
		h.respondCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promotion applied successfully",
		"data":    application,
	})
}

// RemovePromoCode handles DELETE /checkout/promo
func (h *CheckoutHandler) RemovePromoCode(c *gin.Context) {
	userID := middleware.UserIDPtr(c)
	sessionID := getOrCreateSessionID(c, h.config)

	if err := h.checkoutService.RemovePromoCode(c.Request.Context(), userID, sessionID); err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to remove promotion")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promotion removed successfully",
	})
}

// respondCheckoutError maps checkout service errors to HTTP responses
func (h *CheckoutHandler) respondCheckoutError(c *gin.Context, err error) {
	var stockErr *checkout.StockError

	switch {
	case errors.Is(err, checkout.ErrCartEmpty):
		abortWithError(c, http.StatusBadRequest, CodeCartEmpty, "Cart is empty")
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      stockErr.Error(),
			"code":       CodeInsufficientStock,
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.Is(err, cart.ErrInsufficientStock):
		abortWithError(c, http.StatusConflict, CodeInsufficientStock, err.Error())
	case errors.Is(err, promotion.ErrInvalidPromotion):
		abortWithError(c, http.StatusBadRequest, CodeInvalidPromotion, err.Error())
	case errors.Is(err, shipping.ErrMethodNotFound):
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Unknown shipping method")
	default:
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Checkout failed")
	}
}
