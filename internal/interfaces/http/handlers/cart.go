// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/cart"
	"github.com/pasargadprints/ecommerce-backend/internal/interfaces/http/middleware"
)

// CartHandler handles cart endpoints for guests and authenticated users
type CartHandler struct {
	cartService *cart.Service
	config      *config.Config
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService *cart.Service, cfg *config.Config) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		config:      cfg,
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID := middleware.UserIDPtr(c)
	sessionID := getOrCreateSessionID(c, h.config)

	cartResponse, err := h.cartService.GetCart(c.Request.Context(), userID, sessionID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    cartResponse,
	})
}

// AddToCart handles POST /cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	userID := middleware.UserIDPtr(c)
	sessionID := getOrCreateSessionID(c, h.config)

	var req cart.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	cartResponse, err := h.cartService.AddToCart(c.Request.Context(), userID, sessionID, &req)
	if err != nil {
		h.respondCartError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item added to cart successfully",
		"data":    cartResponse,
	})
}

// UpdateCartItem handles PUT /cart/items/:id
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	userID := middleware.UserIDPtr(c)
	sessionID := getOrCreateSessionID(c, h.config)

	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid product ID")
		return
	}

	var req cart.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	cartResponse, err := h.cartService.UpdateCartItem(c.Request.Context(), userID, sessionID, uint(productID), &req)
	if err != nil {
		h.respondCartError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item updated successfully",
		"data":    cartResponse,
	})
}

// RemoveFromCart handles DELETE /cart/items/:id
func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	userID := middleware.UserIDPtr(c)
	sessionID := getOrCreateSessionID(c, h.config)

	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid product ID")
		return
	}

	cartResponse, err := h.cartService.RemoveFromCart(c.Request.Context(), userID, sessionID, uint(productID))
	if err != nil {
		h.respondCartError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item removed from cart successfully",
		"data":    cartResponse,
	})
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	userID := middleware.UserIDPtr(c)
	sessionID := getOrCreateSessionID(c, h.config)

	if err := h.cartService.ClearCart(c.Request.Context(), userID, sessionID); err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to clear cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart cleared successfully",
	})
}

// GetCartCount handles GET /cart/count
func (h *CartHandler) GetCartCount(c *gin.Context) {
	userID := middleware.UserIDPtr(c)
	sessionID := getOrCreateSessionID(c, h.config)

	count, err := h.cartService.GetCartItemCount(c.Request.Context(), userID, sessionID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to get cart count")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart count retrieved successfully",
		"data": gin.H{
			"count": count,
		},
	})
}

// MergeGuestCart handles POST /cart/merge for clients that log in
// through a flow that bypasses the login endpoint
func (h *CartHandler) MergeGuestCart(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	sessionID := sessionIDFromCookie(c, h.config)
	if sessionID != "" {
		if err := h.cartService.MergeGuestCartToUser(c.Request.Context(), userID, sessionID); err != nil {
			abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to merge cart")
			return
		}
	}

	cartResponse, err := h.cartService.GetCart(c.Request.Context(), &userID, sessionID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve merged cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Guest cart merged successfully",
		"data":    cartResponse,
	})
}

// respondCartError maps cart service errors to HTTP responses
func (h *CartHandler) respondCartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrInsufficientStock):
		abortWithError(c, http.StatusConflict, CodeInsufficientStock, err.Error())
	case errors.Is(err, cart.ErrProductNotFound):
		abortWithError(c, http.StatusNotFound, CodeNotFound, "Product not found")
	case errors.Is(err, cart.ErrItemNotFound):
		abortWithError(c, http.StatusNotFound, CodeNotFound, "Item not in cart")
	default:
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Cart operation failed")
	}
}
