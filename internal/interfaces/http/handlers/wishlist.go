// internal/interfaces/http/handlers/wishlist.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/wishlist"
	"github.com/pasargadprints/ecommerce-backend/internal/interfaces/http/middleware"
)

// WishlistHandler handles wishlist endpoints
type WishlistHandler struct {
	wishlistService *wishlist.Service
	config          *config.Config
}

// NewWishlistHandler creates a new wishlist handler
func NewWishlistHandler(wishlistService *wishlist.Service, cfg *config.Config) *WishlistHandler {
	return &WishlistHandler{
		wishlistService: wishlistService,
		config:          cfg,
	}
}

// GetWishlist handles GET /wishlist
func (h *WishlistHandler) GetWishlist(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	items, err := h.wishlistService.GetWishlist(userID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve wishlist")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Wishlist retrieved successfully",
		"data":    items,
	})
}

// AddItem handles POST /wishlist/items
func (h *WishlistHandler) AddItem(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	var req struct {
		ProductID uint `json:"product_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	item, err := h.wishlistService.AddItem(userID, req.ProductID)
	if err != nil {
		switch {
		case errors.Is(err, product.ErrNotFound):
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Product not found")
		case errors.Is(err, wishlist.ErrAlreadyExists):
			abortWithError(c, http.StatusConflict, CodeConflict, "Item already in wishlist")
		default:
			abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to add item to wishlist")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Item added to wishlist successfully",
		"data":    item,
	})
}

// RemoveItem handles DELETE /wishlist/items/:id
func (h *WishlistHandler) RemoveItem(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid product ID")
		return
	}

	if err := h.wishlistService.RemoveItem(userID, uint(productID)); err != nil {
		if errors.Is(err, wishlist.ErrItemNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Item not in wishlist")
			return
		}
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to remove item from wishlist")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item removed from wishlist successfully",
	})
}

// MoveToCart handles POST /wishlist/items/:id/move-to-cart
func (h *WishlistHandler) MoveToCart(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid product ID")
		return
	}

	if err := h.wishlistService.MoveToCart(c.Request.Context(), userID, uint(productID)); err != nil {
		if errors.Is(err, wishlist.ErrItemNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Item not in wishlist")
			return
		}
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item moved to cart successfully",
	})
}
