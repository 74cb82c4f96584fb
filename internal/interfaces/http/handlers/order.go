// internal/interfaces/http/handlers/order.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/order"
	"github.com/pasargadprints/ecommerce-backend/internal/interfaces/http/middleware"
)

// OrderHandler handles order endpoints
type OrderHandler struct {
	orderService *order.Service
	config       *config.Config
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *order.Service, cfg *config.Config) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		config:       cfg,
	}
}

// ListOrders handles GET /orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	page, limit := parsePagination(c)

	orders, total, err := h.orderService.GetOrders(userID, page, limit)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve orders")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Orders retrieved successfully",
		"data":       orders,
		"pagination": paginationInfo(page, limit, total),
	})
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid order ID")
		return
	}

	ord, err := h.orderService.GetOrder(uint(orderID), &userID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Order not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    ord,
	})
}

// CancelOrder handles PUT /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid order ID")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	ord, err := h.orderService.CancelOrder(uint(orderID), &userID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Order not found")
		case errors.Is(err, order.ErrCannotCancel):
			abortWithError(c, http.StatusConflict, CodeConflict, "Order can no longer be cancelled")
		default:
			abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to cancel order")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order cancelled successfully",
		"data":    ord,
	})
}

// --- ADMIN ENDPOINTS ---

// AdminListOrders handles GET /admin/orders
func (h *OrderHandler) AdminListOrders(c *gin.Context) {
	page, limit := parsePagination(c)
	status := order.OrderStatus(c.Query("status"))

	orders, total, err := h.orderService.ListAllOrders(page, limit, status)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve orders")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       orders,
		"pagination": paginationInfo(page, limit, total),
	})
}

// AdminGetOrder handles GET /admin/orders/:id
func (h *OrderHandler) AdminGetOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid order ID")
		return
	}

	ord, err := h.orderService.GetOrder(uint(orderID), nil)
	if err != nil {
		abortWithError(c, http.StatusNotFound, CodeNotFound, "Order not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": ord,
	})
}

// AdminUpdateStatus handles PUT /admin/orders/:id/status
func (h *OrderHandler) AdminUpdateStatus(c *gin.Context) {
	actorID, _ := middleware.GetUserIDFromContext(c)

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid order ID")
		return
	}

	var req struct {
		Status  string `json:"status" binding:"required"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	ord, err := h.orderService.UpdateStatus(uint(orderID), order.OrderStatus(req.Status), req.Comment, actorID)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Order not found")
		case errors.Is(err, order.ErrInvalidTransition):
			abortWithError(c, http.StatusConflict, CodeConflict, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to update order status")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully",
		"data":    ord,
	})
}

// AdminUpdateTracking handles PUT /admin/orders/:id/tracking
func (h *OrderHandler) AdminUpdateTracking(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid order ID")
		return
	}

	var req struct {
		Carrier        string `json:"carrier" binding:"required"`
		TrackingNumber string `json:"tracking_number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	if err := h.orderService.UpdateTracking(uint(orderID), req.Carrier, req.TrackingNumber); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Order not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to update tracking")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Tracking updated successfully",
	})
}

// parsePagination reads page/limit query parameters with sane bounds
func parsePagination(c *gin.Context) (int, int) {
	page := 1
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	return page, limit
}

// paginationInfo builds the pagination envelope
func paginationInfo(page, limit int, total int64) gin.H {
	totalPages := (int(total) + limit - 1) / limit
	return gin.H{
		"page":        page,
		"limit":       limit,
		"total":       total,
		"total_pages": totalPages,
		"has_next":    page < totalPages,
		"has_prev":    page > 1,
	}
}
