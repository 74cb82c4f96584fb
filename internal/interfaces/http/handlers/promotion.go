// internal/interfaces/http/handlers/promotion.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/promotion"
)

// PromotionHandler handles admin promotion management
type PromotionHandler struct {
	promotionService *promotion.Service
	config           *config.Config
}

// NewPromotionHandler creates a new promotion handler
func NewPromotionHandler(promotionService *promotion.Service, cfg *config.Config) *PromotionHandler {
	return &PromotionHandler{
		promotionService: promotionService,
		config:           cfg,
	}
}

// AdminCreatePromotion handles POST /admin/promotions
func (h *PromotionHandler) AdminCreatePromotion(c *gin.Context) {
	var req promotion.CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	promo, err := h.promotionService.CreatePromotion(&req)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Promotion created successfully",
		"data":    promo,
	})
}

// AdminListPromotions handles GET /admin/promotions
func (h *PromotionHandler) AdminListPromotions(c *gin.Context) {
	promos, err := h.promotionService.ListPromotions()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve promotions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promotions retrieved successfully",
		"data":    promos,
	})
}

// AdminDeactivatePromotion handles PUT /admin/promotions/:id/deactivate
func (h *PromotionHandler) AdminDeactivatePromotion(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid promotion ID")
		return
	}

	if err := h.promotionService.DeactivatePromotion(uint(id)); err != nil {
		abortWithError(c, http.StatusNotFound, CodeNotFound, "Promotion not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Promotion deactivated successfully",
	})
}
