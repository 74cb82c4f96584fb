// internal/interfaces/http/handlers/analytics.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/analytics"
)

// AnalyticsHandler handles admin analytics endpoints
type AnalyticsHandler struct {
	analyticsService *analytics.Service
	config           *config.Config
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analyticsService *analytics.Service, cfg *config.Config) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		config:           cfg,
	}
}

// GetSalesSummary handles GET /admin/analytics/sales
func (h *AnalyticsHandler) GetSalesSummary(c *gin.Context) {
	from, to, err := parseDateRange(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	summary, err := h.analyticsService.GetSalesSummary(from, to)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to compute sales summary")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Sales summary retrieved successfully",
		"data":    summary,
	})
}

// GetTopProducts handles GET /admin/analytics/top-products
func (h *AnalyticsHandler) GetTopProducts(c *gin.Context) {
	from, to, err := parseDateRange(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	limit := 10
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	products, err := h.analyticsService.GetTopProducts(from, to, limit)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to compute top products")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Top products retrieved successfully",
		"data":    products,
	})
}

// parseDateRange parses from/to query parameters, defaulting to the
// trailing 30 days
func parseDateRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return from, to, err
		}
		from = parsed
	}

	if toStr := c.Query("to"); toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return from, to, err
		}
		// Include the whole end day
		to = parsed.AddDate(0, 0, 1)
	}

	return from, to, nil
}
