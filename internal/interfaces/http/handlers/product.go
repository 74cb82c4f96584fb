// internal/interfaces/http/handlers/product.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/inventory"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/product"
	"github.com/pasargadprints/ecommerce-backend/internal/interfaces/http/middleware"
)

// ProductHandler handles product catalog endpoints
type ProductHandler struct {
	productService   *product.Service
	inventoryService *inventory.Service
	config           *config.Config
}

// NewProductHandler creates a new product handler
func NewProductHandler(productService *product.Service, inventoryService *inventory.Service, cfg *config.Config) *ProductHandler {
	return &ProductHandler{
		productService:   productService,
		inventoryService: inventoryService,
		config:           cfg,
	}
}

// GetProducts handles GET /products
func (h *ProductHandler) GetProducts(c *gin.Context) {
	var req product.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	response, err := h.productService.GetProducts(&req)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve products")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Products retrieved successfully",
		"data":    response,
	})
}

// GetProduct handles GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid product ID")
		return
	}

	prod, err := h.productService.GetProduct(uint(id))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Product not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve product")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product retrieved successfully",
		"data":    prod,
	})
}

// GetProductBySlug handles GET /products/slug/:slug
func (h *ProductHandler) GetProductBySlug(c *gin.Context) {
	prod, err := h.productService.GetProductBySlug(c.Param("slug"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Product not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve product")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product retrieved successfully",
		"data":    prod,
	})
}

// GetCategories handles GET /products/categories
func (h *ProductHandler) GetCategories(c *gin.Context) {
	categories, err := h.productService.GetCategories()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve categories")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Categories retrieved successfully",
		"data":    categories,
	})
}

// --- ADMIN ENDPOINTS ---

// AdminCreateProduct handles POST /admin/products
func (h *ProductHandler) AdminCreateProduct(c *gin.Context) {
	var req product.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	prod, err := h.productService.CreateProduct(&req)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Product created successfully",
		"data":    prod,
	})
}

// AdminUpdateProduct handles PUT /admin/products/:id
func (h *ProductHandler) AdminUpdateProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid product ID")
		return
	}

	var req product.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	prod, err := h.productService.UpdateProduct(uint(id), &req)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Product not found")
			return
		}
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product updated successfully",
		"data":    prod,
	})
}

// AdminDeleteProduct handles DELETE /admin/products/:id
func (h *ProductHandler) AdminDeleteProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid product ID")
		return
	}

	if err := h.productService.DeleteProduct(uint(id)); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Product not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to delete product")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product deleted successfully",
	})
}

// AdminAdjustStock handles PUT /admin/products/:id/stock
func (h *ProductHandler) AdminAdjustStock(c *gin.Context) {
	adjustedBy, _ := middleware.GetUserIDFromContext(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid product ID")
		return
	}

	var req struct {
		Quantity int    `json:"quantity" binding:"min=0"`
		Notes    string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	movement, err := h.inventoryService.AdjustStock(uint(id), req.Quantity, req.Notes, adjustedBy)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock adjusted successfully",
		"data":    movement,
	})
}

// AdminGetStockMovements handles GET /admin/products/:id/movements
func (h *ProductHandler) AdminGetStockMovements(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid product ID")
		return
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	movements, err := h.inventoryService.GetMovements(uint(id), limit)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve stock movements")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock movements retrieved successfully",
		"data":    movements,
	})
}

// AdminGetLowStock handles GET /admin/products/low-stock
func (h *ProductHandler) AdminGetLowStock(c *gin.Context) {
	products, err := h.inventoryService.GetLowStockProducts()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve low stock products")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Low stock products retrieved successfully",
		"data":    products,
	})
}
