// internal/interfaces/http/handlers/user_address.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
	"github.com/pasargadprints/ecommerce-backend/internal/domain/user"
	"github.com/pasargadprints/ecommerce-backend/internal/interfaces/http/middleware"
)

// AddressHandler handles user address book endpoints
type AddressHandler struct {
	userService *user.Service
	config      *config.Config
}

// NewAddressHandler creates a new address handler
func NewAddressHandler(userService *user.Service, cfg *config.Config) *AddressHandler {
	return &AddressHandler{
		userService: userService,
		config:      cfg,
	}
}

// GetAddresses handles GET /users/addresses
func (h *AddressHandler) GetAddresses(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	addresses, err := h.userService.GetAddresses(userID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve addresses")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Addresses retrieved successfully",
		"data":    addresses,
	})
}

// CreateAddress handles POST /users/addresses
func (h *AddressHandler) CreateAddress(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	var req user.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	address, err := h.userService.CreateAddress(userID, &req)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to create address")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Address created successfully",
		"data":    address,
	})
}

// UpdateAddress handles PUT /users/addresses/:id
func (h *AddressHandler) UpdateAddress(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	addressID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid address ID")
		return
	}

	var req user.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	address, err := h.userService.UpdateAddress(userID, uint(addressID), &req)
	if err != nil {
		if errors.Is(err, user.ErrAddressNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Address not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to update address")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Address updated successfully",
		"data":    address,
	})
}

// DeleteAddress handles DELETE /users/addresses/:id
func (h *AddressHandler) DeleteAddress(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "User not authenticated")
		return
	}

	addressID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid address ID")
		return
	}

	if err := h.userService.DeleteAddress(userID, uint(addressID)); err != nil {
		if errors.Is(err, user.ErrAddressNotFound) {
			abortWithError(c, http.StatusNotFound, CodeNotFound, "Address not found")
			return
		}
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, "Failed to delete address")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Address deleted successfully",
	})
}
