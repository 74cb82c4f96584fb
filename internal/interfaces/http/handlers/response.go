// internal/interfaces/http/handlers/response.go
package handlers

import (
	"github.com/gin-gonic/gin"
)

// Machine-readable error codes returned alongside human messages so
// clients can branch without string matching.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeConflict          = "conflict"
	CodeCartEmpty         = "cart_empty"
	CodeInsufficientStock = "insufficient_stock"
	CodeInvalidPromotion  = "invalid_promotion"
	CodeInvalidSignature  = "invalid_signature"
	CodeInternalError     = "internal_error"
)

// abortWithError writes a consistent error envelope
func abortWithError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": message,
		"code":  code,
	})
}
