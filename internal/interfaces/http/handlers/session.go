// internal/interfaces/http/handlers/session.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pasargadprints/ecommerce-backend/internal/config"
)

// getOrCreateSessionID gets the guest cart session ID from its cookie
// or mints a new one. The cookie lifetime matches the guest cart TTL.
func getOrCreateSessionID(c *gin.Context, cfg *config.Config) string {
	sessionID, err := c.Cookie(cfg.Cart.SessionCookieName)
	if err != nil || sessionID == "" {
		sessionID = uuid.New().String()
		c.SetCookie(cfg.Cart.SessionCookieName, sessionID, int(cfg.Cart.GuestCartTTL.Seconds()), "/", "", false, true)
	}
	return sessionID
}

// sessionIDFromCookie reads the guest session ID without creating one
func sessionIDFromCookie(c *gin.Context, cfg *config.Config) string {
	sessionID, err := c.Cookie(cfg.Cart.SessionCookieName)
	if err != nil {
		return ""
	}
	return sessionID
}
