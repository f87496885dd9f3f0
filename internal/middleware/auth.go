package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pennywise/observability/internal/service"
)

// Context keys set by SessionAuth
const (
	ContextUserID    = "user_id"
	ContextSessionID = "session_id"
	ContextIsAdmin   = "is_admin"
)

// SessionCookie carries the session token for browser clients that do not
// send an Authorization header.
const SessionCookie = "session"

// TokenValidator validates session tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*service.Claims, error)
}

// SessionAuth resolves the caller's session from a Bearer token or the
// session cookie. Requests without a valid session continue anonymously;
// use RequireSession to reject them.
func SessionAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(SessionCookie)
		}
		if token == "" || validator == nil {
			c.Next()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err == nil {
			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextSessionID, claims.SessionID())
			c.Set(ContextIsAdmin, claims.IsAdmin)
		}

		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireSession rejects requests without a valid session
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserID(c) == "" {
			HandleAppError(c, NewUnauthorizedError("Not authenticated"))
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests from non-admin sessions
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserID(c) == "" {
			HandleAppError(c, NewUnauthorizedError("Not authenticated"))
			return
		}
		if !IsAdmin(c) {
			HandleAppError(c, NewForbiddenError("Insufficient permissions"))
			return
		}
		c.Next()
	}
}

// GetUserID extracts user ID from context; empty when anonymous.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// GetSessionID extracts the session ID from context
func GetSessionID(c *gin.Context) string {
	return c.GetString(ContextSessionID)
}

// IsAdmin reports whether the session belongs to an operator
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ContextIsAdmin)
}
