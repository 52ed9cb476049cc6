package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"intake-portal/internal/auth"
	"intake-portal/internal/shared/server/respond"
)

const (
	roleKey = "role"
	// SessionCookie carries the session token for browser clients.
	SessionCookie = "portal_session"
)

// Session resolves a bearer token or the session cookie and stores the role in context.
// Requests without a valid token pass through anonymously; handlers decide whether form
// credentials or a role are required.
func Session(issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || issuer == nil {
			c.Next()
			return
		}
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				token = cookie
			}
		}
		if token != "" {
			if role, err := issuer.Verify(token); err == nil {
				c.Set(roleKey, string(role))
			}
		}
		c.Next()
	}
}

// RequireRole rejects requests whose session is not for role.
func RequireRole(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if RoleFromContext(c) != role {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid session", nil)
			return
		}
		c.Next()
	}
}

// SetRole records an authenticated role, e.g. after a form credential check.
func SetRole(c *gin.Context, role auth.Role) {
	c.Set(roleKey, string(role))
}

// RoleFromContext fetches the role set by Session or SetRole.
func RoleFromContext(c *gin.Context) auth.Role {
	if c == nil {
		return ""
	}
	val, _ := c.Get(roleKey)
	if s, ok := val.(string); ok {
		return auth.Role(s)
	}
	return ""
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}
