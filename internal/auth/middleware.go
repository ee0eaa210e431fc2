package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	apiKeyHeader        = "apikey"
	bearerPrefix        = "Bearer "
)

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if !authenticateUser(c, m, tok) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

// RequireServiceKey admits callers presenting the service key, either as a
// bearer token or in the apikey header. Cron triggers and provider webhooks use it.
func RequireServiceKey(serviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !matchesServiceKey(c, serviceKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "service key required"})
			return
		}
		c.Request = c.Request.WithContext(WithService(c.Request.Context()))
		c.Next()
	}
}

// RequireUserOrService accepts either a user access token or the service key.
func RequireUserOrService(m *Manager, serviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if matchesServiceKey(c, serviceKey) {
			c.Request = c.Request.WithContext(WithService(c.Request.Context()))
			c.Next()
			return
		}
		tok, ok := bearerToken(c)
		if !ok || !authenticateUser(c, m, tok) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func authenticateUser(c *gin.Context, m *Manager, tok string) bool {
	if m == nil {
		return false
	}
	claims, err := m.Verify(tok, time.Now())
	if err != nil {
		return false
	}
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.UserID, claims.Role))
	c.Set("user_id", claims.UserID)
	c.Set("role", claims.Role)
	return true
}

func bearerToken(c *gin.Context) (string, bool) {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	return tok, tok != ""
}

func matchesServiceKey(c *gin.Context, serviceKey string) bool {
	if serviceKey == "" {
		return false
	}
	candidate := strings.TrimSpace(c.GetHeader(apiKeyHeader))
	if candidate == "" {
		candidate, _ = bearerToken(c)
	}
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(serviceKey)) == 1
}
