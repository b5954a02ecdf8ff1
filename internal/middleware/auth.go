package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/emberfall-zone/core/internal/config"
	"github.com/emberfall-zone/core/internal/pkg/jwt"
	"github.com/emberfall-zone/core/internal/pkg/response"
)

const ContextKeyAdmin = "is_admin"

// AdminAuth guards operator endpoints. It accepts an API key via the
// X-API-Key header or an Authorization bearer value, where the bearer may be
// either a raw API key or a signed admin JWT. Keys are matched against the
// configured plain list and bcrypt hash list.
func AdminAuth(admin config.AdminConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdminCredential(admin, extractCredential(c)) {
			c.Set(ContextKeyAdmin, true)
			c.Next()
			return
		}
		response.Unauthorized(c)
	}
}

// OptionalAdminAuth marks the request as admin when valid credentials are
// present but never blocks it.
func OptionalAdminAuth(admin config.AdminConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdminCredential(admin, extractCredential(c)) {
			c.Set(ContextKeyAdmin, true)
		}
		c.Next()
	}
}

// IsAdmin reports whether the request carried valid operator credentials.
func IsAdmin(c *gin.Context) bool {
	v, _ := c.Get(ContextKeyAdmin)
	ok, _ := v.(bool)
	return ok
}

func extractCredential(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("X-API-Key")); v != "" {
		return v
	}
	return NormalizeToken(c.GetHeader("Authorization"))
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

func isAdminCredential(admin config.AdminConfig, credential string) bool {
	if credential == "" {
		return false
	}
	for _, key := range admin.APIKeys {
		if key != "" && credential == key {
			return true
		}
	}
	for _, hash := range admin.APIKeyHashes {
		if hash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)) == nil {
			return true
		}
	}
	if claims, err := jwt.Parse(credential); err == nil && claims.Role == "admin" {
		return true
	}
	return false
}
