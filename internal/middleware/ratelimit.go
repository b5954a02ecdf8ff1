package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emberfall-zone/core/internal/pkg/bark"
	"github.com/emberfall-zone/core/internal/pkg/ratelimit"
	"github.com/emberfall-zone/core/internal/pkg/response"
)

// ClientID resolves the rate-limit identity for a request. Proxy headers win
// over the socket address so limits follow the real visitor behind nginx or
// Cloudflare.
func ClientID(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("X-Forwarded-For")); v != "" {
		if idx := strings.IndexByte(v, ','); idx >= 0 {
			v = strings.TrimSpace(v[:idx])
		}
		if v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(c.GetHeader("X-Real-IP")); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.GetHeader("CF-Connecting-IP")); v != "" {
		return v
	}
	if v := c.ClientIP(); v != "" {
		return v
	}
	return "unknown"
}

// ApplyRateHeaders writes the standard X-RateLimit trio for a limiter verdict.
func ApplyRateHeaders(c *gin.Context, res ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// DenyRateLimited aborts the request with the 429 envelope matching the
// limiter's denial reason.
func DenyRateLimited(c *gin.Context, res ratelimit.Result) {
	retryAfter := int(res.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))

	code := response.CodeRateLimitExceeded
	msg := "Too many requests. Please try again later."
	if res.Reason == ratelimit.ReasonTokenReuse {
		code = response.CodeSecurityTokenReuse
		msg = "This link has already been used."
	}
	response.FailWith(c, http.StatusTooManyRequests, code, msg, gin.H{
		"retryAfter": retryAfter,
	})
}

// RateLimit enforces a fixed-window per-client limit on the wrapped routes.
func RateLimit(limiter *ratelimit.Limiter, barkSvc *bark.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ClientID(c)
		res := limiter.Check(id)
		ApplyRateHeaders(c, res)
		if !res.Allowed {
			if barkSvc != nil {
				go barkSvc.ThrottlePush(id, c.Request.URL.Path)
			}
			DenyRateLimited(c, res)
			return
		}
		c.Next()
	}
}
