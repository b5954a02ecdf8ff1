package response

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Machine-readable error codes. Clients treat unknown codes as generic failures.
const (
	CodeValidationEmail       = "validation_email"
	CodeValidationContentType = "validation_content_type"
	CodeValidationJSON        = "validation_json"
	CodeValidationBody        = "validation_body"
	CodeTokenInvalidFormat    = "TOKEN_INVALID_FORMAT"
	CodeTokenNotFound         = "TOKEN_NOT_FOUND"
	CodeAlreadySubscribed     = "ALREADY_SUBSCRIBED"
	CodeAlreadyPending        = "ALREADY_PENDING"
	CodeRaceConditionDetected = "RACE_CONDITION_DETECTED"
	CodeEmailDeliveryFailed   = "EMAIL_DELIVERY_FAILED"
	CodeDatabaseStorageFailed = "DATABASE_STORAGE_FAILED"
	CodeDatabaseUnavailable   = "database_unavailable"
	CodeRateLimitExceeded     = "rate_limit_exceeded"
	CodeSecurityTokenReuse    = "security_token_reuse"
	CodeUnauthorized          = "unauthorized"
	CodeNotFound              = "not_found"
	CodeMethodNotAllowed      = "method_not_allowed"
	CodeServerInternal        = "server_internal"
)

// Every response uses the same envelope: success + timestamp, then either a
// data payload or an error message + code, never both.

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// OK sends a 200 success envelope.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "timestamp": now(), "data": data})
}

// Created sends a 201 success envelope.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "timestamp": now(), "data": data})
}

// Fail sends an error envelope with the given HTTP status and error code.
func Fail(c *gin.Context, status int, code, message string) {
	FailWith(c, status, code, message, nil)
}

// FailWith sends an error envelope with additional top-level fields (e.g.
// emailSent/messageId on post-send storage failures).
func FailWith(c *gin.Context, status int, code, message string, extra gin.H) {
	body := gin.H{"success": false, "timestamp": now(), "error": message, "code": code}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest sends a 400 validation error.
func BadRequest(c *gin.Context, code, message string) {
	Fail(c, http.StatusBadRequest, code, message)
}

// Unauthorized sends a 401 error.
func Unauthorized(c *gin.Context) {
	Fail(c, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
}

// NotFound sends a 404 error.
func NotFound(c *gin.Context) {
	Fail(c, http.StatusNotFound, CodeNotFound, "Not found")
}

// NotFoundMsg sends a 404 error with a custom code and message.
func NotFoundMsg(c *gin.Context, code, message string) {
	Fail(c, http.StatusNotFound, code, message)
}

// Conflict sends a 409 error.
func Conflict(c *gin.Context, code, message string) {
	Fail(c, http.StatusConflict, code, message)
}

// MethodNotAllowed sends a 405 error with an Allow header listing the methods
// the endpoint supports.
func MethodNotAllowed(c *gin.Context, allow ...string) {
	if len(allow) > 0 {
		c.Header("Allow", strings.Join(allow, ", "))
	}
	Fail(c, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
}

// InternalError sends a 500 error with a generic message; err detail belongs
// in server logs, not in the response body.
func InternalError(c *gin.Context) {
	Fail(c, http.StatusInternalServerError, CodeServerInternal, "Internal server error")
}

// ServiceUnavailable sends a 503 error.
func ServiceUnavailable(c *gin.Context, code, message string) {
	Fail(c, http.StatusServiceUnavailable, code, message)
}
