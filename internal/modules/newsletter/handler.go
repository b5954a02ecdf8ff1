package newsletter

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/emberfall-zone/core/internal/middleware"
	"github.com/emberfall-zone/core/internal/pkg/ratelimit"
	"github.com/emberfall-zone/core/internal/pkg/response"
)

type Handler struct {
	svc     *Service
	limiter *ratelimit.Limiter
}

func NewHandler(svc *Service, limiter *ratelimit.Limiter) *Handler {
	return &Handler{svc: svc, limiter: limiter}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, limiterMW, readLimiterMW, authMW gin.HandlerFunc) {
	rg.POST("/subscribe", limiterMW, h.subscribe)
	rg.GET("/subscribe/confirm", h.confirm)
	rg.GET("/subscribe", readLimiterMW, h.count)

	g := rg.Group("/newsletter")
	g.POST("/unsubscribe", h.unsubscribe)
	g.GET("/stats", readLimiterMW, authMW, h.stats)
}

// requireJSON rejects POST bodies that are not declared application/json.
func requireJSON(c *gin.Context) bool {
	ct := c.ContentType()
	if !strings.EqualFold(ct, "application/json") {
		response.BadRequest(c, response.CodeValidationContentType,
			"Content-Type must be application/json")
		return false
	}
	return true
}

func failFlow(c *gin.Context, ferr *FlowError) {
	if ferr.EmailSent {
		response.FailWith(c, ferr.Status, ferr.Code, ferr.Message, gin.H{
			"emailSent": true,
			"messageId": ferr.MessageID,
		})
		return
	}
	response.Fail(c, ferr.Status, ferr.Code, ferr.Message)
}

// POST /subscribe
func (h *Handler) subscribe(c *gin.Context) {
	if !requireJSON(c) {
		return
	}

	var dto SubscribeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, response.CodeValidationJSON, "Invalid JSON in request body")
		return
	}

	result, ferr := h.svc.Subscribe(&dto)
	if ferr != nil {
		failFlow(c, ferr)
		return
	}
	response.Created(c, result)
}

// GET /subscribe/confirm?token=...
func (h *Handler) confirm(c *gin.Context) {
	result, ferr := h.svc.Confirm(strings.TrimSpace(c.Query("token")))
	if ferr != nil {
		failFlow(c, ferr)
		return
	}
	response.OK(c, result)
}

// POST /newsletter/unsubscribe
func (h *Handler) unsubscribe(c *gin.Context) {
	if !requireJSON(c) {
		return
	}

	var dto UnsubscribeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, response.CodeValidationJSON, "Invalid JSON in request body")
		return
	}

	// Token requests double as a replay guard: a token that never resolves
	// is remembered per client and refused on the next attempt.
	clientID := middleware.ClientID(c)
	var verdict ratelimit.Result
	if dto.Token != "" {
		verdict = h.limiter.CheckToken(clientID, dto.Token)
	} else {
		verdict = h.limiter.Check(clientID)
	}
	middleware.ApplyRateHeaders(c, verdict)
	if !verdict.Allowed {
		middleware.DenyRateLimited(c, verdict)
		return
	}

	meta := RequestMeta{
		IP:        clientID,
		UserAgent: c.Request.UserAgent(),
	}
	result, ferr := h.svc.Unsubscribe(&dto, meta)
	if ferr != nil {
		failFlow(c, ferr)
		return
	}
	if dto.Token != "" && !result.Known() {
		h.limiter.MarkTokenUsed(clientID, dto.Token)
	}
	response.OK(c, result)
}

// GET /subscribe (active subscriber count, cached)
func (h *Handler) count(c *gin.Context) {
	count, err := h.svc.Count(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.CodeDatabaseUnavailable,
			"Database temporarily unavailable")
		return
	}
	response.OK(c, gin.H{"count": count})
}

// GET /newsletter/stats (admin)
func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.CodeDatabaseUnavailable,
			"Database temporarily unavailable")
		return
	}
	response.OK(c, stats)
}
