package health

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	pkgcron "github.com/emberfall-zone/core/internal/pkg/cron"
	pkgredis "github.com/emberfall-zone/core/internal/pkg/redis"
	"github.com/emberfall-zone/core/internal/pkg/response"
)

var processStart = time.Now()

type Handler struct {
	db    *gorm.DB
	cache *pkgredis.Client
	sched *pkgcron.Scheduler
}

func NewHandler(db *gorm.DB, cache *pkgredis.Client, sched *pkgcron.Scheduler) *Handler {
	return &Handler{db: db, cache: cache, sched: sched}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/health", h.get)
	rg.GET("/health/cron", authMW, h.cron)
}

func componentStatus(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

// GET /health
func (h *Handler) get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbUp := false
	if h.db != nil {
		if sqlDB, err := h.db.DB(); err == nil {
			dbUp = sqlDB.PingContext(ctx) == nil
		}
	}
	redisUp := h.cache != nil && h.cache.Ping(ctx) == nil

	status := "ok"
	if !dbUp {
		status = "degraded"
	}
	response.OK(c, gin.H{
		"status":   status,
		"uptime":   time.Since(processStart).Truncate(time.Second).String(),
		"database": componentStatus(dbUp),
		"redis":    componentStatus(redisUp),
	})
}

// GET /health/cron (admin)
func (h *Handler) cron(c *gin.Context) {
	if h.sched == nil {
		response.OK(c, []pkgcron.ListItem{})
		return
	}
	response.OK(c, h.sched.List())
}
