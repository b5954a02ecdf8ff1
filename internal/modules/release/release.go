package release

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emberfall-zone/core/internal/pkg/countdown"
	"github.com/emberfall-zone/core/internal/pkg/response"
)

// Handler serves the launch countdown widget data.
type Handler struct {
	release countdown.Release

	now func() time.Time
}

func NewHandler(release countdown.Release) *Handler {
	return &Handler{release: release, now: time.Now}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/release", h.get)
}

// GET /release
func (h *Handler) get(c *gin.Context) {
	now := h.now()
	response.OK(c, gin.H{
		"title":         h.release.Title,
		"date":          h.release.Date.UTC().Format("2006-01-02"),
		"daysRemaining": h.release.DaysRemaining(now),
		"released":      h.release.Released(now),
	})
}
