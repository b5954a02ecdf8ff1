package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emberfall-zone/core/internal/config"
	"github.com/emberfall-zone/core/internal/database"
	"github.com/emberfall-zone/core/internal/middleware"
	pkgcron "github.com/emberfall-zone/core/internal/pkg/cron"
	jwtpkg "github.com/emberfall-zone/core/internal/pkg/jwt"
	"github.com/emberfall-zone/core/internal/pkg/ratelimit"
	pkgredis "github.com/emberfall-zone/core/internal/pkg/redis"
)

// readRateLimitPerMinute bounds the public GET endpoints. The HTTP cache in
// front of them absorbs most traffic, so this only throttles cache-busting
// clients.
const readRateLimitPerMinute = 60

// App holds all application dependencies.
type App struct {
	cfg         *config.AppConfig
	router      *gin.Engine
	db          *gorm.DB
	cache       *pkgredis.Client
	logger      *zap.Logger
	limiter     *ratelimit.Limiter
	readLimiter *ratelimit.Limiter
	cancel      context.CancelFunc
	sched       *pkgcron.Scheduler
}

// New initializes the application: config → DB → Redis → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtpkg.SetSecret(secret)
	} else {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length", "x-ef-cache", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		corsConfig.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	limiter := ratelimit.New(cfg.Newsletter.RateLimitMax, cfg.RateLimitWindow())
	readLimiter := ratelimit.New(readRateLimitPerMinute, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	sched := pkgcron.New()

	app := &App{
		cfg: cfg, router: router, db: db, cache: rc,
		logger: logger, limiter: limiter, readLimiter: readLimiter,
		cancel: cancel, sched: sched,
	}
	newsletterSvc := app.registerRoutes()
	registerCronJobs(sched, newsletterSvc, []*ratelimit.Limiter{limiter, readLimiter}, logger)
	go sched.Start(ctx)

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown cleans up background goroutines.
func (a *App) Shutdown() { a.cancel() }
