package app

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/emberfall-zone/core/internal/middleware"
	"github.com/emberfall-zone/core/internal/modules/health"
	"github.com/emberfall-zone/core/internal/modules/newsletter"
	"github.com/emberfall-zone/core/internal/modules/release"
	"github.com/emberfall-zone/core/internal/pkg/bark"
	"github.com/emberfall-zone/core/internal/pkg/countdown"
	"github.com/emberfall-zone/core/internal/pkg/mail"
	"github.com/emberfall-zone/core/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes() *newsletter.Service {
	r := a.router
	cfg := a.cfg

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c, a.allowedMethods(c.Request.URL.Path)...)
	})

	appInfo := gin.H{
		"name":     "emberfall-zone-core",
		"version":  "1.0.0",
		"homepage": "https://emberfall.zone",
	}

	barkSvc := bark.New(bark.Config{
		Key:       cfg.Bark.Key,
		ServerURL: cfg.Bark.ServerURL,
		SiteTitle: cfg.Site.Name,
	})

	sender := mail.New(mail.Config{
		Enable:    cfg.Mail.Enable,
		Host:      cfg.Mail.Host,
		Port:      cfg.Mail.Port,
		User:      cfg.Mail.User,
		Pass:      cfg.Mail.Pass,
		From:      cfg.Mail.From,
		ReplyTo:   cfg.Mail.ReplyTo,
		UseResend: cfg.Mail.UseResend,
		ResendKey: cfg.Mail.ResendKey,
		SiteName:  cfg.Site.Name,
	})
	launch := countdown.Release{Title: cfg.Release.Title, Date: cfg.ReleaseDate()}
	mailer := newsletter.NewReleaseMailer(sender, launch)

	newsletterSvc := newsletter.NewService(a.db, mailer, barkSvc, a.cache,
		a.logger.Named("newsletter"), newsletter.Options{
			PendingTTL:     cfg.PendingTTL(),
			BlockedDomains: cfg.Newsletter.BlockedDomains,
			CountCacheTTL:  cfg.CountCacheTTL(),
			ConfirmURL:     cfg.ConfirmURL,
			UnsubscribeURL: cfg.UnsubscribeURL,
		})

	api := r.Group(apiPrefix)
	api.Use(middleware.OptionalAdminAuth(cfg.Admin))
	api.Use(middleware.HTTPCache(a.cache.Raw(), middleware.HTTPCacheOptions{
		Disable:   cfg.IsDev(),
		SkipPaths: httpCacheSkipPaths(),
	}))

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })

	limiterMW := middleware.RateLimit(a.limiter, barkSvc)
	readLimiterMW := middleware.RateLimit(a.readLimiter, barkSvc)
	authMW := middleware.AdminAuth(cfg.Admin)

	newsletter.NewHandler(newsletterSvc, a.limiter).RegisterRoutes(api, limiterMW, readLimiterMW, authMW)
	release.NewHandler(launch).RegisterRoutes(api)
	health.NewHandler(a.db, a.cache, a.sched).RegisterRoutes(api, authMW)

	return newsletterSvc
}

// allowedMethods lists the verbs registered for an exact path, for the Allow
// header on 405 responses.
func (a *App) allowedMethods(path string) []string {
	seen := map[string]bool{}
	for _, route := range a.router.Routes() {
		if route.Path == path {
			seen[route.Method] = true
		}
	}
	methods := make([]string, 0, len(seen))
	for m := range seen {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

func httpCacheSkipPaths() []string {
	return []string{
		// confirm is a GET with side effects, it must always hit the handler
		apiPrefix + "/subscribe/confirm",
		apiPrefix + "/health*",
	}
}
