package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/emberfall-zone/core/internal/modules/newsletter"
	pkgcron "github.com/emberfall-zone/core/internal/pkg/cron"
	"github.com/emberfall-zone/core/internal/pkg/ratelimit"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, svc *newsletter.Service, limiters []*ratelimit.Limiter, logger *zap.Logger) {
	cronLogger := logger.Named("cron")

	sched.Register(pkgcron.Job{
		Name:        "pending_cleanup",
		Description: "Remove pending subscriptions past the confirmation TTL",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			removed, err := svc.CleanupExpired()
			if err != nil {
				cronLogger.Warn("pending cleanup failed", zap.Error(err))
				return err
			}
			if removed > 0 {
				cronLogger.Info("pending cleanup done", zap.Int64("removed", removed))
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "ratelimit_sweep",
		Description: "Evict elapsed rate-limit windows and aged token records",
		Interval:    10 * time.Minute,
		Fn: func(ctx context.Context) error {
			evicted := 0
			for _, l := range limiters {
				evicted += l.Sweep()
			}
			if evicted > 0 {
				cronLogger.Info("rate limiter swept", zap.Int("evicted", evicted))
			}
			return nil
		},
	})
}
