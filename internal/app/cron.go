package app

import (
	"context"
	"time"

	"github.com/papergrade/core/internal/pkg/blob"
	pkgcron "github.com/papergrade/core/internal/pkg/cron"
	"github.com/papergrade/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const (
	uploadMaxAge  = time.Hour
	taskRetention = 7 * 24 * time.Hour
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, temp *blob.Temp, tasks *taskqueue.Service, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        "sweep_uploads",
		Description: "Delete temporary uploads older than one hour",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := temp.Sweep(uploadMaxAge, time.Now())
			if err != nil {
				cronLogger.Warn("upload sweep failed", zap.Error(err))
				return err
			}
			if n > 0 {
				cronLogger.Info("stale uploads removed", zap.Int("count", n))
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "cleanup_tasks",
		Description: "Delete finished grading tasks older than seven days",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := tasks.DeleteFinished(ctx, time.Now().Add(-taskRetention))
			if err != nil {
				cronLogger.Warn("task cleanup failed", zap.Error(err))
				return err
			}
			cronLogger.Info("finished tasks removed", zap.Int("count", n))
			return nil
		},
	})
}
