package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/config"
	"github.com/papergrade/core/internal/database"
	"github.com/papergrade/core/internal/middleware"
	"github.com/papergrade/core/internal/modules/grading/multipage"
	"github.com/papergrade/core/internal/pkg/blob"
	pkgcron "github.com/papergrade/core/internal/pkg/cron"
	pkgredis "github.com/papergrade/core/internal/pkg/redis"
	"github.com/papergrade/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	rc     *pkgredis.Client
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler

	blobs     blob.Store
	temp      *blob.Temp
	tasks     *taskqueue.Service
	multipage *multipage.Service
}

// New initializes the application: config → DB → Redis → storage → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := applyRuntimeSettings(cfg, logger); err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	blobs, err := blob.New(ctx, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("storage: %w", err)
	}
	temp, err := blob.NewTemp(cfg.UploadDir())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("upload dir: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.MaxMultipartMemory = cfg.MaxUploadBytes()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(newCORS(cfg))

	app := &App{
		cfg:    cfg,
		router: router,
		db:     db,
		rc:     rc,
		logger: logger,
		cancel: cancel,
		sched:  pkgcron.New(logger),
		blobs:  blobs,
		temp:   temp,
		tasks:  taskqueue.NewService(rc),
	}
	app.registerRoutes(ctx)

	registerCronJobs(app.sched, temp, app.tasks, logger)
	go app.sched.Start(ctx)

	logger.Info("application initialized",
		zap.String("env", cfg.Env),
		zap.String("storage", blobs.Driver()),
		zap.String("uploads", temp.Dir()),
	)
	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops scheduled jobs, waits for background gradings until ctx
// expires, and closes Redis.
func (a *App) Shutdown(ctx context.Context) error {
	a.cancel()

	done := make(chan struct{})
	go func() {
		if a.multipage != nil {
			a.multipage.Wait()
		}
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("background gradings still running: %w", ctx.Err())
	}

	if cerr := a.rc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

var processStart = time.Now()
