package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/database"
	"github.com/papergrade/core/internal/middleware"
	"github.com/papergrade/core/internal/modules/content/cache"
	"github.com/papergrade/core/internal/modules/content/summary"
	"github.com/papergrade/core/internal/modules/grading/analyzer"
	"github.com/papergrade/core/internal/modules/grading/grader"
	"github.com/papergrade/core/internal/modules/grading/multipage"
	"github.com/papergrade/core/internal/modules/grading/paper"
	"github.com/papergrade/core/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	apiPrefix       = "/api/v1"
	summaryMaxToken = 1024
	pingTimeout     = 2 * time.Second
)

var appInfo = gin.H{
	"name":    "papergrade-core",
	"version": "1.0.0",
}

func (a *App) registerRoutes(ctx context.Context) {
	r := a.router
	cfg := a.cfg
	authMW := middleware.Auth()
	adminMW := middleware.AdminOnly(cfg.IsAdmin)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	api := r.Group(apiPrefix)
	api.Use(middleware.OptionalAuth())
	api.Use(middleware.Idempotence(a.rc.Raw()))

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptime := time.Since(processStart)
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptime.Milliseconds(),
			"humanize":  humanizeDuration(uptime),
		})
	})
	api.GET("/health", a.health)

	// AI providers are optional at boot; routes needing them answer 503.
	vision, err := analyzer.NewVision(ctx, cfg.AI)
	if err != nil {
		a.logger.Warn("vision analyzer unavailable", zap.Error(err))
		vision = nil
	}
	text, err := analyzer.NewText(cfg.AI, summaryMaxToken)
	if err != nil {
		a.logger.Warn("text model unavailable", zap.Error(err))
		text = nil
	}

	maxUpload := cfg.MaxUploadBytes()
	gradeLimit := middleware.RateLimit(a.rc.Raw(), "grading", cfg.Grading.RateLimit, time.Minute, a.logger)

	// Question papers
	paperRepo := paper.NewRepository(a.db, a.rc, a.logger)
	extractor := paper.NewExtractor(vision, cfg.Grading.MaxImageEdge, cfg.AnalyzerTimeout())
	paperSvc := paper.NewService(paperRepo, extractor, a.blobs, a.logger)
	paperHandler := paper.NewHandler(paperSvc, a.temp, maxUpload)
	paperHandler.RegisterRoutes(api, authMW, gradeLimit)

	// Gradings
	gradeSvc := grader.NewService(grader.NewStore(a.db), vision, paperRepo, a.blobs, a.logger, grader.Options{
		MaxImageEdge:    cfg.Grading.MaxImageEdge,
		AnalyzerTimeout: cfg.AnalyzerTimeout(),
	})
	grader.NewHandler(gradeSvc, paperHandler, a.temp, maxUpload, cfg.IsAdmin).
		RegisterRoutes(api, authMW, gradeLimit)

	a.multipage = multipage.NewService(gradeSvc, paperRepo, a.tasks, a.temp, cfg.Grading.MaxPages, a.logger)
	multipage.NewHandler(a.multipage, paperHandler, a.temp, maxUpload, cfg.IsAdmin).
		RegisterRoutes(api, authMW, gradeLimit)

	// Content cache
	cacheStore := cache.NewStore(a.db)
	cache.NewHandler(cacheStore).RegisterRoutes(api, authMW, adminMW)
	summary.NewHandler(summary.NewService(cacheStore, text, cfg.AI.EnableSummary, a.logger)).
		RegisterRoutes(api, authMW)

	// Scheduled jobs (admin)
	cron := api.Group("/cron", authMW, adminMW)
	cron.GET("", func(c *gin.Context) { response.OK(c, a.sched.List()) })
	cron.POST("/:name/run", func(c *gin.Context) {
		if err := a.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.NoContent(c)
	})
}

// GET /health
func (a *App) health(c *gin.Context) {
	ctx := c.Request.Context()
	status := gin.H{"database": "ok", "redis": "ok"}
	var failed error
	if err := database.Ping(ctx, a.db, pingTimeout); err != nil {
		status["database"] = err.Error()
		failed = errors.Join(failed, err)
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := a.rc.Ping(pctx); err != nil {
		status["redis"] = err.Error()
		failed = errors.Join(failed, err)
	}
	if failed != nil {
		a.logger.Warn("health check failed", zap.Error(failed))
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
