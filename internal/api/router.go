// Package api exposes the job runner, the rules, the stored emails and the
// settings over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/altafino/order-mail-extractor/internal/email"
	"github.com/altafino/order-mail-extractor/internal/extractor"
	"github.com/altafino/order-mail-extractor/internal/metrics"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/store"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// JobRunner is the part of jobs.Runner the API drives
type JobRunner interface {
	Submit(ctx context.Context, jobType models.JobType, settings *types.Settings) (*models.Job, error)
	Get(id string) (*models.Job, bool)
	Current() (*models.Job, bool)
	List() []models.Job
	RequestStop() bool
}

// Extractor runs structured extraction on demand
type Extractor interface {
	Extract(ctx context.Context, e *models.Email, settings *types.Settings, saveFiles bool) extractor.Result
}

// MailboxOpener hands out mailbox sessions
type MailboxOpener interface {
	Open(ctx context.Context, settings *types.Settings, fn func(email.Session) error) error
}

// Settings is the settings cache with full-replace semantics
type Settings interface {
	Get() *types.Settings
	Replace(next *types.Settings) error
}

// Deps are the collaborators served by the router
type Deps struct {
	Runner    JobRunner
	Store     store.Store
	Settings  Settings
	Extractor Extractor
	Mailbox   MailboxOpener
}

// Router wraps the gin engine
type Router struct {
	Engine *gin.Engine
	deps   Deps
	logger *slog.Logger
}

// NewRouter registers every route. The metrics endpoint is mounted when
// monitoring is enabled at construction time.
func NewRouter(deps Deps, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	r := &Router{
		Engine: gin.New(),
		deps:   deps,
		logger: logger,
	}
	r.Engine.Use(gin.Recovery(), r.requestLogger())

	r.Engine.GET("/healthz", r.health)

	settings := deps.Settings.Get()
	if settings.Monitoring.MetricsEnabled {
		path := settings.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	api := r.Engine.Group("/api")
	{
		api.POST("/jobs", r.submitJob)
		api.GET("/jobs", r.listJobs)
		api.GET("/jobs/current", r.currentJob)
		api.POST("/jobs/stop", r.stopJob)
		api.GET("/jobs/:id", r.getJob)

		api.GET("/rules", r.listRules)
		api.POST("/rules", r.addRule)
		api.DELETE("/rules/:id", r.deleteRule)

		api.GET("/emails", r.listEmails)
		api.GET("/emails/:id", r.getEmail)
		api.POST("/emails/:id/extract", r.extractEmail)
		api.DELETE("/emails/:id", r.deleteEmail)

		api.GET("/mailbox/unseen", r.previewUnseen)
		api.GET("/errors", r.listErrors)

		api.GET("/settings", r.getSettings)
		api.PUT("/settings", r.putSettings)
	}

	return r
}

// Serve runs the HTTP server until ctx is cancelled
func (r *Router) Serve(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (r *Router) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(status), time.Since(start))

		r.logger.Debug("http request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", time.Since(start))
	}
}

func (r *Router) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
