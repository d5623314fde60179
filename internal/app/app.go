// Package app wires the settings, the store, the mailbox pipeline, the job
// runner, the scheduler and the HTTP API into one process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/altafino/order-mail-extractor/internal/ai"
	"github.com/altafino/order-mail-extractor/internal/api"
	"github.com/altafino/order-mail-extractor/internal/archive"
	"github.com/altafino/order-mail-extractor/internal/classifier"
	"github.com/altafino/order-mail-extractor/internal/config"
	"github.com/altafino/order-mail-extractor/internal/email"
	"github.com/altafino/order-mail-extractor/internal/extractor"
	"github.com/altafino/order-mail-extractor/internal/jobs"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/pipeline"
	"github.com/altafino/order-mail-extractor/internal/rules"
	"github.com/altafino/order-mail-extractor/internal/scheduler"
	"github.com/altafino/order-mail-extractor/internal/store"
	"github.com/altafino/order-mail-extractor/internal/types"
)

// App represents the main application
type App struct {
	logger    *slog.Logger
	settings  *config.Store
	store     *store.SQLiteStore
	mailbox   *email.Mailbox
	pipeline  *pipeline.Pipeline
	extractor *extractor.Extractor
	runner    *jobs.Runner
	scheduler *scheduler.Scheduler
	watcher   *config.Watcher
	wg        sync.WaitGroup
}

// New creates a new application instance from a loaded settings store
func New(settings *config.Store, logger *slog.Logger) (*App, error) {
	cfg := settings.Get()

	st, err := store.NewSQLiteStore(cfg.Database.Path, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	client := ai.NewClient(logger)
	mailbox := email.NewMailbox(logger)
	ext := extractor.New(client, email.NewRefetcher(mailbox, logger), archive.New(logger), logger)
	pipe := pipeline.New(mailbox, st, classifier.New(client, logger), ext, logger)
	runner := jobs.NewRunner(pipe, st, logger)

	return &App{
		logger:    logger,
		settings:  settings,
		store:     st,
		mailbox:   mailbox,
		pipeline:  pipe,
		extractor: ext,
		runner:    runner,
		scheduler: scheduler.NewScheduler(runner, settings, scheduler.NewCleaner(st, logger), logger),
	}, nil
}

// Start starts the settings watcher, the scheduler and the HTTP server.
// port overrides the configured port when positive. The server stops when
// ctx is cancelled.
func (a *App) Start(ctx context.Context, port int) error {
	watcher, err := config.StartWatcher(a.settings, a.logger)
	if err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	a.watcher = watcher

	cfg := a.settings.Get()
	if err := a.scheduler.Update(cfg); err != nil {
		return fmt.Errorf("failed to configure scheduler: %w", err)
	}
	a.scheduler.Start()

	router := api.NewRouter(api.Deps{
		Runner:    a.runner,
		Store:     a.store,
		Settings:  a,
		Extractor: a.extractor,
		Mailbox:   a.mailbox,
	}, a.logger)

	if port <= 0 {
		port = cfg.Server.Port
	}
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		err := router.Serve(ctx, addr,
			time.Duration(cfg.Server.ReadTimeout)*time.Second,
			time.Duration(cfg.Server.WriteTimeout)*time.Second)
		if err != nil {
			a.logger.Error("http server stopped", "error", err)
		}
	}()
	go a.watchConfigs()

	a.logger.Info("application started",
		"id", cfg.Meta.ID,
		"protocol", cfg.Protocol,
		"addr", addr)
	return nil
}

// Get returns the current settings
func (a *App) Get() *types.Settings {
	return a.settings.Get()
}

// Replace swaps the settings and reschedules. The watcher would notice the
// write as well; rescheduling here makes the change visible immediately.
func (a *App) Replace(next *types.Settings) error {
	if err := a.settings.Replace(next); err != nil {
		return err
	}
	if err := a.scheduler.Update(a.settings.Get()); err != nil {
		a.logger.Error("failed to update scheduler", "error", err)
	}
	return nil
}

// RunOnce runs a single pass in the foreground, bypassing the job runner
func (a *App) RunOnce(ctx context.Context, jobType models.JobType) (models.RunResult, error) {
	cfg := a.settings.Get()
	opts := pipeline.Options{}
	if jobType == models.JobRulePreloaded {
		rs, err := a.store.GetRules(ctx)
		if err != nil {
			return models.RunResult{}, fmt.Errorf("failed to load rules: %w", err)
		}
		opts.RuleIndex = rules.NewIndex(rs)
	}
	return a.pipeline.Run(ctx, cfg, opts)
}

// Stop gracefully stops all application services. The HTTP server is
// stopped through the context passed to Start.
func (a *App) Stop() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("failed to stop config watcher", "error", err)
		}
	}
	a.scheduler.Stop()
	a.wg.Wait()
	a.runner.Wait()

	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}

func (a *App) watchConfigs() {
	defer a.wg.Done()

	for range a.watcher.ReloadChan() {
		a.logger.Info("reloading scheduler due to configuration change")
		if err := a.scheduler.Update(a.settings.Get()); err != nil {
			a.logger.Error("failed to update scheduler", "error", err)
		}
	}
}
