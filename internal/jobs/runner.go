// Package jobs runs mailbox passes in the background and tracks their
// progress. At most one job runs at a time.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/altafino/order-mail-extractor/internal/metrics"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/pipeline"
	"github.com/altafino/order-mail-extractor/internal/rules"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/google/uuid"
)

const (
	// MaxJobs is the number of jobs kept for inspection
	MaxJobs = 10
	// StopClearDelay is how long a stop request stays armed
	StopClearDelay = 10 * time.Second
)

var (
	// ErrJobRunning is returned by Submit while another job is running
	ErrJobRunning = errors.New("a job is already running")
	// ErrUnknownJobType is returned for job types other than plain and rule-preloaded
	ErrUnknownJobType = errors.New("unknown job type")
)

// Pass runs one ingestion pass
type Pass interface {
	Run(ctx context.Context, settings *types.Settings, opts pipeline.Options) (models.RunResult, error)
}

// RuleSource loads the sender rules for rule-preloaded jobs
type RuleSource interface {
	GetRules(ctx context.Context) ([]models.Rule, error)
}

// Runner owns the current-job slot, the retained jobs and the stop flag
type Runner struct {
	pass   Pass
	rules  RuleSource
	logger *slog.Logger

	mu        sync.Mutex
	jobs      map[string]*models.Job
	order     []string
	current   string
	stop      pipeline.StopFlag
	stopTimer *time.Timer
	stopDelay time.Duration
	wg        sync.WaitGroup
}

// NewRunner creates a runner
func NewRunner(pass Pass, rules RuleSource, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		pass:      pass,
		rules:     rules,
		logger:    logger,
		jobs:      make(map[string]*models.Job),
		stopDelay: StopClearDelay,
	}
}

// Submit starts a job unless one is running. The job outlives ctx; only
// its values are carried over.
func (r *Runner) Submit(ctx context.Context, jobType models.JobType, settings *types.Settings) (*models.Job, error) {
	if jobType == "" {
		jobType = models.JobPlain
	}
	if jobType != models.JobPlain && jobType != models.JobRulePreloaded {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	r.mu.Lock()
	if r.current != "" {
		r.mu.Unlock()
		return nil, ErrJobRunning
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:               uuid.NewString(),
		Type:             jobType,
		Status:           models.JobRunning,
		CurrentOperation: "starting",
		CreatedAt:        now,
		StartedAt:        &now,
	}
	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	r.current = job.ID
	r.evict()
	snapshot := *job
	r.mu.Unlock()

	r.logger.Info("job submitted", "job_id", job.ID, "type", jobType)

	r.wg.Add(1)
	go r.run(context.WithoutCancel(ctx), job.ID, jobType, settings)

	return &snapshot, nil
}

func (r *Runner) run(ctx context.Context, id string, jobType models.JobType, settings *types.Settings) {
	defer r.wg.Done()

	opts := pipeline.Options{
		Progress: func(p pipeline.Progress) { r.progress(id, p) },
		Stop:     &r.stop,
		JobID:    id,
	}

	var (
		result models.RunResult
		err    error
	)
	if jobType == models.JobRulePreloaded {
		opts.RuleIndex, err = r.loadIndex(ctx)
	}
	if err == nil {
		result, err = r.runPass(ctx, settings, opts)
	}

	r.finish(id, result, err)
}

// runPass turns a panic in the pass into a failed job instead of a crashed process
func (r *Runner) runPass(ctx context.Context, settings *types.Settings, opts pipeline.Options) (result models.RunResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pass panicked: %v", rec)
		}
	}()
	return r.pass.Run(ctx, settings, opts)
}

func (r *Runner) loadIndex(ctx context.Context) (*rules.Index, error) {
	rs, err := r.rules.GetRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	idx := rules.NewIndex(rs)
	r.logger.Debug("rule index built", "patterns", idx.Len())
	return idx, nil
}

func (r *Runner) progress(id string, p pipeline.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return
	}
	job.CurrentOperation = string(p.Stage)
	job.TotalEmails = p.Total
	job.ProcessedEmails = p.Processed
	job.Progress = percent(p)
}

// percent maps a stage to 0-100. Message handling covers 15 to 95.
func percent(p pipeline.Progress) int {
	switch p.Stage {
	case pipeline.StageConnecting:
		return 5
	case pipeline.StageSearchingUnseen:
		return 10
	case pipeline.StageFetchingMessages:
		return 15
	case pipeline.StageExtracting:
		return 95
	case pipeline.StageDone:
		return 100
	}
	if p.Total <= 0 {
		return 15
	}
	return 15 + 80*p.Processed/p.Total
}

func (r *Runner) finish(id string, result models.RunResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == id {
		r.current = ""
	}
	job, ok := r.jobs[id]
	if !ok {
		return
	}

	now := time.Now().UTC()
	job.CompletedAt = &now
	if err != nil {
		job.Status = models.JobFailed
		job.Error = err.Error()
		job.CurrentOperation = "failed"
		metrics.IncrementJob(string(models.JobFailed))
		r.logger.Error("job failed", "job_id", id, "error", err)
		return
	}

	job.Status = models.JobCompleted
	job.Result = &result
	job.Progress = 100
	job.CurrentOperation = string(pipeline.StageDone)
	metrics.IncrementJob(string(models.JobCompleted))
	r.logger.Info("job completed",
		"job_id", id,
		"processed", result.ProcessedCount,
		"skipped", result.SkippedCount,
		"errors", len(result.Errors),
		"stopped", result.Stopped)
}

// evict drops the oldest finished jobs beyond MaxJobs. Must hold mu.
func (r *Runner) evict() {
	for len(r.order) > MaxJobs {
		victim := -1
		for i, id := range r.order {
			if r.jobs[id].Finished() {
				victim = i
				break
			}
		}
		if victim < 0 {
			return
		}
		delete(r.jobs, r.order[victim])
		r.order = append(r.order[:victim], r.order[victim+1:]...)
	}
}

// RequestStop asks the running pass to stop after the current message.
// The request clears itself after StopClearDelay. It reports whether a
// job was running.
func (r *Runner) RequestStop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stop.Request()
	if r.stopTimer != nil {
		r.stopTimer.Stop()
	}
	r.stopTimer = time.AfterFunc(r.stopDelay, r.stop.Clear)

	r.logger.Info("stop requested", "job_id", r.current)
	return r.current != ""
}

// StopRequested reports whether a stop request is armed
func (r *Runner) StopRequested() bool {
	return r.stop.StopRequested()
}

// Get returns a copy of the job with the given id
func (r *Runner) Get(id string) (*models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	c := *job
	return &c, true
}

// Current returns a copy of the running job, if any
func (r *Runner) Current() (*models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == "" {
		return nil, false
	}
	c := *r.jobs[r.current]
	return &c, true
}

// List returns copies of the retained jobs, newest first
func (r *Runner) List() []models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Job, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, *r.jobs[r.order[i]])
	}
	return out
}

// Wait blocks until every started job has finished
func (r *Runner) Wait() {
	r.wg.Wait()
}
