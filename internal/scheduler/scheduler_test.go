package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/altafino/order-mail-extractor/internal/errorlog"
	"github.com/altafino/order-mail-extractor/internal/jobs"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticSettings struct{ cfg *types.Settings }

func (s staticSettings) Get() *types.Settings { return s.cfg }

type recordingSubmitter struct {
	types []models.JobType
	err   error
}

func (r *recordingSubmitter) Submit(ctx context.Context, t models.JobType, s *types.Settings) (*models.Job, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.types = append(r.types, t)
	return &models.Job{ID: "j", Type: t}, nil
}

type pruner struct {
	before time.Time
	err    error
}

func (p *pruner) DeleteEmailsBefore(ctx context.Context, before time.Time) (int64, error) {
	p.before = before
	return 3, p.err
}

func TestUpdateSchedulesEnabledJobs(t *testing.T) {
	cfg := &types.Settings{}
	cfg.Scheduling.Enabled = true
	cfg.Scheduling.FrequencyEvery = "minute"
	cfg.Scheduling.FrequencyAmount = 15
	cfg.Cleanup.Enabled = true
	cfg.Cleanup.FrequencyEvery = "day"
	cfg.Cleanup.FrequencyAmount = 1

	s := NewScheduler(&recordingSubmitter{}, staticSettings{cfg}, NewCleaner(&pruner{}, testLogger()), testLogger())
	if err := s.Update(cfg); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if s.Jobs() != 2 {
		t.Errorf("Jobs() = %d, want 2", s.Jobs())
	}

	cfg.Cleanup.Enabled = false
	if err := s.Update(cfg); err != nil {
		t.Fatal(err)
	}
	if s.Jobs() != 1 {
		t.Errorf("Jobs() after disabling cleanup = %d, want 1", s.Jobs())
	}

	cfg.Scheduling.Enabled = false
	if err := s.Update(cfg); err != nil {
		t.Fatal(err)
	}
	if s.Jobs() != 0 {
		t.Errorf("Jobs() after disabling all = %d, want 0", s.Jobs())
	}
}

func TestUpdateRejectsBadFrequency(t *testing.T) {
	cfg := &types.Settings{}
	cfg.Scheduling.Enabled = true
	cfg.Scheduling.FrequencyEvery = "fortnight"
	cfg.Scheduling.FrequencyAmount = 1

	s := NewScheduler(&recordingSubmitter{}, staticSettings{cfg}, nil, testLogger())
	if err := s.Update(cfg); err == nil {
		t.Error("Update() accepted an unknown unit")
	}

	cfg.Scheduling.FrequencyEvery = "hour"
	cfg.Scheduling.FrequencyAmount = 0
	if err := s.Update(cfg); err == nil {
		t.Error("Update() accepted a zero amount")
	}
}

func TestRunIngestionUsesConfiguredJobType(t *testing.T) {
	cfg := &types.Settings{}
	cfg.Scheduling.JobType = "rule-preloaded"
	sub := &recordingSubmitter{}

	s := NewScheduler(sub, staticSettings{cfg}, nil, testLogger())
	s.runIngestion()
	if len(sub.types) != 1 || sub.types[0] != models.JobRulePreloaded {
		t.Errorf("submitted %v, want one rule-preloaded job", sub.types)
	}

	sub.err = jobs.ErrJobRunning
	s.runIngestion()
	if len(sub.types) != 1 {
		t.Error("busy runner should not record another job")
	}
}

func TestCleanerRun(t *testing.T) {
	dir := t.TempDir()
	cfg := &types.Settings{}
	cfg.Meta.ID = "shop"
	cfg.Protocol = "pop3"
	cfg.POP3.Server = "pop.example.com"
	cfg.POP3.Username = "orders"
	cfg.Tracking.StoragePath = filepath.Join(dir, "tracking")
	cfg.ErrorLogging.Enabled = true
	cfg.ErrorLogging.StoragePath = filepath.Join(dir, "errors")
	cfg.ErrorLogging.RetentionDays = 7
	cfg.Cleanup.RetentionDays = 30

	old := filepath.Join(cfg.ErrorLogging.StoragePath, "errors_shop_2020-01-01.json")
	if err := os.MkdirAll(cfg.ErrorLogging.StoragePath, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(old, []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &pruner{}
	c := NewCleaner(p, testLogger())
	c.now = func() time.Time { return now }

	if err := c.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := now.AddDate(0, 0, -30); !p.before.Equal(want) {
		t.Errorf("cutoff = %v, want %v", p.before, want)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("old journal file still present: %v", err)
	}
	if _, err := os.Stat(cfg.Tracking.StoragePath); err != nil {
		t.Errorf("seen journal not opened: %v", err)
	}
}

func TestCleanerContinuesAfterFailure(t *testing.T) {
	cfg := &types.Settings{}
	cfg.Cleanup.RetentionDays = 10
	cfg.ErrorLogging.RetentionDays = errorlog.DefaultRetentionDays

	boom := errors.New("database is locked")
	err := NewCleaner(&pruner{err: boom}, testLogger()).Run(context.Background(), cfg)
	if !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want wrapped prune failure", err)
	}
}
