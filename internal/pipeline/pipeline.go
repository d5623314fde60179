// Package pipeline runs one pass over the unseen mail of the inbox:
// parse, route by sender rules, classify and persist every message.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/altafino/order-mail-extractor/internal/classifier"
	"github.com/altafino/order-mail-extractor/internal/email"
	"github.com/altafino/order-mail-extractor/internal/email/parser"
	"github.com/altafino/order-mail-extractor/internal/errorlog"
	"github.com/altafino/order-mail-extractor/internal/extractor"
	"github.com/altafino/order-mail-extractor/internal/metrics"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/rules"
	"github.com/altafino/order-mail-extractor/internal/store"
	"github.com/altafino/order-mail-extractor/internal/types"
)

// Stage is the step a pass is in
type Stage string

const (
	StageConnecting         Stage = "connecting"
	StageSearchingUnseen    Stage = "searching unseen messages"
	StageFetchingMessages   Stage = "fetching messages"
	StageParsing            Stage = "parsing"
	StageRouting            Stage = "routing"
	StageClassifyingContent Stage = "classifying content"
	StagePersisting         Stage = "persisting"
	StageExtracting         Stage = "extracting"
	StageDone               Stage = "done"
)

// Progress is reported on every stage change
type Progress struct {
	Stage     Stage
	Total     int
	Processed int
	UID       uint32
}

// ProgressFunc receives progress updates. It runs on the pass goroutine.
type ProgressFunc func(Progress)

// Options tune one pass
type Options struct {
	// RuleIndex is used for routing when set; otherwise the rules are
	// loaded from the store and scanned.
	RuleIndex *rules.Index
	Progress  ProgressFunc
	Stop      StopToken
	JobID     string
}

// Opener hands out mailbox sessions
type Opener interface {
	Open(ctx context.Context, settings *types.Settings, fn func(email.Session) error) error
}

// Classifier assigns the content type
type Classifier interface {
	Classify(ctx context.Context, e *models.Email, settings *types.Settings) classifier.Result
}

// Extractor produces structured records
type Extractor interface {
	Extract(ctx context.Context, e *models.Email, settings *types.Settings, saveFiles bool) extractor.Result
}

// Pipeline wires the mailbox, the classifier and the store together
type Pipeline struct {
	mailbox    Opener
	store      store.Store
	classifier Classifier
	extractor  Extractor
	logger     *slog.Logger
}

// New creates a pipeline. extractor may be nil, which disables auto-extract.
func New(mailbox Opener, st store.Store, cls Classifier, ext Extractor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		mailbox:    mailbox,
		store:      st,
		classifier: cls,
		extractor:  ext,
		logger:     logger,
	}
}

type pass struct {
	*Pipeline
	settings *types.Settings
	opts     Options
	journal  *errorlog.Manager
	rules    []models.Rule
	result   models.RunResult
	total    int
	done     int
	extract  []*models.Email
}

func (p *pass) report(stage Stage, uid uint32) {
	if p.opts.Progress == nil {
		return
	}
	p.opts.Progress(Progress{Stage: stage, Total: p.total, Processed: p.done, UID: uid})
}

func (p *pass) stopRequested() bool {
	return p.opts.Stop != nil && p.opts.Stop.StopRequested()
}

// Run executes one pass. Failures of single messages are collected in the
// result; only connection, authentication and search failures are
// returned as errors.
func (p *Pipeline) Run(ctx context.Context, settings *types.Settings, opts Options) (models.RunResult, error) {
	start := time.Now()
	defer func() { metrics.RecordPassDuration(time.Since(start)) }()

	ps := &pass{
		Pipeline: p,
		settings: settings,
		opts:     opts,
		result:   models.RunResult{Errors: []string{}},
	}

	journal, err := errorlog.NewManager(settings, p.logger)
	if err != nil {
		p.logger.Warn("error journal unavailable", "error", err)
		journal = errorlog.NewNoopManager(p.logger)
	}
	defer journal.Close()
	ps.journal = journal

	if opts.RuleIndex == nil {
		ps.rules, err = p.store.GetRules(ctx)
		if err != nil {
			return ps.result, fmt.Errorf("failed to load rules: %w", err)
		}
	}

	ps.purgeBlacklisted(ctx)

	ps.report(StageConnecting, 0)
	criteria := email.CriteriaFromSettings(settings, p.logger)

	err = p.mailbox.Open(ctx, settings, func(s email.Session) error {
		ps.report(StageSearchingUnseen, 0)
		uids, err := s.Search(ctx, criteria)
		if err != nil {
			return err
		}
		if len(uids) == 0 {
			p.logger.Info("no unseen messages")
			return nil
		}

		ps.total = len(uids)
		ps.report(StageFetchingMessages, 0)

		return s.FetchFull(ctx, uids, func(m email.Message) error {
			if ps.stopRequested() {
				p.logger.Info("stop requested, ending pass early",
					"processed", ps.done,
					"total", ps.total)
				ps.result.Stopped = true
				return email.ErrStop
			}
			ps.handle(ctx, s, m)
			ps.done++
			return nil
		})
	})
	if err != nil {
		return ps.result, err
	}

	ps.autoExtract(ctx)

	ps.report(StageDone, 0)
	p.logger.Info("pass finished",
		"processed", ps.result.ProcessedCount,
		"skipped", ps.result.SkippedCount,
		"errors", len(ps.result.Errors),
		"stopped", ps.result.Stopped,
		"duration", time.Since(start))
	return ps.result, nil
}

// handle runs one message through parse, route, classify and persist.
// It never fails the pass.
func (p *pass) handle(ctx context.Context, s email.Session, m email.Message) {
	if m.Err != nil {
		p.fail(m.UID, nil, errorlog.StageFetch, m.Err)
		return
	}

	p.report(StageParsing, m.UID)
	e, err := parser.Parse(m.Raw, p.logger)
	if err != nil {
		p.fail(m.UID, nil, errorlog.StageParse, err)
		return
	}
	e.UID = m.UID

	p.report(StageRouting, m.UID)
	route := rules.Route(e.SenderEmail, p.rules, p.opts.RuleIndex)
	if route == rules.RouteSkip {
		p.logger.Debug("skipping blacklisted sender", "uid", m.UID, "sender", e.SenderEmail)
		p.result.SkippedCount++
		metrics.IncrementMessage("skipped")
		p.markSeen(ctx, s, m.UID)
		return
	}

	exists, err := p.store.EmailExists(ctx, e.MessageID)
	if err != nil {
		p.fail(m.UID, e, errorlog.StagePersist, err)
		return
	}
	if exists {
		p.duplicate(ctx, s, e)
		return
	}

	p.report(StageClassifyingContent, m.UID)
	verdict, err := p.classify(ctx, e)
	if err != nil {
		p.fail(m.UID, e, errorlog.StageClassify, err)
		return
	}
	metrics.IncrementClassification(string(verdict.Type))

	e.Parsed = verdict.ParsedInfo()
	e.Status = models.StatusProcessed
	if route == rules.RouteInbox {
		e.Classification = models.ClassInbox
	} else {
		e.Classification = models.ClassUnsorted
	}

	p.report(StagePersisting, m.UID)
	if err := p.store.AddEmail(ctx, e); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			p.duplicate(ctx, s, e)
			return
		}
		p.fail(m.UID, e, errorlog.StagePersist, err)
		return
	}

	p.result.ProcessedCount++
	metrics.IncrementMessage("processed")
	p.markSeen(ctx, s, m.UID)

	if verdict.Type == models.TypeOrder || verdict.Type == models.TypeEstimate {
		p.extract = append(p.extract, e)
	}

	p.logger.Info("processed message",
		"uid", m.UID,
		"email_id", e.ID,
		"sender", e.SenderEmail,
		"route", route,
		"type", verdict.Type,
		"confidence", verdict.Confidence)
}

// duplicate handles a message whose Message-ID is already stored. It is
// counted as skipped and marked seen so it leaves the unseen set.
func (p *pass) duplicate(ctx context.Context, s email.Session, e *models.Email) {
	p.logger.Debug("message already stored",
		"uid", e.UID,
		"message_id", e.MessageID)
	p.result.SkippedCount++
	metrics.IncrementMessage("duplicate")
	p.markSeen(ctx, s, e.UID)
}

// purgeBlacklisted deletes stored emails from senders that are blacklisted
// now, including mail stored before its rule existed
func (p *pass) purgeBlacklisted(ctx context.Context) {
	for _, pattern := range rules.BlacklistPatterns(p.rules, p.opts.RuleIndex) {
		n, err := p.store.DeleteEmailsFromSender(ctx, pattern)
		if err != nil {
			p.logger.Warn("failed to purge blacklisted emails", "pattern", pattern, "error", err)
			continue
		}
		if n > 0 {
			p.logger.Info("purged blacklisted emails", "pattern", pattern, "deleted", n)
		}
	}
}

// classify guards against a classifier that panics despite its contract
func (p *pass) classify(ctx context.Context, e *models.Email) (result classifier.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panicked: %v", r)
		}
	}()
	return p.classifier.Classify(ctx, e, p.settings), nil
}

func (p *pass) markSeen(ctx context.Context, s email.Session, uid uint32) {
	if err := s.MarkSeen(ctx, uid); err != nil {
		p.logger.Warn("failed to mark message as seen", "uid", uid, "error", err)
	}
}

func (p *pass) fail(uid uint32, e *models.Email, stage errorlog.Stage, err error) {
	msg := fmt.Sprintf("message %d: %s: %v", uid, stage, err)
	p.result.Errors = append(p.result.Errors, msg)
	metrics.IncrementMessage("failed")

	p.logger.Error("failed to process message",
		"uid", uid,
		"stage", stage,
		"error", err)

	entry := errorlog.EmailError{
		JobID:    p.opts.JobID,
		UID:      uid,
		Stage:    stage,
		ErrorMsg: err.Error(),
	}
	if e != nil {
		entry.MessageID = e.MessageID
		entry.Sender = e.SenderEmail
		entry.Subject = e.Subject
	}
	p.journal.LogError(entry)
}

// autoExtract runs after the mailbox session is closed so the extractor
// can open its own session for attachment re-fetches.
func (p *pass) autoExtract(ctx context.Context) {
	if p.extractor == nil || !p.settings.AI.Enabled || !p.settings.AI.AutoExtract || len(p.extract) == 0 {
		return
	}

	for i, e := range p.extract {
		if p.stopRequested() {
			p.result.Stopped = true
			return
		}
		p.report(StageExtracting, e.UID)

		res := p.extractor.Extract(ctx, e, p.settings, true)
		if err := p.store.UpdateEmail(ctx, e.ID, models.EmailPatch{Parsed: res.ParsedInfo()}); err != nil {
			p.fail(e.UID, e, errorlog.StageExtract, err)
			continue
		}
		p.logger.Debug("auto-extracted email",
			"email_id", e.ID,
			"n", i+1,
			"of", len(p.extract),
			"confidence", res.Confidence)
	}
}
