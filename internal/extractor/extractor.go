// Package extractor turns order and estimate emails into structured
// records with the help of an AI provider.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/altafino/order-mail-extractor/internal/ai"
	"github.com/altafino/order-mail-extractor/internal/archive"
	"github.com/altafino/order-mail-extractor/internal/classifier"
	"github.com/altafino/order-mail-extractor/internal/metrics"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/altafino/order-mail-extractor/internal/utility/u_string"
)

// ErrParse is returned when the AI reply holds no usable record
var ErrParse = errors.New("failed to parse extraction reply")

// ErrBlacklisted is the fallback cause for mail from a blacklisted sender
var ErrBlacklisted = errors.New("sender is blacklisted")

const (
	minConfidence      = 0.1
	maxConfidence      = 0.95
	fallbackConfidence = 0.1
	notesLimit         = 500
	promptBodyLimit    = 4000

	placeholderDescription = "Unspecified items"
)

var callOptions = ai.CallOptions{
	Temperature: 0.1,
	MaxTokens:   4096,
	Timeout:     ai.DefaultTimeout,
}

// Refetcher loads attachment bytes that were not fetched with the message
type Refetcher interface {
	EnsureFullBody(ctx context.Context, settings *types.Settings, e *models.Email) error
}

// Archiver persists an email and its parsed record
type Archiver interface {
	Archive(ctx context.Context, email *models.Email, settings *types.Settings, orderNumber string) (archive.Info, error)
	WriteParsed(ctx context.Context, info archive.Info, settings *types.Settings, t models.ContentType, data *models.ParsedData) (string, error)
}

// Result is the outcome of one extraction. It is always well formed.
type Result struct {
	Type             models.ContentType `json:"type"`
	Data             *models.ParsedData `json:"data"`
	Confidence       float64            `json:"confidence"`
	Reasoning        string             `json:"reasoning"`
	AttachmentsSaved []string           `json:"attachmentsSaved"`
	ArchiveInfo      *archive.Info      `json:"archiveInfo,omitempty"`
}

// ParsedInfo converts the result into the form stored on an email
func (r Result) ParsedInfo() *models.ParsedInfo {
	return &models.ParsedInfo{
		Type:       r.Type,
		Data:       r.Data,
		Confidence: r.Confidence,
		Reasoning:  r.Reasoning,
	}
}

// Extractor runs the AI extraction. refetcher and archiver may be nil.
type Extractor struct {
	completer ai.Completer
	refetcher Refetcher
	archiver  Archiver
	logger    *slog.Logger
}

// New creates an extractor
func New(completer ai.Completer, refetcher Refetcher, archiver Archiver, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		completer: completer,
		refetcher: refetcher,
		archiver:  archiver,
		logger:    logger,
	}
}

// ResolveType picks the record type to extract. Bulk-transfer mail is always
// an order; otherwise the classifier's order/estimate verdict is trusted and
// anything else is treated as an estimate.
func ResolveType(email *models.Email) models.ContentType {
	if classifier.IsBulkTransfer(email.SenderEmail) {
		return models.TypeOrder
	}
	if email.Parsed != nil {
		switch email.Parsed.Type {
		case models.TypeOrder, models.TypeEstimate:
			return email.Parsed.Type
		}
	}
	return models.TypeEstimate
}

// Extract never fails. Any error along the way, panics included, yields
// the deterministic fallback record. Blacklisted mail gets the fallback
// without an AI call and nothing is archived.
func (x *Extractor) Extract(ctx context.Context, email *models.Email, settings *types.Settings, saveFiles bool) (result Result) {
	t := ResolveType(email)

	if email.Classification == models.ClassBlacklist {
		x.logger.Warn("refusing to extract blacklisted email", "email_id", email.ID, "sender", email.SenderEmail)
		metrics.IncrementExtraction(string(t), "fallback")
		return Fallback(email, t, ErrBlacklisted)
	}

	defer func() {
		if r := recover(); r != nil {
			x.logger.Error("extraction panicked", "email_id", email.ID, "panic", r)
			result = Fallback(email, t, fmt.Errorf("panic: %v", r))
			metrics.IncrementExtraction(string(t), "fallback")
		}
	}()

	if saveFiles && x.refetcher != nil && email.MissingAttachmentContent() {
		if err := x.refetcher.EnsureFullBody(ctx, settings, email); err != nil {
			x.logger.Warn("continuing without attachment content",
				"email_id", email.ID,
				"error", err)
		}
	}

	res, err := x.extract(ctx, email, settings, t, saveFiles)
	if err != nil {
		x.logger.Warn("extraction failed, using fallback record",
			"email_id", email.ID,
			"type", t,
			"error", err)
		metrics.IncrementExtraction(string(t), "fallback")
		return Fallback(email, t, err)
	}

	metrics.IncrementExtraction(string(t), "extracted")
	x.logger.Info("extracted email",
		"email_id", email.ID,
		"type", res.Type,
		"confidence", res.Confidence,
		"items", len(res.Data.Items),
		"attachments_saved", len(res.AttachmentsSaved))
	return res
}

func (x *Extractor) extract(ctx context.Context, email *models.Email, settings *types.Settings, t models.ContentType, saveFiles bool) (Result, error) {
	if !settings.AI.Enabled {
		return Result{}, fmt.Errorf("%w: AI is disabled", ai.ErrProvider)
	}
	if x.completer == nil {
		return Result{}, fmt.Errorf("%w: no AI client", ai.ErrProvider)
	}
	provider, err := ai.ProviderFromSettings(settings.AI)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	reply, err := x.completer.Complete(ctx, BuildPrompt(email, t), provider, callOptions)
	if err != nil {
		return Result{}, err
	}
	x.logger.Debug("extraction reply received",
		"email_id", email.ID,
		"provider", provider.Name(),
		"duration", time.Since(start))

	data, err := ParseReply(reply)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Type:             t,
		Data:             data,
		Confidence:       Confidence(t, data),
		Reasoning:        fmt.Sprintf("Extracted %s data with %s provider", t, provider.Name()),
		AttachmentsSaved: []string{},
	}

	if saveFiles && x.archiver != nil {
		info, err := x.archiver.Archive(ctx, email, settings, data.ReferenceNumber())
		if err != nil {
			return Result{}, err
		}
		if _, err := x.archiver.WriteParsed(ctx, info, settings, t, data); err != nil {
			x.logger.Warn("failed to write parsed data file",
				"email_id", email.ID,
				"folder", info.Folder,
				"error", err)
		}
		res.AttachmentsSaved = append(res.AttachmentsSaved, info.AttachmentFiles...)
		res.ArchiveInfo = &info
	}

	return res, nil
}

// ParseReply reads the first balanced JSON object of reply. The object
// must carry an items array.
func ParseReply(reply string) (*models.ParsedData, error) {
	raw := u_string.FirstJSONObject(reply)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrParse)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	items, ok := probe["items"]
	if !ok || len(items) == 0 || items[0] != '[' {
		return nil, fmt.Errorf("%w: reply has no items array", ErrParse)
	}

	var data models.ParsedData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &data, nil
}

// Confidence scores a record by how many of the required fields of its
// type are present, plus a bonus when the first item is described.
func Confidence(t models.ContentType, data *models.ParsedData) float64 {
	if data == nil {
		return minConfidence
	}

	required := []bool{
		strings.TrimSpace(data.CustomerName) != "",
		len(data.Items) > 0,
	}
	if t == models.TypeEstimate {
		required = append(required, strings.TrimSpace(data.ProjectDescription) != "")
	}

	present := 0
	for _, ok := range required {
		if ok {
			present++
		}
	}

	score := 0.3 + 0.6*float64(present)/float64(len(required))
	if len(data.Items) > 0 && strings.TrimSpace(data.Items[0].Description) != "" {
		score += 0.1
	}
	return clamp(score, minConfidence, maxConfidence)
}

// Fallback builds the placeholder record used whenever extraction fails.
// It only depends on the email metadata so repeated failures agree.
func Fallback(email *models.Email, t models.ContentType, cause error) Result {
	description := strings.TrimSpace(email.Subject)
	if description == "" {
		description = placeholderDescription
	}

	data := &models.ParsedData{
		CustomerName:  archive.CustomerName(email.From),
		CustomerEmail: email.SenderEmail,
		Items:         []models.LineItem{{Description: description, Quantity: 1}},
		RushOrder:     strings.Contains(strings.ToLower(email.Subject), "rush"),
		Notes:         u_string.Truncate(u_string.PlainText(email.Body), notesLimit),
	}

	reason := "Extraction failed"
	if cause != nil {
		reason += ": " + cause.Error()
	}

	return Result{
		Type:             t,
		Data:             data,
		Confidence:       fallbackConfidence,
		Reasoning:        reason,
		AttachmentsSaved: []string{},
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
