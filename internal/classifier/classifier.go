// Package classifier decides whether an email is an order, an estimate or
// something else.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/altafino/order-mail-extractor/internal/ai"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/altafino/order-mail-extractor/internal/utility/u_string"
)

const (
	// BulkTransferMarker identifies senders of file-transfer notifications
	BulkTransferMarker = "wetransfer"

	bulkTransferConfidence = 0.95
	keywordCeiling         = 0.8
	escalationThreshold    = 0.7
	salvageConfidence      = 0.6
	unknownAIConfidence    = 0.3
	promptBodyLimit        = 1000

	failedReasoning = "Classification failed"
)

var callOptions = ai.CallOptions{
	Temperature: 0.1,
	MaxTokens:   256,
	Timeout:     60 * time.Second,
}

// Result is the classifier verdict
type Result struct {
	Type       models.ContentType `json:"type"`
	Confidence float64            `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
}

// ParsedInfo converts the verdict into the form stored on an email
func (r Result) ParsedInfo() *models.ParsedInfo {
	return &models.ParsedInfo{
		Type:       r.Type,
		Confidence: r.Confidence,
		Reasoning:  r.Reasoning,
	}
}

// Classifier runs the bulk-transfer, keyword and AI stages in order
type Classifier struct {
	completer ai.Completer
	logger    *slog.Logger
}

// New creates a classifier. completer may be nil, which disables the AI stage.
func New(completer ai.Completer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		completer: completer,
		logger:    logger,
	}
}

// IsBulkTransfer reports whether the sender is a bulk file-transfer service
func IsBulkTransfer(senderEmail string) bool {
	s := strings.ToLower(senderEmail)
	if at := strings.LastIndex(s, "@"); at >= 0 {
		s = s[at+1:]
	}
	return strings.Contains(s, BulkTransferMarker)
}

// Classify never fails. Any error or panic inside a stage yields an "other"
// result with zero confidence.
func (c *Classifier) Classify(ctx context.Context, email *models.Email, settings *types.Settings) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("classification panicked",
				"uid", email.UID,
				"subject", email.Subject,
				"panic", r,
			)
			result = failed()
		}
	}()

	if IsBulkTransfer(email.SenderEmail) {
		return Result{
			Type:       models.TypeOrder,
			Confidence: bulkTransferConfidence,
			Reasoning:  "Sender is a bulk file-transfer service",
		}
	}

	text := email.Subject + "\n" + u_string.PlainText(email.Body)
	kw := scoreKeywords(text, settings.Classification.OrderKeywords, settings.Classification.EstimateKeywords)
	if kw.Confidence > escalationThreshold || !settings.AI.Enabled || c.completer == nil {
		return kw
	}

	aiResult, err := c.classifyWithAI(ctx, email, settings)
	if err != nil {
		c.logger.Warn("AI classification failed",
			"uid", email.UID,
			"error", err,
		)
		return failed()
	}

	if aiResult.Confidence > kw.Confidence {
		return aiResult
	}
	return kw
}

func failed() Result {
	return Result{
		Type:       models.TypeOther,
		Confidence: 0,
		Reasoning:  failedReasoning,
	}
}

// scoreKeywords counts how many keywords of each list occur in text
func scoreKeywords(text, orderKeywords, estimateKeywords string) Result {
	lower := strings.ToLower(text)
	orderHits := countHits(lower, orderKeywords)
	estimateHits := countHits(lower, estimateKeywords)

	switch {
	case orderHits > estimateHits:
		return Result{
			Type:       models.TypeOrder,
			Confidence: keywordConfidence(orderHits),
			Reasoning:  fmt.Sprintf("Matched %d order keyword(s)", orderHits),
		}
	case estimateHits > orderHits:
		return Result{
			Type:       models.TypeEstimate,
			Confidence: keywordConfidence(estimateHits),
			Reasoning:  fmt.Sprintf("Matched %d estimate keyword(s)", estimateHits),
		}
	default:
		return Result{
			Type:       models.TypeOther,
			Confidence: 0.5,
			Reasoning:  "No decisive keyword matches",
		}
	}
}

func keywordConfidence(hits int) float64 {
	conf := 0.3 + 0.1*float64(hits)
	if conf > keywordCeiling {
		return keywordCeiling
	}
	return conf
}

// SplitKeywords parses a comma-separated keyword list, dropping blanks
func SplitKeywords(list string) []string {
	var out []string
	for _, k := range strings.Split(list, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func countHits(lowerText, list string) int {
	hits := 0
	for _, k := range SplitKeywords(list) {
		if strings.Contains(lowerText, k) {
			hits++
		}
	}
	return hits
}

type aiVerdict struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (c *Classifier) classifyWithAI(ctx context.Context, email *models.Email, settings *types.Settings) (Result, error) {
	provider, err := ai.ProviderFromSettings(settings.AI)
	if err != nil {
		return Result{}, err
	}

	reply, err := c.completer.Complete(ctx, buildPrompt(email, settings), provider, callOptions)
	if err != nil {
		return Result{}, err
	}

	return parseVerdict(reply), nil
}

func buildPrompt(email *models.Email, settings *types.Settings) string {
	var b strings.Builder

	b.WriteString("Classify the following email as \"order\", \"estimate\" or \"other\".\n")
	b.WriteString("Order keywords: " + settings.Classification.OrderKeywords + "\n")
	b.WriteString("Estimate keywords: " + settings.Classification.EstimateKeywords + "\n")
	if instr := strings.TrimSpace(settings.Classification.Instructions); instr != "" {
		b.WriteString("Additional instructions: " + instr + "\n")
	}
	b.WriteString("Reply with JSON only: {\"type\": \"order|estimate|other\", \"confidence\": 0.0-1.0, \"reasoning\": \"...\"}\n\n")
	b.WriteString("Subject: " + email.Subject + "\n")
	b.WriteString("Body:\n" + u_string.Truncate(u_string.PlainText(email.Body), promptBodyLimit))

	return b.String()
}

// parseVerdict reads the JSON verdict, salvaging a guess from the raw text
// when the reply is not valid JSON.
func parseVerdict(reply string) Result {
	var v aiVerdict
	if raw := u_string.FirstJSONObject(reply); raw != "" && json.Unmarshal([]byte(raw), &v) == nil {
		t := models.ContentType(strings.ToLower(strings.TrimSpace(v.Type)))
		switch t {
		case models.TypeOrder, models.TypeEstimate, models.TypeOther:
		default:
			t = models.TypeOther
		}
		return Result{
			Type:       t,
			Confidence: clamp(v.Confidence, 0, 1),
			Reasoning:  v.Reasoning,
		}
	}

	lower := strings.ToLower(reply)
	switch {
	case strings.Contains(lower, "order"):
		return Result{Type: models.TypeOrder, Confidence: salvageConfidence, Reasoning: "Inferred from unstructured AI reply"}
	case strings.Contains(lower, "estimate"), strings.Contains(lower, "quote"):
		return Result{Type: models.TypeEstimate, Confidence: salvageConfidence, Reasoning: "Inferred from unstructured AI reply"}
	default:
		return Result{Type: models.TypeOther, Confidence: unknownAIConfidence, Reasoning: "Unrecognized AI reply"}
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
