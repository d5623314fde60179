// Package ai sends a single prompt to a configured provider and returns
// the reply text.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/altafino/order-mail-extractor/internal/metrics"
)

// DefaultTimeout bounds calls that do not set their own
const DefaultTimeout = 120 * time.Second

// CallOptions are chosen by the caller for each request
type CallOptions struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Completer is the capability the classifier and extractor depend on
type Completer interface {
	Complete(ctx context.Context, prompt string, provider Provider, opts CallOptions) (string, error)
}

// Client handles provider communication. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new AI client. The per-call deadline comes from
// CallOptions, so the http client itself carries no timeout.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Complete sends prompt to provider and returns the reply text
func (c *Client) Complete(ctx context.Context, prompt string, provider Provider, opts CallOptions) (string, error) {
	if provider == nil {
		return "", fmt.Errorf("%w: no provider configured", ErrProvider)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var (
		text string
		err  error
	)

	switch p := provider.(type) {
	case Cloud:
		text, err = c.completeCloud(ctx, prompt, p, opts)
	case Local:
		text, err = c.completeLocal(ctx, prompt, p, opts)
	default:
		return "", fmt.Errorf("%w: unsupported provider %T", ErrProvider, provider)
	}

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordAICall(provider.Name(), status, time.Since(start))

	c.logger.Debug("AI call finished",
		"provider", provider.Name(),
		"duration", time.Since(start),
		"prompt_chars", len(prompt),
		"reply_chars", len(text),
		"error", err,
	)

	return text, err
}

type cloudRequest struct {
	Contents []cloudContent `json:"contents"`
	Config   struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type cloudContent struct {
	Parts []cloudPart `json:"parts"`
}

type cloudPart struct {
	Text string `json:"text"`
}

type cloudResponse struct {
	Candidates []struct {
		Content cloudContent `json:"content"`
	} `json:"candidates"`
}

func (c *Client) completeCloud(ctx context.Context, prompt string, p Cloud, opts CallOptions) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("%w: cloud provider requires an api key", ErrProvider)
	}

	body := cloudRequest{
		Contents: []cloudContent{{Parts: []cloudPart{{Text: prompt}}}},
	}
	body.Config.Temperature = opts.Temperature
	body.Config.MaxOutputTokens = opts.MaxTokens

	url := fmt.Sprintf("%s/models/%s:generateContent", p.BaseURL, p.Model)
	headers := map[string]string{"x-goog-api-key": p.APIKey}

	var reply cloudResponse
	if err := c.postJSON(ctx, p.Name(), url, headers, body, &reply); err != nil {
		return "", err
	}

	if len(reply.Candidates) == 0 || len(reply.Candidates[0].Content.Parts) == 0 {
		return "", ErrInvalidResponse
	}

	return reply.Candidates[0].Content.Parts[0].Text, nil
}

type localRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type localResponse struct {
	Response string `json:"response"`
}

func (c *Client) completeLocal(ctx context.Context, prompt string, p Local, opts CallOptions) (string, error) {
	body := localRequest{
		Model:  p.Model,
		Prompt: prompt,
	}
	body.Options.Temperature = opts.Temperature
	body.Options.NumPredict = opts.MaxTokens

	var reply localResponse
	if err := c.postJSON(ctx, p.Name(), p.Endpoint+"/api/generate", nil, body, &reply); err != nil {
		return "", err
	}

	return reply.Response, nil
}

func (c *Client) postJSON(ctx context.Context, name, url string, headers map[string]string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s provider request failed: %w", name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s provider response: %w", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{
			Provider:   name,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return nil
}
