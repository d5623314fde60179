package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrProvider indicates a missing or invalid provider configuration
	ErrProvider = errors.New("invalid AI provider")
	// ErrTimeout indicates the call exceeded its deadline
	ErrTimeout = errors.New("AI call timed out")
	// ErrInvalidResponse indicates a reply that does not carry any text
	ErrInvalidResponse = errors.New("invalid AI response")
)

// UpstreamError is a non-2xx reply from the provider
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s provider returned status %d: %s", e.Provider, e.StatusCode, body)
}
