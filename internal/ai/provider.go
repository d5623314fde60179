package ai

import (
	"fmt"
	"strings"

	"github.com/altafino/order-mail-extractor/internal/types"
)

// Provider is a configured AI backend. The set of implementations is closed:
// only Cloud and Local satisfy it.
type Provider interface {
	provider()
	// Name identifies the backend in logs and metrics
	Name() string
}

// Cloud is a hosted generateContent-style API authenticated by key
type Cloud struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Local is a self-hosted generate endpoint
type Local struct {
	Endpoint string
	Model    string
}

func (Cloud) provider() {}
func (Local) provider() {}

func (Cloud) Name() string { return "cloud" }
func (Local) Name() string { return "local" }

// NewCloud builds a cloud provider. A missing key is rejected here so that a
// half-configured provider can never reach the network.
func NewCloud(apiKey, baseURL, model string) (Cloud, error) {
	if strings.TrimSpace(apiKey) == "" {
		return Cloud{}, fmt.Errorf("%w: cloud provider requires an api key", ErrProvider)
	}
	if baseURL == "" {
		return Cloud{}, fmt.Errorf("%w: cloud provider requires a base url", ErrProvider)
	}
	if model == "" {
		return Cloud{}, fmt.Errorf("%w: cloud provider requires a model", ErrProvider)
	}
	return Cloud{
		APIKey:  apiKey,
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Model:   model,
	}, nil
}

// NewLocal builds a local provider
func NewLocal(endpoint, model string) (Local, error) {
	if endpoint == "" {
		return Local{}, fmt.Errorf("%w: local provider requires an endpoint", ErrProvider)
	}
	if model == "" {
		return Local{}, fmt.Errorf("%w: local provider requires a model", ErrProvider)
	}
	return Local{
		Endpoint: strings.TrimSuffix(endpoint, "/"),
		Model:    model,
	}, nil
}

// ProviderFromSettings turns the raw AI settings into a typed provider
func ProviderFromSettings(cfg types.AIConfig) (Provider, error) {
	switch cfg.Provider {
	case "cloud":
		return NewCloud(cfg.Cloud.APIKey, cfg.Cloud.BaseURL, cfg.Cloud.Model)
	case "local":
		return NewLocal(cfg.Local.Endpoint, cfg.Local.Model)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProvider, cfg.Provider)
	}
}
