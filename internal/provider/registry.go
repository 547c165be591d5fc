package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/prismrun/prism/internal/logging"
	"github.com/prismrun/prism/pkg/types"
)

// Registry manages all available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

// NewRegistry creates a new provider registry.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all available providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, m := range provider.Models() {
		if m.ID == modelID {
			return &m, nil
		}
	}

	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns all models from all providers, highest-priority first.
func (r *Registry) AllModels() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []types.Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}

	sort.Slice(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})

	return models
}

// DefaultModel resolves config.Model ("provider/model"), falling back to
// Claude Sonnet, then the first available model.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.config != nil && r.config.Model != "" {
		providerID, modelID := ParseModelString(r.config.Model)
		return r.GetModel(providerID, modelID)
	}

	if m, err := r.GetModel("anthropic", "claude-sonnet-4-20250514"); err == nil {
		return m, nil
	}

	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString parses the "provider/model" config string.
func ParseModelString(s string) (providerID, modelID string) {
	providerID, modelID, found := strings.Cut(s, "/")
	if !found {
		return "", s
	}
	return providerID, modelID
}

// modelPriority orders AllModels by rough capability tier.
func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gpt-5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"):
		return 75
	case strings.Contains(modelID, "gemini-2"):
		return 70
	default:
		return 50
	}
}

// InitializeProviders creates and registers a Provider for every entry in
// config.Provider, then auto-registers anthropic/openai from bare
// environment variables if config left them unconfigured. A backend that
// fails to construct (bad key, unreachable endpoint) is logged and
// skipped rather than failing the whole registry — other providers may
// still be usable.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)
	configured := make(map[string]bool, len(config.Provider))

	for name, cfg := range config.Provider {
		if cfg.Disabled {
			continue
		}
		configured[name] = true

		p, err := newProviderFor(ctx, name, cfg)
		if err != nil {
			logging.Warn().Err(err).Str("provider", name).Msg("skipping provider")
			continue
		}
		if p != nil {
			registry.Register(p)
		}
	}

	if !configured["anthropic"] {
		if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
			p, err := NewAnthropicProvider(ctx, &AnthropicConfig{ID: "anthropic", APIKey: apiKey, MaxTokens: 8192})
			if err != nil {
				logging.Warn().Err(err).Msg("failed to auto-register anthropic provider")
			} else {
				registry.Register(p)
			}
		}
	}

	if !configured["openai"] {
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			p, err := NewOpenAIProvider(ctx, &OpenAIConfig{ID: "openai", APIKey: apiKey, MaxTokens: 4096})
			if err == nil {
				registry.Register(p)
			}
		}
	}

	return registry, nil
}

func newProviderFor(ctx context.Context, name string, cfg types.ProviderConfig) (Provider, error) {
	switch name {
	case "anthropic", "claude":
		return NewAnthropicProvider(ctx, &AnthropicConfig{
			ID:         name,
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxTokens:  8192,
			UseBedrock: cfg.UseBedrock,
			Region:     cfg.Region,
		})
	case "ark":
		return NewArkProvider(ctx, &ArkConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: 4096,
		})
	default:
		// Anything else is treated as an OpenAI-compatible endpoint
		// (local servers, proxies) keyed by its config name. Azure mode
		// is never enabled from config.
		return NewOpenAIProvider(ctx, &OpenAIConfig{
			ID:        name,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: 4096,
		})
	}
}
