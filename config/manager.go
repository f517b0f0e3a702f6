package config

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	llmprovider "github.com/haowjy/meridian-relay"
	"github.com/haowjy/meridian-relay/credentials"
	"github.com/haowjy/meridian-relay/providers/anthropic"
	"github.com/haowjy/meridian-relay/providers/gemini"
	"github.com/haowjy/meridian-relay/providers/lorem"
	"github.com/haowjy/meridian-relay/providers/openrouter"
)

// NewResolver builds the credential resolver: cache, then the configured
// store file (if any), then the environment. The cache is dropped whenever
// the store file changes.
func NewResolver(cfg *Config, logger *zap.Logger) (*credentials.Resolver, error) {
	opts := []credentials.Option{
		credentials.WithTTL(cfg.Credentials.CacheTTL),
		credentials.WithLogger(logger),
	}

	var resolver *credentials.Resolver
	if cfg.Credentials.File != "" {
		store, err := credentials.OpenFileStore(cfg.Credentials.File,
			credentials.WithStoreLogger(logger),
			credentials.OnChange(func() { resolver.Invalidate() }),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, credentials.WithStore(store))
	}

	resolver = credentials.NewResolver(opts...)
	return resolver, nil
}

// NewManager builds every enabled provider and registers it with a Manager
// in the configured fallback order.
func NewManager(cfg *Config, logger *zap.Logger) (*llmprovider.Manager, error) {
	logger = llmprovider.OrNop(logger)

	tiers := llmprovider.GetTierRegistry()
	if cfg.ModelsFile != "" {
		if err := tiers.LoadTiersFromFile(cfg.ModelsFile); err != nil {
			return nil, err
		}
	}

	resolver, err := NewResolver(cfg, logger)
	if err != nil {
		return nil, err
	}

	var entries []llmprovider.Entry
	for _, id := range []llmprovider.ProviderID{
		llmprovider.ProviderAnthropic,
		llmprovider.ProviderGemini,
		llmprovider.ProviderOpenRouter,
		llmprovider.ProviderLorem,
	} {
		pc := cfg.Provider(id)
		if !pc.Enabled {
			continue
		}
		for tier, model := range pc.Tiers {
			tiers.OverrideTier(id, llmprovider.Tier(tier), model)
		}

		provider := buildProvider(id, pc, cfg.RetryPolicy(), resolver, tiers, logger)
		caps, _ := tiers.Capabilities(id)
		entries = append(entries, llmprovider.Entry{
			Registration: llmprovider.Registration{ID: id, Capabilities: caps, Priority: pc.Priority},
			Provider:     provider,
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}

	manager, err := llmprovider.NewManager(logger, entries...)
	if err != nil {
		return nil, err
	}
	manager.SetValidationEngine(llmprovider.NewValidationEngine(tiers))
	if order := cfg.Order(); len(order) > 0 {
		manager.SetFallbackOrder(order)
	}
	return manager, nil
}

func buildProvider(id llmprovider.ProviderID, pc ProviderConfig, retry llmprovider.RetryPolicy, creds credentials.Source, tiers *llmprovider.TierRegistry, logger *zap.Logger) llmprovider.Provider {
	var client *http.Client
	if pc.Timeout > 0 {
		client = &http.Client{Timeout: pc.Timeout}
	}

	switch id {
	case llmprovider.ProviderAnthropic:
		opts := []anthropic.Option{
			anthropic.WithCredentials(creds),
			anthropic.WithRetryPolicy(retry),
			anthropic.WithTierRegistry(tiers),
			anthropic.WithLogger(logger),
		}
		if pc.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(pc.BaseURL))
		}
		if client != nil {
			opts = append(opts, anthropic.WithHTTPClient(client))
		}
		return anthropic.NewProvider(opts...)

	case llmprovider.ProviderGemini:
		opts := []gemini.Option{
			gemini.WithCredentials(creds),
			gemini.WithRetryPolicy(retry),
			gemini.WithTierRegistry(tiers),
			gemini.WithLogger(logger),
		}
		if pc.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(pc.BaseURL))
		}
		if client != nil {
			opts = append(opts, gemini.WithHTTPClient(client))
		}
		return gemini.NewProvider(opts...)

	case llmprovider.ProviderOpenRouter:
		opts := []openrouter.Option{
			openrouter.WithCredentials(creds),
			openrouter.WithRetryPolicy(retry),
			openrouter.WithTierRegistry(tiers),
			openrouter.WithLogger(logger),
			openrouter.WithAttribution("https://github.com/haowjy/meridian-relay", "meridian"),
		}
		if pc.BaseURL != "" {
			opts = append(opts, openrouter.WithBaseURL(pc.BaseURL))
		}
		if client != nil {
			opts = append(opts, openrouter.WithHTTPClient(client))
		}
		return openrouter.NewProvider(opts...)

	default:
		return lorem.NewProvider(
			lorem.WithTierRegistry(tiers),
			lorem.WithLogger(logger),
		)
	}
}
