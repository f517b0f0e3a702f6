// Package openrouter implements llmprovider.Provider for OpenRouter's unified API.
//
// OpenRouter proxies requests to multiple LLM providers (Anthropic, OpenAI,
// Google, etc.) using an OpenAI-compatible format, so model identifiers are in
// "vendor/model" form (e.g. "anthropic/claude-sonnet-4.5").
//
// Common Issues:
// - 404 errors: Verify model name at https://openrouter.ai/models
// - Tool calling: Not all models support function calling - check OpenRouter docs
package openrouter

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	llmprovider "github.com/haowjy/meridian-relay"
	"github.com/haowjy/meridian-relay/credentials"
	"github.com/haowjy/meridian-relay/internal/httpx"
)

// DefaultBaseURL is the public OpenRouter endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Provider implements the llmprovider.Provider interface for OpenRouter.
type Provider struct {
	credentials credentials.Source
	baseURL     string
	httpClient  *http.Client
	retry       llmprovider.RetryPolicy
	tiers       *llmprovider.TierRegistry
	models      map[llmprovider.Tier]string
	logger      *zap.Logger

	// Attribution headers OpenRouter shows on its leaderboards
	referer string
	title   string
}

// Option configures a Provider.
type Option func(*Provider)

// WithCredentials sets where the API key is resolved from.
func WithCredentials(src credentials.Source) Option {
	return func(p *Provider) {
		p.credentials = src
	}
}

// WithAPIKey uses a fixed API key.
func WithAPIKey(apiKey string) Option {
	return WithCredentials(credentials.Static(credentials.OpenRouterAPIKey, apiKey))
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(policy llmprovider.RetryPolicy) Option {
	return func(p *Provider) {
		p.retry = policy
	}
}

// WithTierRegistry sets the registry tiers are resolved against.
func WithTierRegistry(registry *llmprovider.TierRegistry) Option {
	return func(p *Provider) {
		p.tiers = registry
	}
}

// WithModels overrides individual tier mappings.
func WithModels(models map[llmprovider.Tier]string) Option {
	return func(p *Provider) {
		p.models = maps.Clone(models)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithAttribution sets the HTTP-Referer and X-Title headers.
func WithAttribution(referer, title string) Option {
	return func(p *Provider) {
		p.referer = referer
		p.title = title
	}
}

// NewProvider creates a new OpenRouter provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		credentials: credentials.EnvSource{},
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		retry:       llmprovider.DefaultRetryPolicy(),
		tiers:       llmprovider.GetTierRegistry(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = llmprovider.OrNop(p.logger).With(zap.String("provider", llmprovider.ProviderOpenRouter.String()))
	return p
}

// ID returns the provider identifier.
func (p *Provider) ID() llmprovider.ProviderID {
	return llmprovider.ProviderOpenRouter
}

// IsAvailable reports whether an API key can be resolved.
func (p *Provider) IsAvailable() bool {
	_, ok := p.credentials.Get(credentials.OpenRouterAPIKey)
	return ok
}

// GetModels returns the tier table in effect.
func (p *Provider) GetModels() map[llmprovider.Tier]string {
	models := p.tiers.Models(llmprovider.ProviderOpenRouter)
	maps.Copy(models, p.models)
	return models
}

// Think is a single-turn wrapper over Chat.
func (p *Provider) Think(ctx context.Context, req llmprovider.ThinkRequest) (string, error) {
	return llmprovider.Think(ctx, p, req)
}

// Chat generates a non-streaming response from OpenRouter.
func (p *Provider) Chat(ctx context.Context, opts *llmprovider.ChatOptions) (*llmprovider.ChatResult, error) {
	apiKey, err := p.apiKey()
	if err != nil {
		return nil, err
	}

	req, err := p.buildRequest(opts, false)
	if err != nil {
		return nil, err
	}

	var chatResp ChatCompletionResponse
	err = llmprovider.Retry(ctx, p.retry, p.logger, p.ID(), func(int) error {
		resp, err := httpx.PostJSON(ctx, p.httpClient, p.ID(), p.baseURL+"/chat/completions", req.body, p.header(apiKey, false))
		if err != nil {
			return err
		}
		body, err := httpx.ReadBody(p.ID(), resp)
		if err != nil {
			return err
		}
		chatResp = ChatCompletionResponse{}
		if err := sonic.Unmarshal(body, &chatResp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p.convertResponse(&chatResp, req.model)
}

// ChatStream opens a streaming response. It returns once the first chunk has
// arrived; failures before that are retried like Chat.
func (p *Provider) ChatStream(ctx context.Context, opts *llmprovider.ChatOptions) (*llmprovider.ChatStream, error) {
	apiKey, err := p.apiKey()
	if err != nil {
		return nil, err
	}

	req, err := p.buildRequest(opts, true)
	if err != nil {
		return nil, err
	}

	var stream *llmprovider.ChatStream
	err = llmprovider.Retry(ctx, p.retry, p.logger, p.ID(), func(int) error {
		s, err := llmprovider.OpenStream(ctx, p.ID(), req.model, p.produce(apiKey, req))
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (p *Provider) apiKey() (string, error) {
	apiKey, ok := p.credentials.Get(credentials.OpenRouterAPIKey)
	if !ok {
		return "", llmprovider.MissingCredentialError(p.ID(), credentials.OpenRouterAPIKey)
	}
	return apiKey, nil
}

func (p *Provider) header(apiKey string, stream bool) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	if stream {
		header.Set("Accept", "text/event-stream")
	}
	if p.referer != "" {
		header.Set("HTTP-Referer", p.referer)
	}
	if p.title != "" {
		header.Set("X-Title", p.title)
	}
	return header
}

func (p *Provider) resolveModel(tier llmprovider.Tier) (string, error) {
	if tier == "" {
		tier = p.tiers.DefaultTier()
	}
	if model, ok := p.models[tier]; ok && model != "" {
		return model, nil
	}
	return p.tiers.Resolve(llmprovider.ProviderOpenRouter, tier)
}
