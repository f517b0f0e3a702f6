// Package gemini implements llmprovider.Provider for Google's Gemini API.
//
// Gemini is a tolerant provider: it accepts repeated same-role turns, names the
// assistant role "model", and receives the system prompt both out of band and
// inlined at the start of the first user turn.
package gemini

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	llmprovider "github.com/haowjy/meridian-relay"
	"github.com/haowjy/meridian-relay/credentials"
	"github.com/haowjy/meridian-relay/internal/httpx"
)

// DefaultBaseURL is the public Gemini REST endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Provider implements the llmprovider.Provider interface for Gemini models.
type Provider struct {
	credentials credentials.Source
	baseURL     string
	httpClient  *http.Client
	retry       llmprovider.RetryPolicy
	tiers       *llmprovider.TierRegistry
	models      map[llmprovider.Tier]string
	logger      *zap.Logger
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
	return WithCredentials(credentials.Static(credentials.GeminiAPIKey, apiKey))
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

// NewProvider creates a new Gemini provider.
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
	p.logger = llmprovider.OrNop(p.logger).With(zap.String("provider", llmprovider.ProviderGemini.String()))
	return p
}

// ID returns the provider identifier.
func (p *Provider) ID() llmprovider.ProviderID {
	return llmprovider.ProviderGemini
}

// IsAvailable reports whether an API key can be resolved.
func (p *Provider) IsAvailable() bool {
	_, ok := p.credentials.Get(credentials.GeminiAPIKey)
	return ok
}

// GetModels returns the tier table in effect.
func (p *Provider) GetModels() map[llmprovider.Tier]string {
	models := p.tiers.Models(llmprovider.ProviderGemini)
	maps.Copy(models, p.models)
	return models
}

// Think is a single-turn wrapper over Chat.
func (p *Provider) Think(ctx context.Context, req llmprovider.ThinkRequest) (string, error) {
	return llmprovider.Think(ctx, p, req)
}

// Chat generates a complete response.
func (p *Provider) Chat(ctx context.Context, opts *llmprovider.ChatOptions) (*llmprovider.ChatResult, error) {
	apiKey, err := p.apiKey()
	if err != nil {
		return nil, err
	}

	req, err := p.buildRequest(opts)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, req.model)

	var response generateContentResponse
	err = llmprovider.Retry(ctx, p.retry, p.logger, p.ID(), func(int) error {
		resp, err := httpx.PostJSON(ctx, p.httpClient, p.ID(), url, req.body, authHeader(apiKey, false))
		if err != nil {
			return err
		}
		body, err := httpx.ReadBody(p.ID(), resp)
		if err != nil {
			return err
		}
		response = generateContentResponse{}
		if err := unmarshal(body, &response); err != nil {
			return fmt.Errorf("failed to parse Gemini response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p.convertResponse(&response, req.model)
}

// ChatStream opens a streaming response. It returns once the first chunk has
// arrived; failures before that are retried like Chat.
func (p *Provider) ChatStream(ctx context.Context, opts *llmprovider.ChatOptions) (*llmprovider.ChatStream, error) {
	apiKey, err := p.apiKey()
	if err != nil {
		return nil, err
	}

	req, err := p.buildRequest(opts)
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
	apiKey, ok := p.credentials.Get(credentials.GeminiAPIKey)
	if !ok {
		return "", llmprovider.MissingCredentialError(p.ID(), credentials.GeminiAPIKey)
	}
	return apiKey, nil
}

func authHeader(apiKey string, stream bool) http.Header {
	header := http.Header{}
	header.Set("x-goog-api-key", apiKey)
	if stream {
		header.Set("Accept", "text/event-stream")
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
	return p.tiers.Resolve(llmprovider.ProviderGemini, tier)
}
