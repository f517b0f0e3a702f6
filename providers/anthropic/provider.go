package anthropic

import (
	"context"
	"maps"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	llmprovider "github.com/haowjy/meridian-relay"
	"github.com/haowjy/meridian-relay/credentials"
)

// Provider implements the llmprovider.Provider interface for Anthropic (Claude) models.
type Provider struct {
	credentials credentials.Source
	baseURL     string
	httpClient  *http.Client
	retry       llmprovider.RetryPolicy
	tiers       *llmprovider.TierRegistry
	models      map[llmprovider.Tier]string
	logger      *zap.Logger

	clients llmprovider.ClientCache[*anthropic.Client]
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
	return WithCredentials(credentials.Static(credentials.AnthropicAPIKey, apiKey))
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
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

// NewProvider creates a new Anthropic provider. Without options the API key is
// read from the environment on every availability check.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		credentials: credentials.EnvSource{},
		retry:       llmprovider.DefaultRetryPolicy(),
		tiers:       llmprovider.GetTierRegistry(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = llmprovider.OrNop(p.logger).With(zap.String("provider", llmprovider.ProviderAnthropic.String()))
	return p
}

// ID returns the provider identifier.
func (p *Provider) ID() llmprovider.ProviderID {
	return llmprovider.ProviderAnthropic
}

// IsAvailable reports whether an API key can be resolved.
func (p *Provider) IsAvailable() bool {
	_, ok := p.credentials.Get(credentials.AnthropicAPIKey)
	return ok
}

// GetModels returns the tier table in effect.
func (p *Provider) GetModels() map[llmprovider.Tier]string {
	models := p.tiers.Models(llmprovider.ProviderAnthropic)
	maps.Copy(models, p.models)
	return models
}

// Think is a single-turn wrapper over Chat.
func (p *Provider) Think(ctx context.Context, req llmprovider.ThinkRequest) (string, error) {
	return llmprovider.Think(ctx, p, req)
}

// Chat generates a complete response from Claude.
func (p *Provider) Chat(ctx context.Context, opts *llmprovider.ChatOptions) (*llmprovider.ChatResult, error) {
	client, err := p.client()
	if err != nil {
		return nil, err
	}

	req, err := p.buildRequest(opts)
	if err != nil {
		return nil, err
	}

	var message *anthropic.Message
	err = llmprovider.Retry(ctx, p.retry, p.logger, p.ID(), func(int) error {
		msg, err := client.Messages.New(ctx, req.params, req.options...)
		if err != nil {
			return classifyError(err)
		}
		message = msg
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p.convertResponse(message, req.model), nil
}

// ChatStream opens a streaming response. It returns once the first chunk has
// arrived; failures before that are retried like Chat.
func (p *Provider) ChatStream(ctx context.Context, opts *llmprovider.ChatOptions) (*llmprovider.ChatStream, error) {
	client, err := p.client()
	if err != nil {
		return nil, err
	}

	req, err := p.buildRequest(opts)
	if err != nil {
		return nil, err
	}

	var stream *llmprovider.ChatStream
	err = llmprovider.Retry(ctx, p.retry, p.logger, p.ID(), func(int) error {
		s, err := llmprovider.OpenStream(ctx, p.ID(), req.model, p.produce(client, req))
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

// client returns the SDK client for the current API key, rebuilding it when
// the key changed.
func (p *Provider) client() (*anthropic.Client, error) {
	apiKey, ok := p.credentials.Get(credentials.AnthropicAPIKey)
	if !ok {
		return nil, llmprovider.MissingCredentialError(p.ID(), credentials.AnthropicAPIKey)
	}
	return p.clients.Get(apiKey, p.newClient), nil
}

func (p *Provider) newClient(apiKey string) *anthropic.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are handled by llmprovider.Retry
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(p.httpClient))
	}

	p.logger.Debug("building client")
	client := anthropic.NewClient(opts...)
	return &client
}

func (p *Provider) resolveModel(tier llmprovider.Tier) (string, error) {
	if tier == "" {
		tier = p.tiers.DefaultTier()
	}
	if model, ok := p.models[tier]; ok && model != "" {
		return model, nil
	}
	return p.tiers.Resolve(llmprovider.ProviderAnthropic, tier)
}
