// Package lorem is a mock LLM provider that generates lorem ipsum text.
// Used for testing and development without requiring real API keys.
//
// Failures can be scripted to exercise retry and fallback: WithFailures queues
// errors returned by upcoming calls, WithStreamFailure breaks a stream after a
// number of chunks, and SetAvailable toggles availability at runtime.
package lorem

import (
	"context"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	loremgen "github.com/bozaro/golorem"
	"go.uber.org/zap"

	llmprovider "github.com/haowjy/meridian-relay"
)

// DefaultWords is the length of a generated response when the token budget
// allows it.
const DefaultWords = 40

// dialect is tolerant: the mock accepts any turn order.
var dialect = llmprovider.Dialect{
	Name:          "lorem",
	UserRole:      string(llmprovider.RoleUser),
	AssistantRole: string(llmprovider.RoleAssistant),
}

// Provider is a mock LLM provider.
type Provider struct {
	mu        sync.Mutex // guards generator and failures
	generator *loremgen.Lorem
	failures  []error

	tiers  *llmprovider.TierRegistry
	models map[llmprovider.Tier]string
	retry  llmprovider.RetryPolicy
	logger *zap.Logger

	words      int
	delay      time.Duration
	fixedDelay bool

	streamFailAfter int
	streamErr       error

	available atomic.Bool
	calls     atomic.Int64
}

// Option configures a Provider.
type Option func(*Provider)

// WithFailures queues errors returned, in order, by the next calls (one per
// attempt, so retries consume them too).
func WithFailures(errs ...error) Option {
	return func(p *Provider) {
		p.failures = append(p.failures, errs...)
	}
}

// WithStreamFailure makes streams fail with err after delivering n chunks.
func WithStreamFailure(n int, err error) Option {
	return func(p *Provider) {
		p.streamFailAfter = n
		p.streamErr = err
	}
}

// WithDelay overrides the per-word delay derived from the model name.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) {
		p.delay = d
		p.fixedDelay = true
	}
}

// WithWords sets how many words a response contains.
func WithWords(n int) Option {
	return func(p *Provider) {
		p.words = n
	}
}

// WithRetryPolicy sets the retry policy. The default makes a single attempt.
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

// NewProvider creates a new lorem ipsum provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		generator: loremgen.New(),
		tiers:     llmprovider.GetTierRegistry(),
		retry:     llmprovider.RetryPolicy{MaxAttempts: 1},
		words:     DefaultWords,
	}
	p.available.Store(true)
	for _, opt := range opts {
		opt(p)
	}
	p.logger = llmprovider.OrNop(p.logger).With(zap.String("provider", llmprovider.ProviderLorem.String()))
	return p
}

// ID returns the provider identifier.
func (p *Provider) ID() llmprovider.ProviderID {
	return llmprovider.ProviderLorem
}

// IsAvailable reports the value last set with SetAvailable (true by default).
func (p *Provider) IsAvailable() bool {
	return p.available.Load()
}

// SetAvailable toggles availability.
func (p *Provider) SetAvailable(available bool) {
	p.available.Store(available)
}

// Calls returns how many attempts reached the provider.
func (p *Provider) Calls() int {
	return int(p.calls.Load())
}

// GetModels returns the tier table in effect.
func (p *Provider) GetModels() map[llmprovider.Tier]string {
	models := p.tiers.Models(llmprovider.ProviderLorem)
	maps.Copy(models, p.models)
	return models
}

// Think is a single-turn wrapper over Chat.
func (p *Provider) Think(ctx context.Context, req llmprovider.ThinkRequest) (string, error) {
	return llmprovider.Think(ctx, p, req)
}

// Chat generates a complete lorem ipsum response after one word delay.
func (p *Provider) Chat(ctx context.Context, opts *llmprovider.ChatOptions) (*llmprovider.ChatResult, error) {
	req, err := p.prepare(opts)
	if err != nil {
		return nil, err
	}

	var result *llmprovider.ChatResult
	err = llmprovider.Retry(ctx, p.retry, p.logger, p.ID(), func(int) error {
		if err := p.attempt(); err != nil {
			return err
		}
		if err := wait(ctx, p.wordDelay(req.model)); err != nil {
			return err
		}

		plan := p.plan(req)
		result = &llmprovider.ChatResult{
			Text:         strings.Join(plan.words, " "),
			InputTokens:  req.inputTokens,
			OutputTokens: plan.outputTokens(),
			Provider:     llmprovider.ProviderLorem,
			Model:        req.model,
			StopReason:   plan.stopReason,
		}
		if plan.toolCall != nil {
			result.ToolCalls = []llmprovider.ToolUseBlock{*plan.toolCall}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChatStream streams the response word by word. Speed varies based on model
// name (lorem-slow, lorem-fast, lorem-medium).
func (p *Provider) ChatStream(ctx context.Context, opts *llmprovider.ChatOptions) (*llmprovider.ChatStream, error) {
	req, err := p.prepare(opts)
	if err != nil {
		return nil, err
	}

	var stream *llmprovider.ChatStream
	err = llmprovider.Retry(ctx, p.retry, p.logger, p.ID(), func(int) error {
		if err := p.attempt(); err != nil {
			return err
		}
		s, err := llmprovider.OpenStream(ctx, p.ID(), req.model, p.produce(req))
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

// request is a validated call.
type request struct {
	model       string
	maxTokens   int
	tools       []llmprovider.ToolDefinition
	inputTokens int
}

func (p *Provider) prepare(opts *llmprovider.ChatOptions) (*request, error) {
	if opts == nil {
		return nil, &llmprovider.ValidationError{Field: "options", Reason: "chat options are required", Err: llmprovider.ErrInvalidRequest}
	}

	model, err := p.resolveModel(opts.Tier)
	if err != nil {
		return nil, err
	}

	payload, err := llmprovider.ToWireFormat(opts.SystemPrompt, opts.Messages, dialect)
	if err != nil {
		return nil, err
	}

	// Tools go through the same translation as real providers so schema
	// errors surface here too.
	if _, err := llmprovider.ToProviderSchema(opts.Tools, llmprovider.JSONSchemaDialect); err != nil {
		return nil, err
	}

	return &request{
		model:       model,
		maxTokens:   p.tiers.ClampMaxTokens(llmprovider.ProviderLorem, model, opts.GetMaxOutputTokens()),
		tools:       opts.Tools,
		inputTokens: estimateTokens(payload),
	}, nil
}

// attempt counts the call and pops the next scripted failure.
func (p *Provider) attempt() error {
	p.calls.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.failures) == 0 {
		return nil
	}
	err := p.failures[0]
	p.failures = p.failures[1:]
	return err
}

func (p *Provider) resolveModel(tier llmprovider.Tier) (string, error) {
	if tier == "" {
		tier = p.tiers.DefaultTier()
	}
	if model, ok := p.models[tier]; ok && model != "" {
		return model, nil
	}
	return p.tiers.Resolve(llmprovider.ProviderLorem, tier)
}

func (p *Provider) wordDelay(model string) time.Duration {
	if p.fixedDelay {
		return p.delay
	}
	return getStreamDelay(model)
}

// getStreamDelay returns the delay between words based on the model name.
// - lorem-slow: 2 words/second (500ms per word)
// - lorem-fast: 30 words/second (33ms per word)
// - lorem-medium: 10 words/second (100ms per word)
// - default: 10 words/second
func getStreamDelay(model string) time.Duration {
	if strings.Contains(model, "slow") {
		return 500 * time.Millisecond // 2 words/second
	}
	if strings.Contains(model, "fast") {
		return 33 * time.Millisecond // 30 words/second
	}
	return 100 * time.Millisecond
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
