// Package engine builds the research stack from configuration.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jonathan/keyword-agent/internal/batch"
	"github.com/jonathan/keyword-agent/internal/cache"
	"github.com/jonathan/keyword-agent/internal/config"
	"github.com/jonathan/keyword-agent/internal/generation"
	"github.com/jonathan/keyword-agent/internal/intent"
	"github.com/jonathan/keyword-agent/internal/llm"
	"github.com/jonathan/keyword-agent/internal/metrics"
	"github.com/jonathan/keyword-agent/internal/research"
	"github.com/jonathan/keyword-agent/internal/retry"
	"github.com/jonathan/keyword-agent/internal/scoring"
	"github.com/jonathan/keyword-agent/internal/telemetry"
)

// Engine holds the wired components
type Engine struct {
	Research  *research.Orchestrator
	Batch     *batch.Runner
	Telemetry *telemetry.Metrics
	Cache     *cache.Memory

	llmClient llm.Client
	provider  metrics.Provider
	logger    logrus.FieldLogger
}

// Option overrides a component, mainly for tests
type Option func(*options)

type options struct {
	llmClient   llm.Client
	provider    metrics.Provider
	hasProvider bool
}

// WithLLMClient uses client instead of building one from the API key
func WithLLMClient(client llm.Client) Option {
	return func(o *options) { o.llmClient = client }
}

// WithProvider uses p instead of the configured metrics provider; nil disables lookups
func WithProvider(p metrics.Provider) Option {
	return func(o *options) {
		o.provider = p
		o.hasProvider = true
	}
}

// New wires every component from cfg. cfg should already be merged with defaults and validated.
func New(ctx context.Context, cfg config.Config, logger logrus.FieldLogger, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	policy := Policy(cfg)

	client := o.llmClient
	if client == nil && cfg.APIKey != "" {
		llmConfig := llm.DefaultConfig()
		if cfg.Model != "" {
			llmConfig = llmConfig.WithModel(llm.TierLite, cfg.Model)
		}
		c, err := llm.NewClient(ctx, llmConfig, cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		client = c
	}
	if client == nil {
		if cfg.RequireLLM {
			return nil, fmt.Errorf("an API key is required when require_llm is set")
		}
		logger.Warn("no API key configured, keywords will come from templates only")
	}

	provider := o.provider
	if !o.hasProvider {
		p, err := newProvider(ctx, cfg)
		if err != nil {
			closeClient(client)
			return nil, err
		}
		provider = p
	}

	tel := telemetry.New()
	memory := cache.NewMemory(cfg.CacheSweepInterval.Std(),
		cache.WithTTL(cfg.CacheTTL.Std()),
		cache.WithMaxEntries(cfg.CacheMaxEntries),
	)
	if err := tel.Register(telemetry.NewCacheCollector(memory)); err != nil {
		_ = memory.Close()
		closeClient(client)
		return nil, fmt.Errorf("failed to register cache collector: %w", err)
	}

	generator := generation.New(client,
		generation.WithPolicy(policy),
		generation.WithLogger(logger),
	)

	synthOpts := []metrics.SynthesizerOption{
		metrics.WithPolicy(policy),
		metrics.WithLogger(logger),
	}
	if provider != nil {
		synthOpts = append(synthOpts, metrics.WithProvider(provider))
	}

	scorer := scoring.New(
		scoring.WithWeights(scoring.Weights{
			Volume:      cfg.Weights.Volume,
			Competition: cfg.Weights.Competition,
			Difficulty:  cfg.Weights.Difficulty,
			Intent:      cfg.Weights.Intent,
		}),
		scoring.WithVolumeCeiling(cfg.VolumeCeiling),
	)

	orchestrator := research.New(
		generator,
		intent.Default(),
		metrics.NewSynthesizer(synthOpts...),
		scorer,
		research.WithCache(memory),
		research.WithRecorder(tel),
		research.WithLogger(logger),
		research.WithConcurrency(cfg.Concurrency),
	)

	runner := batch.New(orchestrator,
		batch.WithConcurrency(cfg.BatchConcurrency),
		batch.WithSeedTimeout(cfg.SeedTimeout.Std()),
		batch.WithRecorder(tel),
		batch.WithLogger(logger),
	)

	providerName := "none"
	if provider != nil {
		providerName = provider.Name()
	}
	logger.WithFields(logrus.Fields{
		"llm":         client != nil,
		"provider":    providerName,
		"concurrency": cfg.Concurrency,
		"cache_ttl":   cfg.CacheTTL.Std(),
	}).Debug("engine ready")

	return &Engine{
		Research:  orchestrator,
		Batch:     runner,
		Telemetry: tel,
		Cache:     memory,
		llmClient: client,
		provider:  provider,
		logger:    logger,
	}, nil
}

// LLMEnabled reports whether a generative client is wired
func (e *Engine) LLMEnabled() bool {
	return e.llmClient != nil
}

// ProviderName names the metrics provider, or "none"
func (e *Engine) ProviderName() string {
	if e.provider == nil {
		return "none"
	}
	return e.provider.Name()
}

// Close stops the cache janitor and releases the generative client
func (e *Engine) Close() error {
	var errs []error
	if e.Cache != nil {
		errs = append(errs, e.Cache.Close())
	}
	if e.llmClient != nil {
		errs = append(errs, e.llmClient.Close())
	}
	return errors.Join(errs...)
}

// Policy builds the shared retry policy. A positive rate limit paces every
// outbound attempt through one limiter.
func Policy(cfg config.Config) retry.Policy {
	p := retry.Policy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		BaseDelay:      cfg.RetryBaseDelay.Std(),
		MaxDelay:       cfg.RetryMaxDelay.Std(),
		AttemptTimeout: cfg.AttemptTimeout.Std(),
	}
	if cfg.RateLimit > 0 {
		p.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, cfg.RateBurst))
	}
	return p
}

func newProvider(ctx context.Context, cfg config.Config) (metrics.Provider, error) {
	switch strings.ToLower(cfg.MetricsProvider) {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderHTTP:
		return metrics.NewHTTPProvider(cfg.MetricsProviderURL, cfg.MetricsProviderKey), nil
	case config.ProviderSearch:
		p, err := metrics.NewSearchProvider(ctx, cfg.SearchAPIKey, cfg.SearchCX)
		if err != nil {
			return nil, fmt.Errorf("failed to create search provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown metrics provider %q", cfg.MetricsProvider)
	}
}

func closeClient(c llm.Client) {
	if c != nil {
		_ = c.Close()
	}
}
