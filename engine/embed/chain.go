package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/metrics"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/resilience"
)

// UnavailableError reports that every provider in a chain failed. It
// matches domain.ErrEmbeddingUnavailable under errors.Is.
type UnavailableError struct {
	Tried  []string
	Causes []error
}

func (e *UnavailableError) Error() string {
	if len(e.Tried) == 0 {
		return "embed: no providers configured"
	}
	parts := make([]string, len(e.Tried))
	for i, name := range e.Tried {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Causes[i])
	}
	return fmt.Sprintf("embed: all %d providers failed: %s", len(e.Tried), strings.Join(parts, "; "))
}

func (e *UnavailableError) Is(target error) bool { return target == domain.ErrEmbeddingUnavailable }

func (e *UnavailableError) Unwrap() []error { return e.Causes }

// Cache stores vectors by input text.
type Cache interface {
	Get(text string) ([]float32, bool, error)
	Put(text string, vec []float32) error
}

// Chain tries providers strictly in order; the first vector wins.
type Chain struct {
	providers []Provider
	breakers  []*resilience.Breaker
	cache     Cache
	logger    *slog.Logger
	metrics   *metrics.Registry
}

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the chain's logger.
func WithLogger(l *slog.Logger) Option { return func(c *Chain) { c.logger = l } }

// WithCache consults cache before any provider and fills it on success.
func WithCache(cache Cache) Option { return func(c *Chain) { c.cache = cache } }

// WithMetrics records per-provider attempt counts and latency in reg.
func WithMetrics(reg *metrics.Registry) Option { return func(c *Chain) { c.metrics = reg } }

// WithBreakers guards each provider with its own circuit breaker, so a
// provider that keeps failing is skipped without waiting for its timeout.
// Unless opts.IsFailure is set, only transport errors, 5xx and 429 count
// toward tripping; a provider rejecting one input stays closed.
func WithBreakers(opts resilience.BreakerOpts) Option {
	return func(c *Chain) {
		if opts.IsFailure == nil {
			opts.IsFailure = providerFault
		}
		c.breakers = make([]*resilience.Breaker, len(c.providers))
		for i, p := range c.providers {
			o := opts
			name := p.Name()
			logger := c.logger
			o.OnStateChange = func(from, to resilience.State) {
				logger.Info("embed.breaker", "provider", name, "from", from.String(), "to", to.String())
			}
			c.breakers[i] = resilience.NewBreaker(o)
		}
	}
}

// NewChain creates a chain over providers. Options apply in order, so
// WithLogger should precede WithBreakers.
func NewChain(providers []Provider, opts ...Option) *Chain {
	c := &Chain{providers: providers, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Providers returns the provider names in the order they are tried.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Resolve returns the first vector any provider produces for text. Provider
// failures are never returned directly; when all providers fail the error
// is an *UnavailableError. A cancelled ctx stops the walk with ctx.Err().
func (c *Chain) Resolve(ctx context.Context, text string) ([]float32, error) {
	if c.cache != nil {
		vec, ok, err := c.cache.Get(text)
		if err != nil {
			c.logger.Warn("embed.cache_get", "error", err)
		} else if ok {
			c.count("cache", "hit")
			return vec, nil
		}
	}

	failure := &UnavailableError{}
	for i, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		vec, err := c.call(ctx, i, p, text)
		if err == nil {
			c.observe(p.Name(), start)
			c.count(p.Name(), "ok")
			if c.cache != nil {
				if perr := c.cache.Put(text, vec); perr != nil {
					c.logger.Warn("embed.cache_put", "error", perr)
				}
			}
			if i > 0 {
				c.logger.Debug("embed.fallback_used", "provider", p.Name(), "position", i)
			}
			return vec, nil
		}
		outcome := "error"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			outcome = "skipped"
		}
		c.count(p.Name(), outcome)
		c.logger.Debug("embed.provider_failed", "provider", p.Name(), "error", err)
		failure.Tried = append(failure.Tried, p.Name())
		failure.Causes = append(failure.Causes, err)
	}
	return nil, failure
}

func (c *Chain) call(ctx context.Context, i int, p Provider, text string) ([]float32, error) {
	var vec []float32
	do := func(ctx context.Context) error {
		v, err := p.Embed(ctx, text)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return errNoVector
		}
		vec = v
		return nil
	}
	var err error
	if c.breakers != nil && c.breakers[i] != nil {
		err = c.breakers[i].Call(ctx, do)
	} else {
		err = do(ctx)
	}
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (c *Chain) count(provider, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Counter(
		metrics.WithLabels("catalog_embed_attempts_total", "provider", provider, "outcome", outcome),
		"Embedding provider attempts by outcome.",
	).Inc()
}

func (c *Chain) observe(provider string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.Histogram(
		metrics.WithLabels("catalog_embed_seconds", "provider", provider),
		"Successful embedding latency.", nil,
	).Since(start)
}
