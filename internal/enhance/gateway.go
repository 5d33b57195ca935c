// Package enhance turns a raw prompt into an improved one by asking a chat
// completion provider. Results are cached by (target, prompt); provider
// failures are retried with exponential backoff when they look transient.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
	"github.com/LazyMisha/prmptlaba/internal/cache"
	"github.com/LazyMisha/prmptlaba/internal/metrics"
	"github.com/LazyMisha/prmptlaba/internal/provider"
	"github.com/LazyMisha/prmptlaba/internal/retry"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxTarget   = 100
	DefaultMaxPrompt   = 5000
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

// Completer is the provider call the gateway retries.
type Completer interface {
	Complete(ctx context.Context, req provider.ChatRequest) (string, error)
}

// Gateway runs enhancements. It holds no locks across provider calls and
// is safe for concurrent use.
type Gateway struct {
	provider Completer
	cache    *cache.Cache[string]

	policy      retry.Policy
	sleep       retry.Sleeper
	timeout     time.Duration
	limiter     *rate.Limiter
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxTarget   int
	maxPrompt   int
	model       string
	maxTokens   int
	temperature float64
}

type Option func(*Gateway)

// WithPolicy replaces the retry policy. A nil Retryable is filled in with
// apperr.IsRetryable.
func WithPolicy(p retry.Policy) Option { return func(g *Gateway) { g.policy = p } }

// WithTimeout sets the hard wall-clock limit for one Enhance call.
func WithTimeout(d time.Duration) Option { return func(g *Gateway) { g.timeout = d } }

// WithLimiter throttles outbound provider calls.
func WithLimiter(l *rate.Limiter) Option { return func(g *Gateway) { g.limiter = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(g *Gateway) { g.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(g *Gateway) { g.logger = l } }

// WithSleeper replaces the backoff sleep. Tests use it to record waits.
func WithSleeper(s retry.Sleeper) Option { return func(g *Gateway) { g.sleep = s } }

// WithLimits sets the maximum target and prompt lengths in runes.
func WithLimits(maxTarget, maxPrompt int) Option {
	return func(g *Gateway) {
		g.maxTarget = maxTarget
		g.maxPrompt = maxPrompt
	}
}

// WithSampling sets the model, output token bound and temperature sent to
// the provider. An empty model leaves the provider default in place.
func WithSampling(model string, maxTokens int, temperature float64) Option {
	return func(g *Gateway) {
		g.model = model
		g.maxTokens = maxTokens
		g.temperature = temperature
	}
}

// New builds a Gateway. c may be nil to disable caching.
func New(p Completer, c *cache.Cache[string], opts ...Option) *Gateway {
	g := &Gateway{
		provider:    p,
		cache:       c,
		policy:      retry.Default(),
		sleep:       retry.Sleep,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
		maxTarget:   DefaultMaxTarget,
		maxPrompt:   DefaultMaxPrompt,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
	}
	for _, o := range opts {
		o(g)
	}
	if g.policy.Retryable == nil {
		g.policy.Retryable = apperr.IsRetryable
	}
	return g
}

// Enhance returns the improved prompt for target. Errors are *apperr.Error:
// KindValidation before any I/O, KindTimeout or KindCancelled when the
// deadline or the caller stops the call, and KindProvider for the final
// provider failure once retries are exhausted or a failure is not retryable.
func (g *Gateway) Enhance(ctx context.Context, target, prompt string) (string, error) {
	start := time.Now()
	out, result, err := g.enhance(ctx, target, prompt)
	g.metrics.ObserveEnhance(result, time.Since(start))
	return out, err
}

func (g *Gateway) enhance(ctx context.Context, target, prompt string) (string, string, error) {
	target = strings.TrimSpace(target)
	prompt = strings.TrimSpace(prompt)
	if err := g.validate(target, prompt); err != nil {
		return "", string(apperr.KindValidation), err
	}

	if err := ctx.Err(); err != nil {
		e := contextError(err)
		return "", string(e.Kind), e
	}

	key := cache.GenerateKey(target, prompt)
	if g.cache != nil {
		if v, ok := g.cache.Get(key); ok {
			g.metrics.CacheHit()
			return v, "cache_hit", nil
		}
		g.metrics.CacheMiss()
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := g.metrics.InFlight()
	defer done()

	req := BuildRequest(target, prompt, g.model, g.maxTokens, g.temperature)
	var enhanced string
	err := retry.Do(callCtx, g.policy, g.sleep, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			g.logger.Info("retrying provider call", "target", target, "attempt", attempt+1, "max_attempts", g.policy.Attempts)
		}
		if err := g.wait(ctx); err != nil {
			return err
		}

		text, err := g.provider.Complete(ctx, req)
		if err != nil {
			g.recordFailure(err)
			return err
		}
		if strings.TrimSpace(text) == "" {
			g.metrics.ProviderAttempt("empty")
			return apperr.NewProvider(http.StatusBadGateway, true, "provider returned empty output", nil)
		}
		g.metrics.ProviderAttempt("ok")
		enhanced = strings.TrimSpace(text)
		return nil
	})

	// A call that finished after the deadline or the caller's cancel is
	// reported as such and never cached.
	if ctxErr := callCtx.Err(); ctxErr != nil {
		e := contextError(ctxErr)
		g.logger.Warn("enhancement aborted", "target", target, "reason", e.Kind)
		return "", string(e.Kind), e
	}
	if err != nil {
		e := g.finalError(err)
		g.logger.Warn("enhancement failed", "target", target, "kind", e.Kind, "status", e.StatusCode, "error", err)
		return "", string(e.Kind), e
	}

	if g.cache != nil {
		g.cache.Set(key, enhanced, 0)
	}
	return enhanced, "ok", nil
}

func (g *Gateway) validate(target, prompt string) error {
	switch {
	case target == "":
		return apperr.NewValidation("target is required")
	case prompt == "":
		return apperr.NewValidation("prompt is required")
	case utf8.RuneCountInString(target) > g.maxTarget:
		return apperr.NewValidation("target must be at most %d characters", g.maxTarget)
	case utf8.RuneCountInString(prompt) > g.maxPrompt:
		return apperr.NewValidation("prompt must be at most %d characters", g.maxPrompt)
	}
	return nil
}

func (g *Gateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	done := g.metrics.Waiting()
	defer done()
	if err := g.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// The limiter refuses up front when the wait would pass the deadline.
		return apperr.NewTimeout("rate limit wait exceeds the request deadline", err)
	}
	return nil
}

func (g *Gateway) recordFailure(err error) {
	switch {
	case apperr.IsRetryable(err):
		g.metrics.ProviderAttempt("retryable")
	default:
		g.metrics.ProviderAttempt("fatal")
	}
}

func (g *Gateway) finalError(err error) *apperr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return contextError(err)
	}
	if e, ok := apperr.As(err); ok {
		return e
	}
	return apperr.NewInternal(fmt.Errorf("enhancing prompt: %w", err))
}

func contextError(err error) *apperr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.NewTimeout("enhancement timed out", err)
	}
	return apperr.NewCancelled("enhancement cancelled", err)
}
