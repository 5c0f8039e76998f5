// Package completion turns a prompt into a generated response by walking the
// fallback chain. Complete always returns a well-formed Result: adapter
// failures are absorbed into statistics and the Mock provider answers when
// nothing else can.
package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/nimbus-copilot/internal/observability"
	"github.com/upb/nimbus-copilot/services/providers"
	"github.com/upb/nimbus-copilot/services/providers/mock"
	"github.com/upb/nimbus-copilot/services/routing"
)

const (
	// DefaultTimeout bounds each attempt when neither config nor request set one
	DefaultTimeout = 30 * time.Second
	// MaxTimeout caps per-request overrides
	MaxTimeout = 120 * time.Second
)

// Config holds the router timeouts
type Config struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
}

// Router is the completion router. It is safe for concurrent use.
type Router struct {
	policy  *routing.Policy
	stats   *StatsAggregator
	config  Config
	logger  *zap.Logger
	metrics observability.Metrics
}

// Option configures a Router
type Option func(*Router)

// WithMetrics sets the metrics sink
func WithMetrics(metrics observability.Metrics) Option {
	return func(r *Router) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// NewRouter creates a router over policy. stats is owned by the router from
// here on; pass a fresh aggregator per router.
func NewRouter(policy *routing.Policy, stats *StatsAggregator, config Config, logger *zap.Logger, opts ...Option) *Router {
	if config.MaxTimeout <= 0 {
		config.MaxTimeout = MaxTimeout
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultTimeout
	}
	if config.DefaultTimeout > config.MaxTimeout {
		config.DefaultTimeout = config.MaxTimeout
	}
	if stats == nil {
		stats = NewStatsAggregator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Router{
		policy:  policy,
		stats:   stats,
		config:  config,
		logger:  logger,
		metrics: observability.NopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Complete produces exactly one Result for req. It has no error return:
// validation failures, exhausted chains and caller cancellation all come back
// as degraded results tagged with the Mock provider.
func (r *Router) Complete(ctx context.Context, req Request) Result {
	id := uuid.New()
	attemptReq := r.providerRequest(req)

	if strings.TrimSpace(attemptReq.Question()) == "" {
		r.logger.Warn("rejecting empty prompt", zap.String("request_id", id.String()))
		r.finish(OutcomeRejected, providers.Mock)
		return Result{
			ID:       id,
			Text:     mock.Reply(""),
			Provider: providers.Mock,
			Model:    mock.Model,
			Error:    "prompt must not be empty",
		}
	}

	if req.Preference != providers.None && !r.policy.Has(req.Preference) {
		r.logger.Debug("preferred provider not in fallback chain, using default order",
			zap.String("request_id", id.String()),
			zap.String("preference", string(req.Preference)))
	}

	timeout := r.resolveTimeout(req.Timeout)
	order := r.policy.Order(req.Preference)
	chain, fallback := order[:len(order)-1], order[len(order)-1]

	var failures []string
	for _, adapter := range chain {
		if err := ctx.Err(); err != nil {
			return r.cancelled(id, attemptReq, err)
		}

		completion, latency, err := r.attempt(ctx, adapter, attemptReq, timeout)
		if err == nil {
			r.stats.RecordSuccess(adapter.ID(), latency)
			r.metrics.RecordAttempt(string(adapter.ID()), "success", latency)
			r.finish(OutcomeServed, adapter.ID())

			r.logger.Debug("completion served",
				zap.String("request_id", id.String()),
				zap.String("provider", string(adapter.ID())),
				zap.String("model", completion.Model),
				zap.Duration("latency", latency))

			return Result{
				ID:       id,
				Text:     completion.Text,
				Provider: adapter.ID(),
				Model:    completion.Model,
				Latency:  latency,
				Success:  true,
			}
		}

		kind := providers.KindOf(err)
		if kind == providers.KindUnconfigured {
			continue
		}

		r.stats.RecordFailure(adapter.ID(), kind, latency)
		r.metrics.RecordAttempt(string(adapter.ID()), string(kind), latency)
		failures = append(failures, err.Error())

		r.logger.Warn("provider attempt failed",
			zap.String("request_id", id.String()),
			zap.String("provider", string(adapter.ID())),
			zap.String("kind", string(kind)),
			zap.Duration("latency", latency),
			zap.Error(err))

		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.cancelled(id, attemptReq, ctxErr)
		}
	}

	return r.exhausted(id, fallback, attemptReq, failures)
}

// Stats returns a consistent snapshot of the router counters
func (r *Router) Stats() RouterStats {
	return r.stats.Snapshot()
}

// ResetStats zeroes the router counters
func (r *Router) ResetStats() {
	r.stats.Reset()
	r.logger.Info("router statistics reset")
}

// Providers returns the configured chain in default order
func (r *Router) Providers() []providers.ID {
	return r.policy.Providers()
}

type attemptOutcome struct {
	completion *providers.Completion
	err        error
}

// attempt runs one adapter call under its own deadline. The router stops
// waiting as soon as the deadline fires and the deferred cancel aborts the
// outbound call.
func (r *Router) attempt(ctx context.Context, adapter providers.Adapter, req *providers.Request, timeout time.Duration) (*providers.Completion, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptOutcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- attemptOutcome{err: providers.NewAdapterError(adapter.ID(), providers.KindTransport,
					fmt.Sprintf("adapter panicked: %v", p), 0, nil)}
			}
		}()
		completion, err := adapter.Attempt(attemptCtx, req)
		done <- attemptOutcome{completion: completion, err: err}
	}()

	select {
	case out := <-done:
		latency := time.Since(start)
		if out.err != nil {
			return nil, latency, out.err
		}
		if out.completion == nil || strings.TrimSpace(out.completion.Text) == "" {
			return nil, latency, providers.NewAdapterError(adapter.ID(), providers.KindInvalidResponse, "empty completion", 0, nil)
		}
		return out.completion, latency, nil
	case <-attemptCtx.Done():
		latency := time.Since(start)
		return nil, latency, providers.NewAdapterError(adapter.ID(), providers.KindTimeout,
			fmt.Sprintf("no response within %s", timeout), 0, attemptCtx.Err())
	}
}

// exhausted answers from the fallback once every real provider has failed
func (r *Router) exhausted(id uuid.UUID, fallback providers.Adapter, req *providers.Request, failures []string) Result {
	start := time.Now()
	completion, err := fallback.Attempt(context.Background(), req)
	latency := time.Since(start)
	if err != nil || completion == nil {
		completion = mock.NewAdapter().Complete(req.Question())
	}

	r.stats.RecordSuccess(fallback.ID(), latency)
	r.metrics.RecordAttempt(string(fallback.ID()), "success", latency)
	r.finish(OutcomeDegraded, fallback.ID())

	reason := "no providers configured"
	if len(failures) > 0 {
		reason = "all providers failed: " + strings.Join(failures, "; ")
	}

	r.logger.Warn("returning degraded completion",
		zap.String("request_id", id.String()),
		zap.String("reason", reason))

	return Result{
		ID:       id,
		Text:     completion.Text,
		Provider: fallback.ID(),
		Model:    completion.Model,
		Latency:  latency,
		Error:    reason,
	}
}

// cancelled stops the chain after the caller's context ended
func (r *Router) cancelled(id uuid.UUID, req *providers.Request, cause error) Result {
	r.finish(OutcomeCancelled, providers.Mock)

	r.logger.Warn("completion cancelled by caller",
		zap.String("request_id", id.String()),
		zap.Error(cause))

	return Result{
		ID:       id,
		Text:     mock.Reply(req.Question()),
		Provider: providers.Mock,
		Model:    mock.Model,
		Error:    "request cancelled: " + cause.Error(),
	}
}

func (r *Router) finish(outcome Outcome, provider providers.ID) {
	r.stats.RecordCall(outcome)
	r.metrics.RecordCompletion(string(provider), string(outcome))
}

func (r *Router) resolveTimeout(override time.Duration) time.Duration {
	timeout := r.config.DefaultTimeout
	if override > 0 {
		timeout = override
	}
	if timeout > r.config.MaxTimeout {
		timeout = r.config.MaxTimeout
	}
	return timeout
}

func (r *Router) providerRequest(req Request) *providers.Request {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	return &providers.Request{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Messages:     append([]providers.Message(nil), req.Messages...),
		Model:        req.ModelHint,
		MaxTokens:    maxTokens,
		Temperature:  temperature,
	}
}
