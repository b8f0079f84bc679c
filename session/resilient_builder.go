package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/occ/observability"
	"github.com/hazyhaar/occ/occ"
	"github.com/hazyhaar/occ/resilience"
)

// ResilientBuilder wraps an occ.Builder with a circuit breaker, bounded
// retry with backoff, and call observability, so a struggling peer trips
// the breaker instead of letting the holder hammer a dead endpoint on every
// rebuild.
type ResilientBuilder struct {
	inner       occ.Builder
	breaker     *resilience.CircuitBreaker
	channelID   string
	transport   string
	events      *observability.EventLogger
	metrics     *observability.MetricsManager
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// ResilientBuilderOption configures a ResilientBuilder.
type ResilientBuilderOption func(*ResilientBuilder)

// WithResilientBreaker overrides the default circuit breaker. Since the
// caller now owns breaker construction, WithResilientChannelID does not name
// it — name the breaker directly via resilience.WithBreakerName.
func WithResilientBreaker(cb *resilience.CircuitBreaker) ResilientBuilderOption {
	return func(b *ResilientBuilder) { b.breaker = cb }
}

// WithResilientChannelID names the channel this builder rebuilds, so a
// tripped breaker's ErrCircuitOpen identifies which remote endpoint is
// struggling. It names the default breaker only, not one supplied by
// WithResilientBreaker; in both cases it also labels channel_rebuild_logs rows.
func WithResilientChannelID(id string) ResilientBuilderOption {
	return func(b *ResilientBuilder) { b.channelID = id }
}

// WithResilientMetrics records build duration and failure counts via the
// given metrics manager.
func WithResilientMetrics(mm *observability.MetricsManager) ResilientBuilderOption {
	return func(b *ResilientBuilder) { b.metrics = mm }
}

// WithResilientTransport labels channel_rebuild_logs rows with the
// transport name ("quic", "ws") alongside the channel id.
func WithResilientTransport(transport string) ResilientBuilderOption {
	return func(b *ResilientBuilder) { b.transport = transport }
}

// WithResilientEventLogger records one channel_rebuild_logs row per build
// attempt, success or failure, via the given EventLogger.
func WithResilientEventLogger(events *observability.EventLogger) ResilientBuilderOption {
	return func(b *ResilientBuilder) { b.events = events }
}

// WithResilientRetry sets the bounded retry policy applied around the
// breaker-guarded build attempt.
func WithResilientRetry(maxRetries int, baseBackoff time.Duration) ResilientBuilderOption {
	return func(b *ResilientBuilder) {
		b.maxRetries = maxRetries
		b.baseBackoff = baseBackoff
	}
}

// WithResilientLogger sets the logger used for panic-recovery and retry logging.
func WithResilientLogger(logger *slog.Logger) ResilientBuilderOption {
	return func(b *ResilientBuilder) { b.logger = logger }
}

// NewResilientBuilder wraps inner with sensible defaults: a breaker that
// opens after 5 consecutive build failures, one retry with a 500ms base
// backoff, panic recovery, and retry logging via slog.Default().
func NewResilientBuilder(inner occ.Builder, opts ...ResilientBuilderOption) *ResilientBuilder {
	b := &ResilientBuilder{
		inner:       inner,
		logger:      slog.Default(),
		maxRetries:  1,
		baseBackoff: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(b)
	}
	if b.breaker == nil {
		b.breaker = resilience.NewCircuitBreaker(resilience.WithBreakerName(b.channelID))
	}
	return b
}

// BuildAndEstablish runs inner.BuildAndEstablish through the breaker, the
// middleware chain, and bounded retry. The built Channel (when successful)
// escapes the Op closure via a captured local variable, since Op only
// reports success/failure. The middleware chain is assembled here, not at
// construction time, so every option passed to NewResilientBuilder (logger,
// metrics) is already settled before it is used.
func (b *ResilientBuilder) BuildAndEstablish(ctx context.Context) (occ.Channel, error) {
	var ch occ.Channel
	base := func(ctx context.Context) error {
		return b.breaker.Guard("build_and_establish", func() error {
			built, err := b.inner.BuildAndEstablish(ctx)
			if err != nil {
				return err
			}
			ch = built
			return nil
		})
	}

	mws := []resilience.Middleware{resilience.Recovery(b.logger)}
	if b.metrics != nil {
		mws = append(mws, resilience.WithObservability(b.metrics, "build_and_establish", "resilient"))
	}
	op := resilience.Chain(mws...)(base)

	start := time.Now()
	err := resilience.Do(ctx, b.maxRetries, b.baseBackoff, b.logger, op)
	if b.events != nil {
		b.events.LogChannelRebuild(ctx, b.channelID, b.transport, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}
