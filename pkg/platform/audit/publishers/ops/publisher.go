// Package ops provides a best-effort audit publisher for operational events
// such as run starts and lock contention. Events may be sampled, and writes
// are skipped while the store keeps failing. Track never returns an error.
package ops

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "lineageforge/pkg/platform/audit"
)

type Publisher struct {
	store   audit.Store
	sampler *Sampler
	breaker *CircuitBreaker
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithSampler(s *Sampler) Option {
	return func(p *Publisher) {
		p.sampler = s
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		sampler: NewSampler(1),
		breaker: NewCircuitBreaker(5, time.Minute),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Track writes event unless it is sampled out or the circuit is open.
func (p *Publisher) Track(ctx context.Context, event audit.OpsEvent) {
	if !p.sampler.ShouldSample(event.Action) {
		p.metrics.IncSampled()
		return
	}
	if !p.breaker.Allow() {
		p.metrics.IncCircuitBreakerDropped()
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	stored := event.ToEvent()
	stored.ID = uuid.New()

	if err := p.store.Append(ctx, stored); err != nil {
		p.metrics.IncPersistFailures()
		if p.breaker.RecordFailure() {
			p.metrics.SetCircuitBreakerState(true)
			p.logger.WarnContext(ctx, "ops audit circuit opened", "error", err)
		}
		return
	}
	p.breaker.RecordSuccess()
	p.metrics.SetCircuitBreakerState(false)
	p.metrics.IncTracked()
}
