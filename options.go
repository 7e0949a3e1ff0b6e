package stash

import (
	"log/slog"
	"time"

	"github.com/xraph/stash/observability"
	"github.com/xraph/stash/store"
)

// Option configures a Store.
type Option func(*Store) error

// WithBackend sets the persistence backend for the Store.
func WithBackend(b store.Store) Option {
	return func(s *Store) error {
		s.backend = b
		return nil
	}
}

// WithLogger sets the structured logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithRegion binds the Store to a region. An empty name selects DefaultRegion.
func WithRegion(region string) Option {
	return func(s *Store) error {
		s.config.Region = normalizeRegion(region)
		return nil
	}
}

// WithMaxCASAttempts sets how many compare-and-swap rounds a write may take.
func WithMaxCASAttempts(n int) Option {
	return func(s *Store) error {
		s.config.MaxCASAttempts = n
		return nil
	}
}

// WithCascadeExpiry makes group expiry also remove the expired groups' messages.
func WithCascadeExpiry(enabled bool) Option {
	return func(s *Store) error {
		s.config.CascadeExpiry = enabled
		return nil
	}
}

// WithClock overrides the time source used for stamping and expiry.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) error {
		s.config.Clock = clock
		return nil
	}
}

// WithMetrics sets the metric instruments the Store records into.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) error {
		s.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer used for per-operation spans.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Store) error {
		s.tracer = t
		return nil
	}
}
