// Package guarded puts a circuit breaker in front of a remote audit sink.
// While the breaker is open, events are written to a local fallback store
// instead of waiting on a sink that keeps failing.
package guarded

import (
	"context"
	"log/slog"

	"hashplanet/pkg/platform/audit"
	"hashplanet/pkg/platform/circuit"
)

type Store struct {
	primary  audit.Store
	fallback audit.Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func New(primary, fallback audit.Store, breaker *circuit.Breaker, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

// Append tries the primary when the breaker allows it. A primary failure is
// retried on the fallback, so the caller only sees an error when both fail.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if !s.breaker.Allow() {
		return s.fallback.Append(ctx, event)
	}

	err := s.primary.Append(ctx, event)
	if err == nil {
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "audit sink recovered",
				"breaker", s.breaker.Name(),
			)
		}
		return nil
	}

	if _, change := s.breaker.RecordFailure(); change.Opened {
		s.logger.WarnContext(ctx, "audit sink failing, switching to fallback",
			"breaker", s.breaker.Name(),
			"error", err,
		)
	}
	return s.fallback.Append(ctx, event)
}
