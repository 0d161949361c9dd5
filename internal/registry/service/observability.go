package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hashplanet/internal/registry/metrics"
	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
	"hashplanet/pkg/platform/audit"
	"hashplanet/pkg/requestcontext"
)

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// observe records one transition attempt. Domain rejections and internal
// failures are counted apart.
func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
		s.refreshSupply(ctx)
	case dErrors.CodeOf(err) == dErrors.CodeInternal:
		outcome = metrics.OutcomeError
	default:
		outcome = metrics.OutcomeRejected
	}
	s.metrics.ObserveTransition(op, outcome, time.Since(start))
}

func (s *Service) refreshSupply(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	total, err := s.store.TotalSupply(ctx)
	if err != nil {
		return
	}
	unclaimed, err := s.store.BalanceOf(ctx, models.Unclaimed())
	if err != nil {
		return
	}
	s.metrics.SetSupply(total, unclaimed)
}

// logAudit writes the structured log line for a committed transition and
// hands the matching event to the publisher.
func (s *Service) logAudit(ctx context.Context, kind audit.EventType, entry *models.Entry, from, to id.Principal) {
	requestID := requestcontext.RequestID(ctx)
	args := []any{
		"event", string(kind),
		"log_type", "audit",
		"token_id", entry.ID.String(),
		"index", entry.Index,
		"from", from.String(),
		"to", to.String(),
	}
	if requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, string(kind), args...)

	s.emit(ctx, audit.Event{
		Type:      kind,
		TokenID:   entry.ID,
		Source:    entry.Source,
		Index:     entry.Index,
		From:      from.String(),
		To:        to.String(),
		RequestID: requestID,
		Timestamp: requestcontext.Now(ctx),
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"event", string(event.Type),
			"token_id", event.TokenID.String(),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncrementAuditDropped()
		}
	}
}

// reward pays the claim reward. The claim has already committed, so a
// failure is logged and counted only.
func (s *Service) reward(ctx context.Context, claimer id.Principal, tokenID id.Identifier) {
	if s.rewarder == nil {
		return
	}
	if err := s.rewarder.RewardClaim(ctx, claimer, tokenID); err != nil {
		s.logger.ErrorContext(ctx, "failed to pay claim reward",
			"principal", claimer.String(),
			"token_id", tokenID.String(),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncrementRewardFailures()
		}
	}
}
