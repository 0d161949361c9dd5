// Package service is the claim/renounce state machine over the ownership
// ledger. It validates callers and sources, drives the store's atomic
// primitives, and translates their failures into registry error codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"hashplanet/internal/registry/genesis"
	"hashplanet/internal/registry/metrics"
	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
	"hashplanet/pkg/platform/audit"
	"hashplanet/pkg/platform/sentinel"
)

// Defaults for a registry built without metadata options.
const (
	DefaultName     = "Geohash"
	DefaultSymbol   = "GEO"
	DefaultSentinel = id.Principal("registry")
)

const tracerName = "hashplanet/internal/registry/service"

// Service owns a single registry. It holds no lock of its own: every state
// change is a single compare-and-swap or registration in the store.
type Service struct {
	store          Store
	meta           models.Metadata
	seeds          []models.Seed
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	rewarder       Rewarder
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithRewarder(r Rewarder) Option {
	return func(s *Service) {
		s.rewarder = r
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithPolicy fixes how ClaimByURI treats unregistered sources.
func WithPolicy(p models.Policy) Option {
	return func(s *Service) {
		s.meta.Policy = p
	}
}

// WithSentinel sets the principal that renders the unclaimed pool.
func WithSentinel(p id.Principal) Option {
	return func(s *Service) {
		s.meta.Sentinel = p
	}
}

// WithMetadata sets the registry's display name and symbol.
func WithMetadata(name, symbol string) Option {
	return func(s *Service) {
		if name != "" {
			s.meta.Name = name
		}
		if symbol != "" {
			s.meta.Symbol = symbol
		}
	}
}

// WithGenesis replaces the default 32-entry genesis.
func WithGenesis(seeds []models.Seed) Option {
	return func(s *Service) {
		s.seeds = seeds
	}
}

// New configures a registry and runs genesis against store. It returns only
// once every seed is in the ledger; a ledger that already holds a different
// prefix is rejected with invalid_genesis.
func New(ctx context.Context, store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}

	svc := &Service{
		store: store,
		meta: models.Metadata{
			Name:     DefaultName,
			Symbol:   DefaultSymbol,
			Policy:   models.PolicyGenesisOnly,
			Sentinel: DefaultSentinel,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.tracer == nil {
		svc.tracer = otel.Tracer(tracerName)
	}
	if svc.seeds == nil {
		svc.seeds = genesis.Default()
	}

	policy, err := models.ParsePolicy(string(svc.meta.Policy))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid registry policy")
	}
	svc.meta.Policy = policy
	if _, err := id.ParsePrincipal(string(svc.meta.Sentinel)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid sentinel principal")
	}
	if len(svc.seeds) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidGenesis, "genesis must contain at least one source")
	}

	if err := svc.runGenesis(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) runGenesis(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "Genesis")
	defer func() { endSpan(span, err) }()

	before, err := s.store.TotalSupply(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger supply")
	}
	if err := s.store.Bootstrap(ctx, s.seeds); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInvalidGenesis, "ledger does not match the configured genesis")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to bootstrap ledger")
	}

	if before == 0 {
		for _, seed := range s.seeds {
			s.emit(ctx, audit.Event{
				Type:    audit.EventGenesis,
				TokenID: seed.ID,
				Source:  seed.Source,
				Index:   seed.Index,
				To:      s.meta.Sentinel.String(),
			})
		}
	}
	s.logger.InfoContext(ctx, "registry genesis complete",
		"name", s.meta.Name,
		"policy", s.meta.Policy,
		"genesis_size", len(s.seeds),
		"fresh", before == 0,
	)
	s.refreshSupply(ctx)
	return nil
}

// Metadata describes this registry.
func (s *Service) Metadata() models.Metadata {
	return s.meta
}
