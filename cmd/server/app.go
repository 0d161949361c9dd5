package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	credithandler "hashplanet/internal/credit/handler"
	creditmodels "hashplanet/internal/credit/models"
	creditservice "hashplanet/internal/credit/service"
	creditstore "hashplanet/internal/credit/store"
	jwttoken "hashplanet/internal/jwt_token"
	"hashplanet/internal/platform/config"
	platformmetrics "hashplanet/internal/platform/metrics"
	platformmw "hashplanet/internal/platform/middleware"
	"hashplanet/internal/platform/postgres"
	redisclient "hashplanet/internal/platform/redis"
	ratelimitmetrics "hashplanet/internal/ratelimit/metrics"
	ratelimitmw "hashplanet/internal/ratelimit/middleware"
	ratelimitmodels "hashplanet/internal/ratelimit/models"
	"hashplanet/internal/ratelimit/store/bucket"
	registryhandler "hashplanet/internal/registry/handler"
	registrymetrics "hashplanet/internal/registry/metrics"
	"hashplanet/internal/registry/models"
	"hashplanet/internal/registry/service"
	"hashplanet/internal/registry/store/ledger"
	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/audit"
	"hashplanet/pkg/platform/audit/publisher"
	"hashplanet/pkg/platform/audit/store/guarded"
	auditkafka "hashplanet/pkg/platform/audit/store/kafka"
	auditmemory "hashplanet/pkg/platform/audit/store/memory"
	auditpostgres "hashplanet/pkg/platform/audit/store/postgres"
	"hashplanet/pkg/platform/circuit"
	"hashplanet/pkg/platform/httputil"
	adminmw "hashplanet/pkg/platform/middleware/admin"
	authmw "hashplanet/pkg/platform/middleware/auth"
	"hashplanet/pkg/platform/middleware/metadata"
	"hashplanet/pkg/platform/middleware/request"
	"hashplanet/pkg/platform/middleware/requesttime"
)

// app holds the wired process: stores, services and their shutdown hooks.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	registry *prometheus.Registry

	db     *sql.DB
	redis  *redisclient.Client
	kafka  *kgo.Client
	audit  *publisher.Publisher
	health []func(context.Context) error

	// listable is set when the audit sink can serve per-entry history.
	listable bool

	registryService *service.Service
	creditService   *creditservice.Service
	tokens          *jwttoken.JWTService
	limiter         *ratelimitmw.Middleware
	trustedProxies  []netip.Prefix
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.log
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ledgerStore, creditStore, err := a.openStores(ctx)
	if err != nil {
		return err
	}

	auditStore, err := a.openAuditStore(ctx)
	if err != nil {
		return err
	}
	_, a.listable = auditStore.(publisher.Lister)
	a.audit = publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Kafka.AuditBuffer),
		publisher.WithLogger(log),
	)

	minter, err := id.ParsePrincipal(cfg.Credit.Minter)
	if err != nil {
		return fmt.Errorf("invalid CREDIT_MINTER: %w", err)
	}
	a.creditService, err = creditservice.New(creditStore, cfg.Credit.Name, cfg.Credit.Symbol, minter,
		creditservice.WithLogger(log))
	if err != nil {
		return err
	}

	policy, err := models.ParsePolicy(cfg.Registry.Policy)
	if err != nil {
		return err
	}
	sentinelPrincipal, err := id.ParsePrincipal(cfg.Registry.Sentinel)
	if err != nil {
		return fmt.Errorf("invalid REGISTRY_SENTINEL: %w", err)
	}
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(registrymetrics.New(a.registry)),
		service.WithAuditPublisher(a.audit),
		service.WithPolicy(policy),
		service.WithSentinel(sentinelPrincipal),
		service.WithMetadata(cfg.Registry.Name, cfg.Registry.Symbol),
	}
	if cfg.Credit.ClaimReward != "" {
		amount, err := creditmodels.ParseUnits(cfg.Credit.ClaimReward, a.creditService.Token().Decimals)
		if err != nil {
			return fmt.Errorf("invalid CLAIM_REWARD: %w", err)
		}
		if amount.Sign() > 0 {
			opts = append(opts, service.WithRewarder(creditservice.NewClaimReward(a.creditService, amount)))
		}
	}
	a.registryService, err = service.New(ctx, ledgerStore, opts...)
	if err != nil {
		return fmt.Errorf("bootstrap registry: %w", err)
	}

	a.tokens = jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	a.limiter = a.newLimiter()

	a.trustedProxies, err = metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	return nil
}

// newLimiter shares rate limit windows through Redis when the redis backend
// is active and keeps them per process otherwise.
func (a *app) newLimiter() *ratelimitmw.Middleware {
	var store ratelimitmw.BucketStore = bucket.NewInMemoryBucketStore()
	if a.redis != nil {
		store = bucket.NewRedis(a.redis.Client, bucket.WithRedisPrefix(a.cfg.Redis.Prefix))
	}
	rl := a.cfg.RateLimit
	return ratelimitmw.New(store, a.log,
		ratelimitmw.WithDisabled(!rl.Enabled),
		ratelimitmw.WithMetrics(ratelimitmetrics.New(a.registry)),
		ratelimitmw.WithLimit(ratelimitmodels.ClassRead, ratelimitmodels.Limit{Requests: rl.Read, Window: rl.Window}),
		ratelimitmw.WithLimit(ratelimitmodels.ClassWrite, ratelimitmodels.Limit{Requests: rl.Write, Window: rl.Window}),
	)
}

// openStores selects the ledger backend. The credit ledger shares Postgres
// when it is configured and otherwise stays in memory.
func (a *app) openStores(ctx context.Context) (service.Store, creditservice.Store, error) {
	switch a.cfg.Ledger.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, a.cfg.Ledger.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		a.db = db
		a.health = append(a.health, db.PingContext)

		ledgerStore := ledger.NewPostgres(db)
		if err := ledgerStore.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		creditStore := creditstore.NewPostgres(db)
		if err := creditStore.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return ledgerStore, creditStore, nil

	case config.BackendRedis:
		client, err := redisclient.New(ctx, a.cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		a.redis = client
		a.health = append(a.health, client.Health)
		return ledger.NewRedis(client.Client, ledger.WithRedisPrefix(a.cfg.Redis.Prefix)), creditstore.NewInMemory(), nil

	default:
		return ledger.NewInMemory(), creditstore.NewInMemory(), nil
	}
}

// openAuditStore keeps audit events next to the ledger when Postgres is
// configured. Kafka, when enabled, becomes the primary sink and the local
// store catches events while its breaker is open.
func (a *app) openAuditStore(ctx context.Context) (audit.Store, error) {
	var local audit.Store = auditmemory.NewInMemoryStore()
	if a.db != nil {
		pgStore := auditpostgres.New(a.db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		local = pgStore
	}
	if len(a.cfg.Kafka.Brokers) == 0 {
		return local, nil
	}
	client, err := auditkafka.NewClient(a.cfg.Kafka.Brokers)
	if err != nil {
		return nil, err
	}
	a.kafka = client
	a.health = append(a.health, client.Ping)
	if err := auditkafka.EnsureTopic(ctx, client, a.cfg.Kafka.AuditTopic, 3, 1); err != nil {
		return nil, err
	}
	return guarded.New(
		auditkafka.New(client, a.cfg.Kafka.AuditTopic),
		local,
		circuit.New("kafka-audit", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		a.log,
	), nil
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.WithTrustedProxies(a.trustedProxies))
	r.Use(platformmw.Observe(platformmetrics.New(a.registry), a.log))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	var historyOpts []registryhandler.Option
	if a.listable {
		historyOpts = append(historyOpts, registryhandler.WithHistory(a.audit))
	}
	registry := registryhandler.New(a.registryService, a.log, historyOpts...)
	credits := credithandler.New(a.creditService, a.log)
	r.Group(func(r chi.Router) {
		r.Use(a.limiter.RateLimit(ratelimitmodels.ClassRead))
		registry.Register(r)
		credits.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(a.tokens), a.log))
		r.Use(a.limiter.RateLimitAuthenticated(ratelimitmodels.ClassWrite))
		registry.RegisterAuthenticated(r)
		credits.RegisterAuthenticated(r)
	})

	if a.cfg.Auth.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireAdminToken(a.cfg.Auth.AdminToken, a.log))
			credits.RegisterAdmin(r)
		})
	}
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, check := range a.health {
		if err := check(r.Context()); err != nil {
			a.log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// close releases resources in reverse dependency order. The audit publisher
// drains first so queued events reach their sink.
func (a *app) close() {
	if a.audit != nil {
		a.audit.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("closing redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("closing postgres", "error", err)
		}
	}
}
