package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"hashplanet/internal/ratelimit/metrics"
	"hashplanet/internal/ratelimit/models"
	"hashplanet/pkg/platform/httputil"
	auth "hashplanet/pkg/platform/middleware/auth"
	metadata "hashplanet/pkg/platform/middleware/metadata"
	"hashplanet/pkg/requestcontext"
)

// BucketStore is satisfied by the in-memory and redis sliding window stores.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

const (
	scopeIP        = "ip"
	scopePrincipal = "principal"
)

type Middleware struct {
	store    BucketStore
	limits   map[models.EndpointClass]models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithLimit sets the limit for one endpoint class.
func WithLimit(class models.EndpointClass, limit models.Limit) Option {
	return func(m *Middleware) {
		m.limits[class] = limit
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(store BucketStore, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store: store,
		limits: map[models.EndpointClass]models.Limit{
			models.ClassRead:  {Requests: 100, Window: time.Minute},
			models.ClassWrite: {Requests: 30, Window: time.Minute},
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits requests per client IP.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return m.limit(class, func(r *http.Request) (string, string) {
		return scopeIP, metadata.GetClientIP(r.Context())
	})
}

// RateLimitAuthenticated limits requests per authenticated principal and
// falls back to the client IP when no principal is present. It must run
// after auth.RequireAuth.
func (m *Middleware) RateLimitAuthenticated(class models.EndpointClass) func(http.Handler) http.Handler {
	return m.limit(class, func(r *http.Request) (string, string) {
		if p := auth.GetPrincipal(r.Context()); p != "" {
			return scopePrincipal, p.String()
		}
		return scopeIP, metadata.GetClientIP(r.Context())
	})
}

func (m *Middleware) limit(class models.EndpointClass, keyFor func(*http.Request) (string, string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			limit, ok := m.limits[class]
			if !ok || limit.Requests <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			scope, subject := keyFor(r)
			key := string(class) + ":" + scope + ":" + subject
			result, err := m.store.Allow(ctx, key, limit.Requests, limit.Window)
			if err != nil {
				m.metrics.IncrementStoreErrors()
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"request_id", requestcontext.RequestID(ctx),
					"class", class,
					"scope", scope,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				m.metrics.IncrementRejected(class, scope)
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"class", class,
					"scope", scope,
					"retry_after", result.RetryAfter,
				)
				writeRateLimitExceeded(w, scope, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, scope string, result *models.RateLimitResult) {
	msg := "Too many requests from this IP address. Please try again later."
	if scope == scopePrincipal {
		msg = "You have exceeded your request quota for this operation."
	}
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    msg,
		RetryAfter: result.RetryAfter,
	})
}
