package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hashplanet/internal/ratelimit/metrics"
	"hashplanet/internal/ratelimit/models"
	"hashplanet/internal/ratelimit/store/bucket"
	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/middleware/metadata"
	"hashplanet/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.RateLimitResult, error) {
	return nil, errors.New("store down")
}

func newTestMiddleware(store BucketStore, opts ...Option) (*Middleware, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	opts = append([]Option{
		WithLimit(models.ClassWrite, models.Limit{Requests: 2, Window: time.Minute}),
		WithMetrics(m),
	}, opts...)
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...), m
}

func serve(h http.Handler, ip, principal string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/claims", nil)
	ctx := metadata.WithClientIP(req.Context(), ip)
	if principal != "" {
		ctx = requestcontext.WithPrincipal(ctx, id.Principal(principal))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(ctx))
	return rr
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestRateLimitAuthenticatedKeysByPrincipal(t *testing.T) {
	mw, m := newTestMiddleware(bucket.NewInMemoryBucketStore())
	h := mw.RateLimitAuthenticated(models.ClassWrite)(okHandler)

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1", "alice").Code)
	rr := serve(h, "10.0.0.2", "alice")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = serve(h, "10.0.0.3", "alice")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Contains(t, rr.Body.String(), `"error":"rate_limit_exceeded"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("write", "principal")))

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.3", "bob").Code)
}

func TestRateLimitKeysByIP(t *testing.T) {
	mw, m := newTestMiddleware(bucket.NewInMemoryBucketStore())
	h := mw.RateLimit(models.ClassWrite)(okHandler)

	serve(h, "10.0.0.1", "")
	serve(h, "10.0.0.1", "")
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.9", "").Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("write", "ip")))
}

func TestStoreErrorsFailOpen(t *testing.T) {
	mw, m := newTestMiddleware(failingStore{})
	h := mw.RateLimit(models.ClassWrite)(okHandler)

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1", "").Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors))
}

func TestDisabledAndUnlimitedClassesPassThrough(t *testing.T) {
	mw, _ := newTestMiddleware(failingStore{}, WithDisabled(true))
	assert.Equal(t, http.StatusOK, serve(mw.RateLimit(models.ClassWrite)(okHandler), "10.0.0.1", "").Code)

	mw, _ = newTestMiddleware(failingStore{}, WithLimit(models.ClassRead, models.Limit{}))
	rr := serve(mw.RateLimit(models.ClassRead)(okHandler), "10.0.0.1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
}
