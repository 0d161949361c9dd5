package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	jwttoken "hashplanet/internal/jwt_token"
	"hashplanet/internal/registry/codec"
	"hashplanet/internal/registry/handler"
	"hashplanet/internal/registry/service"
	"hashplanet/internal/registry/store/ledger"
	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/audit/publisher"
	"hashplanet/pkg/platform/audit/store/memory"
	authmw "hashplanet/pkg/platform/middleware/auth"
	"hashplanet/pkg/testutil"
)

// Drives the Alice/Bob walkthrough through the router with real bearer tokens.
func TestClaimFlowOverHTTP(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	events := publisher.NewPublisher(memory.NewInMemoryStore())
	svc, err := service.New(context.Background(), ledger.NewInMemory(),
		service.WithLogger(logger),
		service.WithAuditPublisher(events),
	)
	require.NoError(t, err)

	tokens := jwttoken.NewJWTService("flow-key", "hashplanet", "hashplanet-registry")
	h := handler.New(svc, logger, handler.WithHistory(events))
	r := chi.NewRouter()
	h.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(tokens), logger))
		h.RegisterAuthenticated(r)
	})

	bearer := func(t *testing.T, who string) string {
		tok, err := tokens.GenerateToken(id.Principal(who), time.Minute)
		require.NoError(t, err)
		return "Bearer " + tok
	}
	post := func(t *testing.T, who, path string, body any) int {
		req := testutil.NewJSONRequest(t, http.MethodPost, path, body)
		if who != "" {
			req.Header.Set("Authorization", bearer(t, who))
		}
		return testutil.DoRequest(r, req).Code
	}
	balance := func(t *testing.T, who string) int {
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/owners/"+who+"/balance"))
		testutil.AssertStatusOK(t, rr)
		return testutil.UnmarshalResponse[handler.BalanceResponse](t, rr).Balance
	}

	z := codec.MustDerive("z").String()

	testutil.Given(t, "a freshly bootstrapped registry", func(t *testing.T) {
		require.Equal(t, 32, balance(t, "registry"))

		testutil.When(t, "an anonymous caller claims", func(t *testing.T) {
			testutil.Then(t, "the request is unauthorized", func(t *testing.T) {
				require.Equal(t, http.StatusUnauthorized, post(t, "", "/claims", map[string]string{"uri": "z"}))
			})
		})

		testutil.When(t, "alice claims z by uri and bob tries the same", func(t *testing.T) {
			require.Equal(t, http.StatusOK, post(t, "alice", "/claims", map[string]string{"uri": "z"}))
			require.Equal(t, http.StatusConflict, post(t, "bob", "/tokens/"+z+"/claim", nil))

			testutil.Then(t, "alice holds it", func(t *testing.T) {
				require.Equal(t, 1, balance(t, "alice"))
				require.Equal(t, 0, balance(t, "bob"))
				require.Equal(t, 31, balance(t, "registry"))
			})
		})

		testutil.When(t, "bob renounces alice's entry", func(t *testing.T) {
			testutil.Then(t, "bob is not the owner", func(t *testing.T) {
				require.Equal(t, http.StatusForbidden, post(t, "bob", "/tokens/"+z+"/renounce", nil))
			})
		})

		testutil.When(t, "alice transfers to bob and bob renounces", func(t *testing.T) {
			require.Equal(t, http.StatusOK, post(t, "alice", "/tokens/"+z+"/transfer", map[string]string{"to": "bob"}))
			require.Equal(t, http.StatusOK, post(t, "bob", "/tokens/"+z+"/renounce", nil))

			testutil.Then(t, "the entry is back with the registry", func(t *testing.T) {
				require.Equal(t, 0, balance(t, "alice"))
				require.Equal(t, 0, balance(t, "bob"))
				require.Equal(t, 32, balance(t, "registry"))
			})

			testutil.Then(t, "the history records every transition in order", func(t *testing.T) {
				rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/tokens/"+z+"/history"))
				testutil.AssertStatusOK(t, rr)
				history := testutil.UnmarshalResponse[handler.HistoryResponse](t, rr)
				var kinds []string
				for _, e := range history.Events {
					kinds = append(kinds, e.Type)
				}
				require.Equal(t, []string{"genesis", "claimed", "transferred", "renounced"}, kinds)
			})
		})
	})
}
