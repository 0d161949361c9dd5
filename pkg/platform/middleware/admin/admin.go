package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "hashplanet/pkg/domain-errors"
	"hashplanet/pkg/platform/httputil"
	request "hashplanet/pkg/platform/middleware/request"
)

// HeaderAdminToken carries the operator token for administrative routes.
const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken guards operator routes with a shared secret. An empty
// expected token rejects everything.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderAdminToken)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
