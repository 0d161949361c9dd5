package testutil

import (
	"net/http"

	id "hashplanet/pkg/domain"
	"hashplanet/pkg/requestcontext"
)

// WithPrincipal stands in for the auth middleware on handler tests.
func WithPrincipal(req *http.Request, principal id.Principal) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), principal))
}
