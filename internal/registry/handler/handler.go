package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
	"hashplanet/pkg/platform/audit"
	"hashplanet/pkg/platform/httputil"
	"hashplanet/pkg/platform/middleware/metadata"
	"hashplanet/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Metadata() models.Metadata
	Entry(ctx context.Context, tokenID id.Identifier) (*models.Entry, error)
	EntryAtIndex(ctx context.Context, index int) (id.Identifier, error)
	BalanceOf(ctx context.Context, principal id.Principal) (int, error)
	TotalSupply(ctx context.Context) (int, error)
	List(ctx context.Context, offset, limit int) ([]models.Entry, error)
	Resolve(ctx context.Context, source string) (id.Identifier, bool, error)
	Claim(ctx context.Context, tokenID id.Identifier, caller id.Principal) (*models.Entry, error)
	ClaimByURI(ctx context.Context, source string, caller id.Principal) (*models.Entry, error)
	Renounce(ctx context.Context, tokenID id.Identifier, caller id.Principal) (*models.Entry, error)
	Transfer(ctx context.Context, tokenID id.Identifier, caller, to id.Principal) (*models.Entry, error)
}

// History returns the audit trail of one entry.
type History interface {
	List(ctx context.Context, tokenID id.Identifier) ([]audit.Event, error)
}

// Handler wires registry endpoints to the registry service.
type Handler struct {
	service Service
	history History
	logger  *slog.Logger
}

type Option func(*Handler)

// WithHistory enables GET /tokens/{id}/history.
func WithHistory(history History) Option {
	return func(h *Handler) {
		h.history = history
	}
}

// New constructs a registry handler with its dependencies.
func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the read-only registry endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/registry", h.HandleRegistry)
	r.Get("/tokens", h.HandleList)
	r.Get("/tokens/index/{index}", h.HandleEntryAtIndex)
	r.Get("/tokens/{id}", h.HandleEntry)
	if h.history != nil {
		r.Get("/tokens/{id}/history", h.HandleHistory)
	}
	r.Get("/resolve/{source}", h.HandleResolve)
	r.Get("/owners/{principal}/balance", h.HandleBalance)
}

// RegisterAuthenticated mounts the state-changing endpoints. The router is
// expected to carry the bearer auth middleware.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Post("/claims", h.HandleClaimByURI)
	r.Post("/tokens/{id}/claim", h.HandleClaim)
	r.Post("/tokens/{id}/renounce", h.HandleRenounce)
	r.Post("/tokens/{id}/transfer", h.HandleTransfer)
}

// HandleRegistry handles GET /registry.
func (h *Handler) HandleRegistry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	supply, err := h.service.TotalSupply(ctx)
	if err != nil {
		h.fail(w, r, "total supply lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMetadata(h.service.Metadata(), supply))
}

// HandleList handles GET /tokens?offset=&limit=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.List(r.Context(), offset, limit)
	if err != nil {
		h.fail(w, r, "list entries failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEntries(entries, h.service.Metadata().Sentinel, offset))
}

// HandleEntry handles GET /tokens/{id}.
func (h *Handler) HandleEntry(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Entry(r.Context(), tokenID)
	if err != nil {
		h.fail(w, r, "entry lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEntry(entry, h.service.Metadata().Sentinel))
}

// HandleHistory handles GET /tokens/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Entry(r.Context(), tokenID); err != nil {
		h.fail(w, r, "entry lookup failed", err)
		return
	}
	events, err := h.history.List(r.Context(), tokenID)
	if err != nil {
		h.fail(w, r, "history lookup failed", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read history"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEvents(tokenID, events))
}

// HandleEntryAtIndex handles GET /tokens/index/{index}.
func (h *Handler) HandleEntryAtIndex(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "index must be an integer"))
		return
	}
	tokenID, err := h.service.EntryAtIndex(r.Context(), index)
	if err != nil {
		h.fail(w, r, "index lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &IndexResponse{Index: index, TokenID: tokenID.String(), TokenIDHex: tokenID.Hex()})
}

// HandleResolve handles GET /resolve/{source}.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	tokenID, exists, err := h.service.Resolve(r.Context(), chi.URLParam(r, "source"))
	if err != nil {
		h.fail(w, r, "resolve failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ResolveResponse{TokenID: tokenID.String(), TokenIDHex: tokenID.Hex(), Exists: exists})
}

// HandleBalance handles GET /owners/{principal}/balance.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	principal, err := id.ParsePrincipal(chi.URLParam(r, "principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.service.BalanceOf(r.Context(), principal)
	if err != nil {
		h.fail(w, r, "balance lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &BalanceResponse{Owner: principal.String(), Balance: balance})
}

// HandleClaim handles POST /tokens/{id}/claim.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Claim(r.Context(), tokenID, caller)
	h.respondTransition(w, r, "claim", caller, entry, err)
}

// HandleClaimByURI handles POST /claims.
func (h *Handler) HandleClaimByURI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ClaimRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	entry, err := h.service.ClaimByURI(ctx, req.URI, caller)
	h.respondTransition(w, r, "claim_by_uri", caller, entry, err)
}

// HandleRenounce handles POST /tokens/{id}/renounce.
func (h *Handler) HandleRenounce(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Renounce(r.Context(), tokenID, caller)
	h.respondTransition(w, r, "renounce", caller, entry, err)
}

// HandleTransfer handles POST /tokens/{id}/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	entry, err := h.service.Transfer(ctx, tokenID, caller, req.Recipient())
	h.respondTransition(w, r, "transfer", caller, entry, err)
}

func (h *Handler) requireCaller(w http.ResponseWriter, r *http.Request) (id.Principal, bool) {
	caller := requestcontext.Principal(r.Context())
	if caller == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return caller, true
}

func (h *Handler) respondTransition(w http.ResponseWriter, r *http.Request, op string, caller id.Principal, entry *models.Entry, err error) {
	ctx := r.Context()
	if err != nil {
		h.logger.WarnContext(ctx, "registry transition rejected",
			"request_id", requestcontext.RequestID(ctx),
			"operation", op,
			"caller", caller,
			"client_ip", metadata.GetClientIP(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "registry transition applied",
		"request_id", requestcontext.RequestID(ctx),
		"operation", op,
		"caller", caller,
		"client_ip", metadata.GetClientIP(ctx),
		"token_id", entry.ID.Hex(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromEntry(entry, h.service.Metadata().Sentinel))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func parseTokenID(w http.ResponseWriter, r *http.Request) (id.Identifier, bool) {
	tokenID, err := id.ParseIdentifier(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.Identifier{}, false
	}
	return tokenID, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, key+" must be a non-negative integer")
	}
	return n, nil
}
