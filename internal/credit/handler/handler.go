package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hashplanet/internal/credit/models"
	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
	"hashplanet/pkg/platform/httputil"
	"hashplanet/pkg/requestcontext"
)

// Service defines the credit ledger operations exposed over HTTP.
type Service interface {
	Token() models.Token
	Minter() id.Principal
	Mint(ctx context.Context, caller, to id.Principal, amount *big.Int) error
	Transfer(ctx context.Context, caller, to id.Principal, amount *big.Int) error
	BalanceOf(ctx context.Context, holder id.Principal) (*big.Int, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
}

// Handler wires credit endpoints to the credit service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public credit endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/credits", h.HandleToken)
	r.Get("/credits/{principal}", h.HandleBalance)
}

// RegisterAuthenticated mounts caller-signed credit endpoints.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Post("/credits/transfer", h.HandleTransfer)
}

// RegisterAdmin mounts operator endpoints. Minting acts as the ledger minter.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/credits/mint", h.HandleMint)
}

// HandleToken handles GET /credits.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	supply, err := h.service.TotalSupply(r.Context())
	if err != nil {
		h.fail(w, r, "credit supply lookup failed", err)
		return
	}
	token := h.service.Token()
	httputil.WriteJSON(w, http.StatusOK, &TokenResponse{
		Name:        token.Name,
		Symbol:      token.Symbol,
		Decimals:    token.Decimals,
		TotalSupply: FromAmount(supply, token.Decimals),
	})
}

// HandleBalance handles GET /credits/{principal}.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := id.ParsePrincipal(chi.URLParam(r, "principal"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.service.BalanceOf(r.Context(), holder)
	if err != nil {
		h.fail(w, r, "credit balance lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &BalanceResponse{
		Holder:  holder.String(),
		Symbol:  h.service.Token().Symbol,
		Balance: FromAmount(balance, h.service.Token().Decimals),
	})
}

// HandleTransfer handles POST /credits/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller := requestcontext.Principal(ctx)
	if caller == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[AmountRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	amount, err := req.Amount(h.service.Token().Decimals)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Transfer(ctx, caller, req.Recipient(), amount); err != nil {
		h.logger.WarnContext(ctx, "credit transfer rejected",
			"request_id", requestID,
			"caller", caller,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.writeBalance(w, r, caller)
}

// HandleMint handles POST /admin/credits/mint.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[AmountRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	amount, err := req.Amount(h.service.Token().Decimals)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Mint(ctx, h.service.Minter(), req.Recipient(), amount); err != nil {
		h.fail(w, r, "credit mint failed", err)
		return
	}
	h.logger.InfoContext(ctx, "credit minted by operator",
		"log_type", "audit",
		"request_id", requestID,
		"to", req.Recipient(),
		"amount", req.Value,
	)
	h.writeBalance(w, r, req.Recipient())
}

func (h *Handler) writeBalance(w http.ResponseWriter, r *http.Request, holder id.Principal) {
	balance, err := h.service.BalanceOf(r.Context(), holder)
	if err != nil {
		h.fail(w, r, "credit balance lookup failed", err)
		return
	}
	token := h.service.Token()
	httputil.WriteJSON(w, http.StatusOK, &BalanceResponse{
		Holder:  holder.String(),
		Symbol:  token.Symbol,
		Balance: FromAmount(balance, token.Decimals),
	})
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
