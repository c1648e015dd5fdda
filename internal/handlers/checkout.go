package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/message"

	"github.com/optima-bank/loyalty/internal/platform/auth"
	"github.com/optima-bank/loyalty/internal/platform/httpx"
	"github.com/optima-bank/loyalty/internal/services"
)

// CheckoutHandlers exposes the points redemption endpoint.
type CheckoutHandlers struct {
	redemptions services.RedemptionService
	sessions    services.SessionService
	authn       *auth.Authenticator
	printer     *message.Printer
	homeRoute   string
}

// NewCheckoutHandlers constructs the redemption handlers.
func NewCheckoutHandlers(redemptions services.RedemptionService, sessions services.SessionService, authn *auth.Authenticator, printer *message.Printer, homeRoute string) *CheckoutHandlers {
	if homeRoute == "" {
		homeRoute = "dashboard"
	}
	return &CheckoutHandlers{
		redemptions: redemptions,
		sessions:    sessions,
		authn:       authn,
		printer:     printer,
		homeRoute:   homeRoute,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/redeem", h.redeem)
}

type redeemResponse struct {
	Reference          string `json:"reference"`
	TotalPoints        int64  `json:"total_points"`
	RemainingPoints    int64  `json:"remaining_points"`
	FormattedRemaining string `json:"formatted_remaining"`
	Redirect           string `json:"redirect"`
}

func (h *CheckoutHandlers) redeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.redemptions == nil || h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("redemption_service_unavailable", "redemption service is unavailable", http.StatusServiceUnavailable))
		return
	}

	token := bearerTokenFromContext(r)
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	session, err := h.sessions.Resolve(ctx, token)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "session could not be resolved", http.StatusUnauthorized))
		return
	}

	outcome, err := h.redemptions.Redeem(ctx, session, resolveCartKey(r))
	if err != nil {
		h.writeRedeemError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, redeemResponse{
		Reference:          outcome.Redemption.Reference,
		TotalPoints:        outcome.Redemption.TotalPoints,
		RemainingPoints:    outcome.RemainingPoints,
		FormattedRemaining: formatPoints(h.printer, outcome.RemainingPoints),
		Redirect:           h.homeRoute,
	})
}

func (h *CheckoutHandlers) writeRedeemError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrRedemptionUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrRedemptionEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "add vouchers to the cart before redeeming", http.StatusBadRequest))
	case errors.Is(err, services.ErrRedemptionInsufficientPoints):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_points", "not enough points for this redemption", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrRedemptionRejected):
		httpx.WriteError(ctx, w, httpx.NewError("redemption_rejected", "the redemption was declined", http.StatusConflict))
	case errors.Is(err, services.ErrRedemptionUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("redemption_unavailable", "redemption service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("redemption_error", "redemption failed", http.StatusInternalServerError))
	}
}
