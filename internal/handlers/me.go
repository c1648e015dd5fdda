package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/message"

	"github.com/optima-bank/loyalty/internal/platform/auth"
	"github.com/optima-bank/loyalty/internal/platform/httpx"
	"github.com/optima-bank/loyalty/internal/services"
)

// MeHandlers exposes the authenticated profile endpoint.
type MeHandlers struct {
	sessions services.SessionService
	authn    *auth.Authenticator
	printer  *message.Printer
}

// NewMeHandlers constructs the profile handlers.
func NewMeHandlers(sessions services.SessionService, authn *auth.Authenticator, printer *message.Printer) *MeHandlers {
	return &MeHandlers{sessions: sessions, authn: authn, printer: printer}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getProfile)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	token := bearerTokenFromContext(r)
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	session, err := h.sessions.Resolve(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionUnauthenticated):
			httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		case errors.Is(err, services.ErrSessionUnavailable):
			httpx.WriteError(ctx, w, httpx.NewError("identity_unavailable", "identity provider is unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("profile_error", "failed to load profile", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, buildSessionPayload(session, h.printer))
}
