package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/message"

	"github.com/optima-bank/loyalty/internal/platform/auth"
	"github.com/optima-bank/loyalty/internal/platform/httpx"
	"github.com/optima-bank/loyalty/internal/services"

	domain "github.com/optima-bank/loyalty/internal/domain"
)

// SessionHandlers serves the per-page session bootstrap endpoint. Each page
// load asks the server for the current session state, the redirect to apply
// before rendering, and any page-specific bootstrap data.
type SessionHandlers struct {
	sessions  services.SessionService
	carts     services.CartService
	authn     *auth.Authenticator
	printer   *message.Printer
	homeRoute string

	initializers map[string]pageInitializer
}

type pageInitializer func(r *http.Request, session domain.Session, cartKey string) map[string]any

// unauthenticatedPages may be visited without a session; every other page
// redirects anonymous visitors to sign-in.
var unauthenticatedPages = map[string]bool{
	"signin":          true,
	"signup":          true,
	"forgot-password": true,
}

// NewSessionHandlers constructs the bootstrap handlers.
func NewSessionHandlers(sessions services.SessionService, carts services.CartService, authn *auth.Authenticator, printer *message.Printer, homeRoute string) *SessionHandlers {
	h := &SessionHandlers{
		sessions:  sessions,
		carts:     carts,
		authn:     authn,
		printer:   printer,
		homeRoute: strings.TrimSpace(homeRoute),
	}
	if h.homeRoute == "" {
		h.homeRoute = "dashboard"
	}
	h.initializers = map[string]pageInitializer{
		"dashboard": h.dashboardData,
		"cart":      h.cartData,
	}
	return h
}

// Routes wires the /session endpoints onto the provided router.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalAuth())
	}
	r.Get("/bootstrap", h.bootstrap)
}

type bootstrapResponse struct {
	Page     string         `json:"page"`
	Session  sessionPayload `json:"session"`
	Redirect string         `json:"redirect,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

func (h *SessionHandlers) bootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	page := pageFromRequest(r, h.homeRoute)

	var session domain.Session
	if token := bearerTokenFromContext(r); token != "" {
		resolved, err := h.sessions.Resolve(ctx, token)
		if err == nil {
			session = resolved
		}
		// A stale or revoked token degrades to an anonymous bootstrap.
	}

	resp := bootstrapResponse{
		Page:    page,
		Session: buildSessionPayload(session, h.printer),
	}

	switch {
	case session.Authenticated() && unauthenticatedPages[page]:
		resp.Redirect = h.homeRoute
		resp.Reason = "already_authenticated"
	case !session.Authenticated() && !unauthenticatedPages[page]:
		resp.Redirect = loginRedirect(page)
		resp.Reason = "login_redirect"
	default:
		if initializer, ok := h.initializers[page]; ok {
			resp.Data = initializer(r, session, h.bootstrapCartKey(r, session))
		}
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *SessionHandlers) bootstrapCartKey(r *http.Request, session domain.Session) string {
	if session.Authenticated() {
		return session.User.ID
	}
	return resolveCartKey(r)
}

func (h *SessionHandlers) dashboardData(r *http.Request, session domain.Session, cartKey string) map[string]any {
	data := map[string]any{}
	if session.Profile != nil {
		data["greeting_name"] = session.Profile.FullName
	}
	h.attachCartBadge(r, cartKey, data)
	return data
}

func (h *SessionHandlers) cartData(r *http.Request, _ domain.Session, cartKey string) map[string]any {
	data := map[string]any{}
	h.attachCartBadge(r, cartKey, data)
	return data
}

func (h *SessionHandlers) attachCartBadge(r *http.Request, cartKey string, data map[string]any) {
	if h.carts == nil || strings.TrimSpace(cartKey) == "" {
		return
	}
	cart, err := h.carts.Get(r.Context(), cartKey)
	if err != nil {
		return
	}
	count := cart.ItemCount()
	data["cart_badge"] = map[string]any{
		"count":   count,
		"visible": count > 0,
	}
}

// pageFromRequest reduces the requested page path to its final segment, so
// "/app/rewards/" and "rewards" name the same page.
func pageFromRequest(r *http.Request, fallback string) string {
	return normalizePage(r.URL.Query().Get("page"), fallback)
}

func normalizePage(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return fallback
	}
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		raw = raw[idx+1:]
	}
	return strings.ToLower(raw)
}

// loginRedirect carries the page the visitor asked for through the sign-in
// round trip, so a successful login can return them there.
func loginRedirect(page string) string {
	if page == "" {
		return "signin"
	}
	return "signin?redirect=" + url.QueryEscape(page)
}

// postLoginRedirect honors the redirect carried by the sign-in round trip,
// falling back to the service-chosen route. Entry pages never become a
// post-login destination.
func postLoginRedirect(r *http.Request, fallback string) string {
	requested := normalizePage(r.URL.Query().Get("redirect"), "")
	if requested == "" || unauthenticatedPages[requested] {
		return fallback
	}
	return requested
}
