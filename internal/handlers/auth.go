package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/message"

	"github.com/optima-bank/loyalty/internal/platform/auth"
	"github.com/optima-bank/loyalty/internal/platform/httpx"
	"github.com/optima-bank/loyalty/internal/services"
)

// AuthHandlers exposes the credential endpoints backed by the session service.
type AuthHandlers struct {
	sessions services.SessionService
	authn    *auth.Authenticator
	printer  *message.Printer
}

const maxAuthBodySize = 8 * 1024

// NewAuthHandlers constructs handlers for sign-in, sign-up, sign-out and
// password recovery.
func NewAuthHandlers(sessions services.SessionService, authn *auth.Authenticator, printer *message.Printer) *AuthHandlers {
	return &AuthHandlers{sessions: sessions, authn: authn, printer: printer}
}

// Routes wires the /auth endpoints onto the provided router.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/signin", h.signIn)
	r.Post("/signup", h.signUp)
	r.Post("/recover", h.recoverPassword)
	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireAuth())
		}
		protected.Post("/signout", h.signOut)
	})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type recoverRequest struct {
	Email string `json:"email"`
}

type authResponse struct {
	Redirect string          `json:"redirect"`
	Session  *sessionPayload `json:"session,omitempty"`
	Tokens   *tokensPayload  `json:"tokens,omitempty"`
}

type tokensPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

func (h *AuthHandlers) signIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req signInRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	result, err := h.sessions.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		h.writeAuthError(ctx, w, err)
		return
	}

	session := buildSessionPayload(result.Session, h.printer)
	writeJSONResponse(w, http.StatusOK, authResponse{
		Redirect: postLoginRedirect(r, result.Redirect),
		Session:  &session,
		Tokens: &tokensPayload{
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
			ExpiresIn:    result.Tokens.ExpiresIn,
			TokenType:    result.Tokens.TokenType,
		},
	})
}

func (h *AuthHandlers) signUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req signUpRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	result, err := h.sessions.SignUp(ctx, req.Email, req.Password, req.FullName)
	if err != nil {
		h.writeAuthError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, authResponse{Redirect: result.Redirect})
}

func (h *AuthHandlers) signOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	token := bearerTokenFromContext(r)
	if strings.TrimSpace(token) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	result, err := h.sessions.SignOut(ctx, token, resolveCartKey(r))
	if err != nil {
		h.writeAuthError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, authResponse{Redirect: result.Redirect})
}

func (h *AuthHandlers) recoverPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_service_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req recoverRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	result, err := h.sessions.ResetPassword(ctx, req.Email)
	if err != nil {
		h.writeAuthError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, authResponse{Redirect: result.Redirect})
}

func (h *AuthHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := readLimitedBody(r, maxAuthBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *AuthHandlers) writeAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrSessionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSessionInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "email or password is incorrect", http.StatusUnauthorized))
	case errors.Is(err, services.ErrSessionEmailTaken):
		httpx.WriteError(ctx, w, httpx.NewError("email_taken", "an account with this email already exists", http.StatusConflict))
	case errors.Is(err, services.ErrSessionUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrSessionUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("identity_unavailable", "identity provider is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("auth_error", "authentication failed", http.StatusInternalServerError))
	}
}
