package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/services"
)

type stubCartHandlerService struct {
	getFn func(ctx context.Context, key string) (domain.Cart, error)
}

func (s *stubCartHandlerService) Get(ctx context.Context, key string) (domain.Cart, error) {
	if s.getFn == nil {
		return domain.Cart{Key: key}, nil
	}
	return s.getFn(ctx, key)
}

func (s *stubCartHandlerService) AddItem(context.Context, string, domain.CartItem) (domain.Cart, error) {
	return domain.Cart{}, errors.New("unexpected AddItem call")
}

func (s *stubCartHandlerService) RemoveItem(context.Context, string, string) (domain.Cart, error) {
	return domain.Cart{}, errors.New("unexpected RemoveItem call")
}

func (s *stubCartHandlerService) UpdateQuantity(context.Context, string, string, int) (domain.Cart, error) {
	return domain.Cart{}, errors.New("unexpected UpdateQuantity call")
}

func (s *stubCartHandlerService) Clear(context.Context, string) (domain.Cart, error) {
	return domain.Cart{}, errors.New("unexpected Clear call")
}

func (s *stubCartHandlerService) TotalPoints(context.Context, string) (int64, error) {
	return 0, errors.New("unexpected TotalPoints call")
}

func newSessionRouter(sessions services.SessionService, carts services.CartService, uid string) chi.Router {
	var authn = newTestAuthenticator(uid)
	handler := NewSessionHandlers(sessions, carts, authn, NewPointsPrinter("en"), "dashboard")
	router := chi.NewRouter()
	router.Route("/session", handler.Routes)
	return router
}

func decodeBootstrap(t *testing.T, rr *httptest.ResponseRecorder) bootstrapResponse {
	t.Helper()
	var resp bootstrapResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse bootstrap response: %v", err)
	}
	return resp
}

func TestSessionBootstrapAnonymousProtectedPageRedirects(t *testing.T) {
	router := newSessionRouter(&stubSessionService{}, &stubCartHandlerService{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/session/bootstrap?page=/app/rewards", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeBootstrap(t, rr)
	if resp.Page != "rewards" {
		t.Fatalf("expected final segment as page, got %q", resp.Page)
	}
	if resp.Redirect != "signin?redirect=rewards" || resp.Reason != "login_redirect" {
		t.Fatalf("expected login redirect carrying the origin page, got %+v", resp)
	}
	if resp.Session.State != "anonymous" {
		t.Fatalf("expected anonymous state, got %q", resp.Session.State)
	}
}

func TestSessionBootstrapAnonymousAuthPageDoesNotRedirect(t *testing.T) {
	router := newSessionRouter(&stubSessionService{}, &stubCartHandlerService{}, "user-1")

	for _, page := range []string{"signin", "signup", "forgot-password"} {
		req := httptest.NewRequest(http.MethodGet, "/session/bootstrap?page="+page, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		resp := decodeBootstrap(t, rr)
		if resp.Redirect != "" {
			t.Fatalf("expected no redirect for %s, got %q", page, resp.Redirect)
		}
	}
}

func TestSessionBootstrapAuthenticatedAuthPageRedirectsHome(t *testing.T) {
	sessions := &stubSessionService{
		resolveFn: func(context.Context, string) (domain.Session, error) {
			return profileSession(), nil
		},
	}
	router := newSessionRouter(sessions, &stubCartHandlerService{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/session/bootstrap?page=signin", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	resp := decodeBootstrap(t, rr)
	if resp.Redirect != "dashboard" || resp.Reason != "already_authenticated" {
		t.Fatalf("expected home redirect, got %+v", resp)
	}
}

func TestSessionBootstrapDashboardIncludesBadge(t *testing.T) {
	sessions := &stubSessionService{
		resolveFn: func(context.Context, string) (domain.Session, error) {
			return profileSession(), nil
		},
	}
	carts := &stubCartHandlerService{
		getFn: func(_ context.Context, key string) (domain.Cart, error) {
			if key != "user-1" {
				return domain.Cart{}, errors.New("unexpected cart key " + key)
			}
			return domain.Cart{
				Key: key,
				Items: []domain.CartItem{
					{VoucherID: "v-1", Points: 100, Quantity: 2},
					{VoucherID: "v-2", Points: 50, Quantity: 1},
				},
			}, nil
		},
	}
	router := newSessionRouter(sessions, carts, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/session/bootstrap?page=dashboard", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	resp := decodeBootstrap(t, rr)
	if resp.Redirect != "" {
		t.Fatalf("expected no redirect, got %q", resp.Redirect)
	}
	badge, ok := resp.Data["cart_badge"].(map[string]any)
	if !ok {
		t.Fatalf("expected cart_badge in data, got %+v", resp.Data)
	}
	if badge["count"].(float64) != 3 {
		t.Fatalf("expected badge count 3, got %v", badge["count"])
	}
	if badge["visible"] != true {
		t.Fatalf("expected visible badge")
	}
}

func TestSessionBootstrapExpiredTokenDegradesToAnonymous(t *testing.T) {
	sessions := &stubSessionService{
		resolveFn: func(context.Context, string) (domain.Session, error) {
			return domain.Session{}, services.ErrSessionUnauthenticated
		},
	}
	router := newSessionRouter(sessions, &stubCartHandlerService{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/session/bootstrap?page=rewards", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	resp := decodeBootstrap(t, rr)
	if resp.Session.State != "anonymous" {
		t.Fatalf("expected anonymous fallback, got %q", resp.Session.State)
	}
	if resp.Redirect != "signin?redirect=rewards" {
		t.Fatalf("expected signin redirect, got %q", resp.Redirect)
	}
}

func TestSessionBootstrapDefaultsPageToHome(t *testing.T) {
	sessions := &stubSessionService{
		resolveFn: func(context.Context, string) (domain.Session, error) {
			return profileSession(), nil
		},
	}
	router := newSessionRouter(sessions, &stubCartHandlerService{}, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/session/bootstrap", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	resp := decodeBootstrap(t, rr)
	if resp.Page != "dashboard" {
		t.Fatalf("expected dashboard default, got %q", resp.Page)
	}
}
