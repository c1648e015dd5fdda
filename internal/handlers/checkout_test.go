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

type stubRedemptionHandlerService struct {
	redeemFn func(ctx context.Context, session domain.Session, cartKey string) (services.RedemptionOutcome, error)
}

func (s *stubRedemptionHandlerService) Redeem(ctx context.Context, session domain.Session, cartKey string) (services.RedemptionOutcome, error) {
	if s.redeemFn == nil {
		return services.RedemptionOutcome{}, errors.New("unexpected Redeem call")
	}
	return s.redeemFn(ctx, session, cartKey)
}

func newCheckoutRouter(redemptions services.RedemptionService, sessions services.SessionService) chi.Router {
	handler := NewCheckoutHandlers(redemptions, sessions, newTestAuthenticator("user-1"), NewPointsPrinter("en"), "dashboard")
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)
	return router
}

func TestCheckoutHandlersRedeemSuccess(t *testing.T) {
	sessions := &stubSessionService{
		resolveFn: func(context.Context, string) (domain.Session, error) {
			return profileSession(), nil
		},
	}
	redemptions := &stubRedemptionHandlerService{
		redeemFn: func(_ context.Context, session domain.Session, cartKey string) (services.RedemptionOutcome, error) {
			if session.User.ID != "user-1" || cartKey != "user-1" {
				t.Fatalf("unexpected redeem args %q %q", session.User.ID, cartKey)
			}
			return services.RedemptionOutcome{
				Redemption:      domain.Redemption{Reference: "red-1", TotalPoints: 400},
				RemainingPoints: 600,
			}, nil
		},
	}
	router := newCheckoutRouter(redemptions, sessions)

	req := httptest.NewRequest(http.MethodPost, "/checkout/redeem", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp redeemResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Reference != "red-1" || resp.RemainingPoints != 600 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Redirect != "dashboard" {
		t.Fatalf("expected dashboard redirect, got %q", resp.Redirect)
	}
}

func TestCheckoutHandlersRedeemRequiresAuth(t *testing.T) {
	router := newCheckoutRouter(&stubRedemptionHandlerService{}, &stubSessionService{})

	req := httptest.NewRequest(http.MethodPost, "/checkout/redeem", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", rr.Code)
	}
}

func TestCheckoutHandlersRedeemEmptyCart(t *testing.T) {
	sessions := &stubSessionService{
		resolveFn: func(context.Context, string) (domain.Session, error) {
			return profileSession(), nil
		},
	}
	redemptions := &stubRedemptionHandlerService{
		redeemFn: func(context.Context, domain.Session, string) (services.RedemptionOutcome, error) {
			return services.RedemptionOutcome{}, services.ErrRedemptionEmptyCart
		},
	}
	router := newCheckoutRouter(redemptions, sessions)

	req := httptest.NewRequest(http.MethodPost, "/checkout/redeem", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", rr.Code)
	}
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to parse error envelope: %v", err)
	}
	if envelope.Error != "cart_empty" {
		t.Fatalf("expected cart_empty code, got %q", envelope.Error)
	}
}

func TestCheckoutHandlersRedeemInsufficientPoints(t *testing.T) {
	sessions := &stubSessionService{
		resolveFn: func(context.Context, string) (domain.Session, error) {
			return profileSession(), nil
		},
	}
	redemptions := &stubRedemptionHandlerService{
		redeemFn: func(context.Context, domain.Session, string) (services.RedemptionOutcome, error) {
			return services.RedemptionOutcome{}, services.ErrRedemptionInsufficientPoints
		},
	}
	router := newCheckoutRouter(redemptions, sessions)

	req := httptest.NewRequest(http.MethodPost, "/checkout/redeem", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestCheckoutHandlersRedeemRejected(t *testing.T) {
	sessions := &stubSessionService{
		resolveFn: func(context.Context, string) (domain.Session, error) {
			return profileSession(), nil
		},
	}
	redemptions := &stubRedemptionHandlerService{
		redeemFn: func(context.Context, domain.Session, string) (services.RedemptionOutcome, error) {
			return services.RedemptionOutcome{}, services.ErrRedemptionRejected
		},
	}
	router := newCheckoutRouter(redemptions, sessions)

	req := httptest.NewRequest(http.MethodPost, "/checkout/redeem", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}
