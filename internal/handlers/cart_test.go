package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/repositories"
	"github.com/optima-bank/loyalty/internal/services"
)

type recordingCartService struct {
	stubCartHandlerService
	addFn    func(ctx context.Context, key string, item domain.CartItem) (domain.Cart, error)
	updateFn func(ctx context.Context, key, voucherID string, quantity int) (domain.Cart, error)
	removeFn func(ctx context.Context, key, voucherID string) (domain.Cart, error)
	clearFn  func(ctx context.Context, key string) (domain.Cart, error)
}

func (s *recordingCartService) AddItem(ctx context.Context, key string, item domain.CartItem) (domain.Cart, error) {
	if s.addFn == nil {
		return domain.Cart{}, errors.New("unexpected AddItem call")
	}
	return s.addFn(ctx, key, item)
}

func (s *recordingCartService) UpdateQuantity(ctx context.Context, key, voucherID string, quantity int) (domain.Cart, error) {
	if s.updateFn == nil {
		return domain.Cart{}, errors.New("unexpected UpdateQuantity call")
	}
	return s.updateFn(ctx, key, voucherID, quantity)
}

func (s *recordingCartService) RemoveItem(ctx context.Context, key, voucherID string) (domain.Cart, error) {
	if s.removeFn == nil {
		return domain.Cart{}, errors.New("unexpected RemoveItem call")
	}
	return s.removeFn(ctx, key, voucherID)
}

func (s *recordingCartService) Clear(ctx context.Context, key string) (domain.Cart, error) {
	if s.clearFn == nil {
		return domain.Cart{}, errors.New("unexpected Clear call")
	}
	return s.clearFn(ctx, key)
}

type stubCatalogHandlerService struct {
	getFn  func(ctx context.Context, voucherID string) (domain.Voucher, error)
	listFn func(ctx context.Context, filter repositories.VoucherFilter) ([]domain.Voucher, error)
	catsFn func(ctx context.Context) ([]domain.VoucherCategory, error)
}

func (s *stubCatalogHandlerService) ListVouchers(ctx context.Context, filter repositories.VoucherFilter) ([]domain.Voucher, error) {
	if s.listFn == nil {
		return nil, errors.New("unexpected ListVouchers call")
	}
	return s.listFn(ctx, filter)
}

func (s *stubCatalogHandlerService) GetVoucher(ctx context.Context, voucherID string) (domain.Voucher, error) {
	if s.getFn == nil {
		return domain.Voucher{}, errors.New("unexpected GetVoucher call")
	}
	return s.getFn(ctx, voucherID)
}

func (s *stubCatalogHandlerService) ListCategories(ctx context.Context) ([]domain.VoucherCategory, error) {
	if s.catsFn == nil {
		return nil, errors.New("unexpected ListCategories call")
	}
	return s.catsFn(ctx)
}

func newCartRouter(carts services.CartService, catalog services.CatalogService, sessions services.SessionService) chi.Router {
	handler := NewCartHandlers(carts, catalog, sessions, newTestAuthenticator("user-1"), NewPointsPrinter("en"))
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)
	return router
}

func decodeCart(t *testing.T, rr *httptest.ResponseRecorder) cartResponse {
	t.Helper()
	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse cart response: %v", err)
	}
	return resp
}

func TestCartHandlersRequiresKey(t *testing.T) {
	router := newCartRouter(&recordingCartService{}, &stubCatalogHandlerService{}, &stubSessionService{})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without identity or client key, got %d", rr.Code)
	}
}

func TestCartHandlersGetAnonymousWithClientKey(t *testing.T) {
	carts := &recordingCartService{}
	carts.getFn = func(_ context.Context, key string) (domain.Cart, error) {
		if key != "device-9" {
			t.Fatalf("expected client key, got %q", key)
		}
		return domain.Cart{Key: key}, nil
	}
	router := newCartRouter(carts, &stubCatalogHandlerService{}, &stubSessionService{})

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("X-Client-ID", "device-9")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeCart(t, rr)
	if resp.Badge.Visible {
		t.Fatalf("expected hidden badge for empty cart")
	}
	if resp.CheckoutEnabled {
		t.Fatalf("expected checkout disabled without a session")
	}
}

func TestCartHandlersAddItemUsesCatalogSnapshot(t *testing.T) {
	catalog := &stubCatalogHandlerService{
		getFn: func(_ context.Context, voucherID string) (domain.Voucher, error) {
			if voucherID != "v-1" {
				t.Fatalf("unexpected voucher id %q", voucherID)
			}
			return domain.Voucher{ID: "v-1", Title: "Coffee", Points: 150, Active: true}, nil
		},
	}
	carts := &recordingCartService{}
	carts.addFn = func(_ context.Context, key string, item domain.CartItem) (domain.Cart, error) {
		if item.Title != "Coffee" || item.Points != 150 {
			t.Fatalf("expected catalog snapshot on item, got %+v", item)
		}
		return domain.Cart{Key: key, Items: []domain.CartItem{{VoucherID: "v-1", Title: "Coffee", Points: 150, Quantity: 1}}}, nil
	}
	sessions := &stubSessionService{
		resolveFn: func(context.Context, string) (domain.Session, error) {
			return profileSession(), nil
		},
	}
	router := newCartRouter(carts, catalog, sessions)

	body := strings.NewReader(`{"voucher_id":"v-1","quantity":1}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", body)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeCart(t, rr)
	if resp.Badge.Count != 1 || !resp.Badge.Visible {
		t.Fatalf("unexpected badge %+v", resp.Badge)
	}
	if resp.Footer.Balance != 1000 || resp.Footer.Required != 150 || resp.Footer.Remaining != 850 {
		t.Fatalf("unexpected footer %+v", resp.Footer)
	}
	if resp.Footer.FormattedBalance != "1,000" {
		t.Fatalf("expected grouped balance, got %q", resp.Footer.FormattedBalance)
	}
	if !resp.CheckoutEnabled {
		t.Fatalf("expected checkout enabled with sufficient balance")
	}
}

func TestCartHandlersAddItemUnknownVoucher(t *testing.T) {
	catalog := &stubCatalogHandlerService{
		getFn: func(context.Context, string) (domain.Voucher, error) {
			return domain.Voucher{}, services.ErrCatalogVoucherNotFound
		},
	}
	router := newCartRouter(&recordingCartService{}, catalog, &stubSessionService{})

	body := strings.NewReader(`{"voucher_id":"v-404"}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/items", body)
	req.Header.Set("X-Client-ID", "device-9")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCartHandlersCheckoutDisabledWhenBalanceShort(t *testing.T) {
	carts := &recordingCartService{}
	carts.getFn = func(_ context.Context, key string) (domain.Cart, error) {
		return domain.Cart{Key: key, Items: []domain.CartItem{{VoucherID: "v-1", Points: 900, Quantity: 2}}}, nil
	}
	sessions := &stubSessionService{
		resolveFn: func(context.Context, string) (domain.Session, error) {
			return profileSession(), nil
		},
	}
	router := newCartRouter(carts, &stubCatalogHandlerService{}, sessions)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	resp := decodeCart(t, rr)
	if resp.CheckoutEnabled {
		t.Fatalf("expected checkout disabled when required exceeds balance")
	}
	if resp.Footer.Remaining != 1000-1800 {
		t.Fatalf("expected negative remaining, got %d", resp.Footer.Remaining)
	}
}

func TestCartHandlersUpdateQuantity(t *testing.T) {
	carts := &recordingCartService{}
	carts.updateFn = func(_ context.Context, key, voucherID string, quantity int) (domain.Cart, error) {
		if voucherID != "v-1" || quantity != 3 {
			t.Fatalf("unexpected update %q %d", voucherID, quantity)
		}
		return domain.Cart{Key: key, Items: []domain.CartItem{{VoucherID: "v-1", Points: 100, Quantity: 3}}}, nil
	}
	router := newCartRouter(carts, &stubCatalogHandlerService{}, &stubSessionService{})

	body := strings.NewReader(`{"quantity":3}`)
	req := httptest.NewRequest(http.MethodPatch, "/cart/items/v-1", body)
	req.Header.Set("X-Client-ID", "device-9")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersRemoveMissingItem(t *testing.T) {
	carts := &recordingCartService{}
	carts.removeFn = func(context.Context, string, string) (domain.Cart, error) {
		return domain.Cart{}, services.ErrCartItemNotFound
	}
	router := newCartRouter(carts, &stubCatalogHandlerService{}, &stubSessionService{})

	req := httptest.NewRequest(http.MethodDelete, "/cart/items/v-9", nil)
	req.Header.Set("X-Client-ID", "device-9")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCartHandlersClear(t *testing.T) {
	carts := &recordingCartService{}
	carts.clearFn = func(_ context.Context, key string) (domain.Cart, error) {
		return domain.Cart{Key: key}, nil
	}
	router := newCartRouter(carts, &stubCatalogHandlerService{}, &stubSessionService{})

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	req.Header.Set("X-Client-ID", "device-9")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeCart(t, rr)
	if resp.Badge.Count != 0 || resp.Badge.Visible {
		t.Fatalf("expected empty badge after clear, got %+v", resp.Badge)
	}
}
