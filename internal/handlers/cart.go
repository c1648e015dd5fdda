package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/message"

	"github.com/optima-bank/loyalty/internal/platform/auth"
	"github.com/optima-bank/loyalty/internal/platform/httpx"
	"github.com/optima-bank/loyalty/internal/services"

	domain "github.com/optima-bank/loyalty/internal/domain"
)

// CartHandlers exposes the cart endpoints. Authenticated requests key the
// cart by verified user id; anonymous requests supply X-Client-ID.
type CartHandlers struct {
	carts    services.CartService
	catalog  services.CatalogService
	sessions services.SessionService
	authn    *auth.Authenticator
	printer  *message.Printer
}

const maxCartBodySize = 16 * 1024

// NewCartHandlers constructs the cart endpoint handlers.
func NewCartHandlers(carts services.CartService, catalog services.CatalogService, sessions services.SessionService, authn *auth.Authenticator, printer *message.Printer) *CartHandlers {
	return &CartHandlers{
		carts:    carts,
		catalog:  catalog,
		sessions: sessions,
		authn:    authn,
		printer:  printer,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{voucherID}", h.updateItem)
	r.Delete("/items/{voucherID}", h.removeItem)
}

type cartBadgePayload struct {
	Count   int  `json:"count"`
	Visible bool `json:"visible"`
}

type cartRowPayload struct {
	VoucherID       string `json:"voucher_id"`
	Title           string `json:"title"`
	Points          int64  `json:"points"`
	FormattedPoints string `json:"formatted_points"`
	Quantity        int    `json:"quantity"`
	LineTotal       int64  `json:"line_total"`
	ImageURL        string `json:"image_url,omitempty"`
}

type cartFooterPayload struct {
	Balance            int64  `json:"balance"`
	FormattedBalance   string `json:"formatted_balance"`
	Required           int64  `json:"required"`
	FormattedRequired  string `json:"formatted_required"`
	Remaining          int64  `json:"remaining"`
	FormattedRemaining string `json:"formatted_remaining"`
}

type cartResponse struct {
	Badge           cartBadgePayload  `json:"badge"`
	Rows            []cartRowPayload  `json:"rows"`
	Footer          cartFooterPayload `json:"footer"`
	CheckoutEnabled bool              `json:"checkout_enabled"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	key, ok := h.requireCartKey(ctx, w, r)
	if !ok {
		return
	}

	cart, err := h.carts.Get(ctx, key)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildCartResponse(r, cart))
}

type addItemRequest struct {
	VoucherID string `json:"voucher_id"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil || h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	key, ok := h.requireCartKey(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		h.writeBodyError(ctx, w, err)
		return
	}
	var req addItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	// The voucher snapshot comes from the catalog, never from the client.
	voucher, err := h.catalog.GetVoucher(ctx, req.VoucherID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCatalogInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrCatalogVoucherNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("voucher_not_found", "voucher not found", http.StatusNotFound))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "voucher catalog is unavailable", http.StatusServiceUnavailable))
		}
		return
	}

	cart, err := h.carts.AddItem(ctx, key, domain.CartItem{
		VoucherID: voucher.ID,
		Title:     voucher.Title,
		Points:    voucher.Points,
		Quantity:  req.Quantity,
		ImageURL:  voucher.ImageURL,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildCartResponse(r, cart))
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	key, ok := h.requireCartKey(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		h.writeBodyError(ctx, w, err)
		return
	}
	var req updateItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, key, chi.URLParam(r, "voucherID"), req.Quantity)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildCartResponse(r, cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	key, ok := h.requireCartKey(ctx, w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(ctx, key, chi.URLParam(r, "voucherID"))
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildCartResponse(r, cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	key, ok := h.requireCartKey(ctx, w, r)
	if !ok {
		return
	}

	cart, err := h.carts.Clear(ctx, key)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildCartResponse(r, cart))
}

func (h *CartHandlers) requireCartKey(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	key := resolveCartKey(r)
	if key == "" {
		httpx.WriteError(ctx, w, httpx.NewError("missing_cart_key", "authenticate or supply the X-Client-ID header", http.StatusBadRequest))
		return "", false
	}
	return key, true
}

// buildCartResponse renders the cart view model. The footer balance comes
// from the caller's loyalty profile when a session is attached.
func (h *CartHandlers) buildCartResponse(r *http.Request, cart domain.Cart) cartResponse {
	count := cart.ItemCount()
	required := cart.TotalPoints()

	var balance int64
	hasBalance := false
	if h.sessions != nil {
		if token := bearerTokenFromContext(r); token != "" {
			if session, err := h.sessions.Resolve(r.Context(), token); err == nil && session.Profile != nil {
				balance = session.Profile.Points
				hasBalance = true
			}
		}
	}

	rows := make([]cartRowPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		rows = append(rows, cartRowPayload{
			VoucherID:       item.VoucherID,
			Title:           item.Title,
			Points:          item.Points,
			FormattedPoints: formatPoints(h.printer, item.Points),
			Quantity:        item.Quantity,
			LineTotal:       item.Points * int64(item.Quantity),
			ImageURL:        item.ImageURL,
		})
	}

	remaining := balance - required
	return cartResponse{
		Badge: cartBadgePayload{Count: count, Visible: count > 0},
		Rows:  rows,
		Footer: cartFooterPayload{
			Balance:            balance,
			FormattedBalance:   formatPoints(h.printer, balance),
			Required:           required,
			FormattedRequired:  formatPoints(h.printer, required),
			Remaining:          remaining,
			FormattedRemaining: formatPoints(h.printer, remaining),
		},
		CheckoutEnabled: hasBalance && count > 0 && required <= balance,
		UpdatedAt:       formatTime(cart.UpdatedAt),
	}
}

func (h *CartHandlers) writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "item is not in the cart", http.StatusNotFound))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to update cart", http.StatusInternalServerError))
	}
}
