package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/message"

	"github.com/optima-bank/loyalty/internal/platform/httpx"
	"github.com/optima-bank/loyalty/internal/repositories"
	"github.com/optima-bank/loyalty/internal/services"
)

// CatalogHandlers exposes the public voucher catalog.
type CatalogHandlers struct {
	catalog services.CatalogService
	printer *message.Printer
}

// NewCatalogHandlers constructs handlers for voucher and category listings.
func NewCatalogHandlers(catalog services.CatalogService, printer *message.Printer) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog, printer: printer}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/vouchers", h.listVouchers)
	r.Get("/vouchers/{voucherID}", h.getVoucher)
	r.Get("/categories", h.listCategories)
}

type voucherListResponse struct {
	Vouchers []voucherPayload `json:"vouchers"`
	Count    int              `json:"count"`
}

func (h *CatalogHandlers) listVouchers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	filter := repositories.VoucherFilter{Search: r.URL.Query().Get("search")}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filter.Category = &category
	}

	vouchers, err := h.catalog.ListVouchers(ctx, filter)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := voucherListResponse{Vouchers: make([]voucherPayload, 0, len(vouchers)), Count: len(vouchers)}
	for _, voucher := range vouchers {
		payload.Vouchers = append(payload.Vouchers, buildVoucherPayload(voucher, h.printer))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CatalogHandlers) getVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	voucher, err := h.catalog.GetVoucher(ctx, chi.URLParam(r, "voucherID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVoucherPayload(voucher, h.printer))
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	type categoryPayload struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	payload := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		payload = append(payload, categoryPayload{ID: category.ID, Name: category.Name})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": payload})
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogVoucherNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_not_found", "voucher not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "voucher catalog is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to fetch catalog", http.StatusInternalServerError))
	}
}
