package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/optima-bank/loyalty/internal/platform/httpx"
	"github.com/optima-bank/loyalty/internal/services"
)

// NotificationHandlers exposes the transient notification feed.
type NotificationHandlers struct {
	notifier services.Notifier
}

// NewNotificationHandlers constructs the notification handlers.
func NewNotificationHandlers(notifier services.Notifier) *NotificationHandlers {
	return &NotificationHandlers{notifier: notifier}
}

// Routes wires the /notifications endpoints onto the provided router.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.list)
	r.Delete("/{notificationID}", h.dismiss)
}

func (h *NotificationHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifier == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notifier_unavailable", "notification service is unavailable", http.StatusServiceUnavailable))
		return
	}

	recent := h.notifier.Recent(ctx)
	payload := make([]notificationPayload, 0, len(recent))
	for _, notification := range recent {
		payload = append(payload, buildNotificationPayload(notification))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"notifications": payload})
}

func (h *NotificationHandlers) dismiss(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifier == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notifier_unavailable", "notification service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if !h.notifier.Dismiss(ctx, chi.URLParam(r, "notificationID")) {
		httpx.WriteError(ctx, w, httpx.NewError("notification_not_found", "notification not found", http.StatusNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
