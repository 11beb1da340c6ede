package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dapurkita/ordersync/internal/notification"
	"github.com/dapurkita/ordersync/internal/order/application"
	"github.com/dapurkita/ordersync/internal/order/domain"
)

// userIDHeader carries the device-local user id, so order-list views
// keep working from the local partition when no session is present.
const userIDHeader = "X-User-Id"

type Handler struct {
	log      *slog.Logger
	service  *application.Service
	sessions application.Sessions
	notifs   *notification.Store
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, sessions application.Sessions, notifs *notification.Store) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		sessions: sessions,
		notifs:   notifs,
		tracer:   otel.Tracer("order-http"),
	}
}

type checkoutReq struct {
	Items       []domain.OrderItem `json:"items"`
	ShippingFee int64              `json:"shippingFee"`
	ScheduledAt int64              `json:"scheduledAt,omitempty"`
	Gift        *domain.Gift       `json:"gift,omitempty"`
	Meta        domain.Meta        `json:"meta"`
}

type setStatusReq struct {
	OwnerID       string               `json:"ownerId"`
	Status        domain.Status        `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/orders", h.listOrders)
	r.Post("/orders", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/notifications", h.listNotifications)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/orders", h.adminListOrders)
		r.Post("/orders/{id}/status", h.adminSetStatus)
	})
	return r
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	userID, token := h.callerIdentity(r)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	orders, err := h.service.Orders(ctx, userID, token)
	if err != nil {
		h.log.Error("order list failed", "user_id", userID, "err", err)
		http.Error(w, "order list unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	userID, token := h.callerIdentity(r)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	o, err := h.service.Order(ctx, userID, token, chi.URLParam(r, "id"))
	if errors.Is(err, application.ErrOrderNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "order lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Checkout")
	defer span.End()

	ident, err := h.sessions.Current(ctx, bearerToken(r))
	if err != nil {
		http.Error(w, "sign in to place an order", http.StatusUnauthorized)
		return
	}

	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	o, err := h.service.Checkout(ctx, ident.ID, domain.Draft{
		Items:       req.Items,
		ShippingFee: req.ShippingFee,
		ScheduledAt: req.ScheduledAt,
		Gift:        req.Gift,
		Meta:        req.Meta,
	})
	if errors.Is(err, domain.ErrEmptyCart) || errors.Is(err, domain.ErrInvalidOrder) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("checkout failed", "user_id", ident.ID, "err", err)
		http.Error(w, "checkout failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, o)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	// Cancelling is a write, so the device-local header is not enough
	// here; only a verified session may do it.
	ident, err := h.sessions.Current(ctx, bearerToken(r))
	if err != nil {
		http.Error(w, "sign in to cancel an order", http.StatusUnauthorized)
		return
	}
	o, err := h.service.Cancel(ctx, ident.ID, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, application.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, application.ErrOrderFinal):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, _ := h.callerIdentity(r)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	notes, err := h.notifs.List(r.Context(), userID)
	if err != nil {
		http.Error(w, "notifications unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminListOrders")
	defer span.End()

	orders, err := h.service.AllOrders(ctx)
	if err != nil {
		http.Error(w, "order aggregation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) adminSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminSetStatus")
	defer span.End()

	var req setStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		http.Error(w, "ownerId is required", http.StatusBadRequest)
		return
	}

	o, err := h.service.SetStatus(ctx, req.OwnerID, chi.URLParam(r, "id"), req.Status, req.PaymentStatus)
	switch {
	case errors.Is(err, application.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, application.ErrRemoteUnavailable):
		http.Error(w, "remote store rejected the update", http.StatusBadGateway)
		return
	case err != nil:
		http.Error(w, "status update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := h.sessions.Current(r.Context(), bearerToken(r))
		if err != nil {
			http.Error(w, "sign in required", http.StatusUnauthorized)
			return
		}
		if !ident.Admin {
			http.Error(w, "admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerIdentity resolves the acting user: a verified session wins,
// otherwise the device-local user header is trusted for local-only
// reads. The token is passed through so the orchestrator can decide
// whether a remote sync is possible.
func (h *Handler) callerIdentity(r *http.Request) (userID, token string) {
	token = bearerToken(r)
	if ident, err := h.sessions.Current(r.Context(), token); err == nil {
		return ident.ID, token
	}
	return r.Header.Get(userIDHeader), token
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
