package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/brewloyal/api/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RedeemableLister lists a customer's redeemable orders.
// Satisfied by *service.OrderService.
type RedeemableLister interface {
	ListRedeemableOrders(ctx context.Context, userID uuid.UUID) ([]database.Order, error)
}

// NotificationStore defines the database methods needed for the customer
// inbox. Satisfied by *database.Queries.
type NotificationStore interface {
	ListNotificationsByUser(ctx context.Context, arg database.ListNotificationsByUserParams) ([]database.Notification, error)
}

// CustomerHandler serves a customer's own QR list and notifications.
type CustomerHandler struct {
	orders        RedeemableLister
	notifications NotificationStore
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(orders RedeemableLister, notifications NotificationStore) *CustomerHandler {
	return &CustomerHandler{orders: orders, notifications: notifications}
}

// RegisterRoutes registers customer endpoints on the given Chi router.
// Expected to be mounted inside a self-scoped subrouter: /customers/{uid}
func (h *CustomerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders/redeemable", h.ListRedeemable)
	r.Get("/notifications", h.ListNotifications)
}

type redeemableListResponse struct {
	Orders []orderResponse `json:"orders"`
}

type notificationListResponse struct {
	Notifications []database.Notification `json:"notifications"`
}

// ListRedeemable handles GET /customers/{uid}/orders/redeemable.
func (h *CustomerHandler) ListRedeemable(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "uid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return
	}

	orders, err := h.orders.ListRedeemableOrders(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list redeemable orders", err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, redeemableListResponse{Orders: resp})
}

// ListNotifications handles GET /customers/{uid}/notifications.
func (h *CustomerHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "uid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}

	notes, err := h.notifications.ListNotificationsByUser(r.Context(), database.ListNotificationsByUserParams{
		UserID: userID,
		Limit:  int32(limit),
	})
	if err != nil {
		writeServiceError(w, "list notifications", err)
		return
	}
	if notes == nil {
		notes = []database.Notification{}
	}

	writeJSON(w, http.StatusOK, notificationListResponse{Notifications: notes})
}
