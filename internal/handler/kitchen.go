package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/enum"
	"github.com/brewloyal/api/internal/middleware"
	"github.com/brewloyal/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// KitchenServicer defines the service methods needed by kitchen handlers.
// Satisfied by *service.KitchenService; narrow interface for testability.
type KitchenServicer interface {
	Board(ctx context.Context, outletID uuid.UUID, now time.Time) ([]service.BoardOrder, error)
	SetItemPrepared(ctx context.Context, outletID, orderID uuid.UUID, index int, prepared bool, staffID uuid.UUID) (*database.KitchenItemTracking, error)
	MarkAllPrepared(ctx context.Context, outletID, orderID, staffID uuid.UUID) (*database.Order, error)
	Advance(ctx context.Context, outletID, orderID uuid.UUID, next string) (*database.Order, error)
	RequestCancel(ctx context.Context, outletID, orderID uuid.UUID) (string, error)
	ConfirmCancel(ctx context.Context, outletID, orderID uuid.UUID, token string) (*database.Order, error)
	NotifyCustomer(ctx context.Context, outletID, orderID uuid.UUID) (*database.Notification, error)
}

// KitchenHandler handles the kitchen tracking board endpoints.
type KitchenHandler struct {
	svc KitchenServicer
	now func() time.Time
}

// NewKitchenHandler creates a new KitchenHandler.
func NewKitchenHandler(svc KitchenServicer) *KitchenHandler {
	return &KitchenHandler{svc: svc, now: time.Now}
}

// RegisterRoutes registers kitchen endpoints on the given Chi router.
// Expected to be mounted inside an outlet-scoped subrouter: /outlets/{oid}/kitchen
func (h *KitchenHandler) RegisterRoutes(r chi.Router) {
	r.Get("/board", h.Board)
	r.Put("/orders/{id}/items/{idx}", h.SetItemPrepared)
	r.Post("/orders/{id}/prepare-all", h.PrepareAll)
	r.Post("/orders/{id}/status", h.UpdateStatus)
	r.Post("/orders/{id}/notify", h.Notify)
}

// --- Request / Response types ---

type setItemPreparedRequest struct {
	Prepared bool `json:"prepared"`
}

type kitchenStatusRequest struct {
	Status       string `json:"status"`
	ConfirmToken string `json:"confirm_token"`
}

type boardResponse struct {
	Orders []service.BoardOrder `json:"orders"`
}

// --- Handlers ---

// Board handles GET /outlets/{oid}/kitchen/board.
func (h *KitchenHandler) Board(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	board, err := h.svc.Board(r.Context(), outletID, h.now())
	if err != nil {
		writeServiceError(w, "kitchen board", err)
		return
	}
	if board == nil {
		board = []service.BoardOrder{}
	}

	writeJSON(w, http.StatusOK, boardResponse{Orders: board})
}

// SetItemPrepared handles PUT /outlets/{oid}/kitchen/orders/{id}/items/{idx}.
func (h *KitchenHandler) SetItemPrepared(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil || idx < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item index"})
		return
	}

	var req setItemPreparedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	row, err := h.svc.SetItemPrepared(r.Context(), outletID, orderID, idx, req.Prepared, claims.UserID)
	if err != nil {
		writeServiceError(w, "set item prepared", err)
		return
	}

	writeJSON(w, http.StatusOK, row)
}

// PrepareAll handles POST /outlets/{oid}/kitchen/orders/{id}/prepare-all.
// Marks every item prepared and moves the ticket to ready.
func (h *KitchenHandler) PrepareAll(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	updated, err := h.svc.MarkAllPrepared(r.Context(), outletID, orderID, claims.UserID)
	if err != nil {
		writeServiceError(w, "prepare all", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*updated))
}

// UpdateStatus handles POST /outlets/{oid}/kitchen/orders/{id}/status.
// ready and collected apply at once; cancelled is two-step.
func (h *KitchenHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	var req kitchenStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	switch req.Status {
	case enum.KitchenStatusReady, enum.KitchenStatusCollected:
		updated, err := h.svc.Advance(r.Context(), outletID, orderID, req.Status)
		if err != nil {
			writeServiceError(w, "advance kitchen status", err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(*updated))

	case enum.KitchenStatusCancelled:
		if req.ConfirmToken == "" {
			token, err := h.svc.RequestCancel(r.Context(), outletID, orderID)
			if err != nil {
				writeServiceError(w, "request kitchen cancel", err)
				return
			}
			writeJSON(w, http.StatusAccepted, confirmResponse{ConfirmToken: token})
			return
		}
		updated, err := h.svc.ConfirmCancel(r.Context(), outletID, orderID, req.ConfirmToken)
		if err != nil {
			writeServiceError(w, "cancel kitchen ticket", err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(*updated))

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be ready, collected or cancelled"})
	}
}

// Notify handles POST /outlets/{oid}/kitchen/orders/{id}/notify.
func (h *KitchenHandler) Notify(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	n, err := h.svc.NotifyCustomer(r.Context(), outletID, orderID)
	if err != nil {
		writeServiceError(w, "notify customer", err)
		return
	}

	writeJSON(w, http.StatusCreated, n)
}
