package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/brewloyal/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// StaffVerifier resolves a passcode to a staff identity.
// Satisfied by *service.StaffGate.
type StaffVerifier interface {
	Verify(ctx context.Context, outletID uuid.UUID, passcode string, metadata map[string]any) (*service.StaffIdentity, error)
}

// RedemptionConfirmer confirms a redemption for a verified staff member.
// Satisfied by *service.RedemptionService.
type RedemptionConfirmer interface {
	Confirm(ctx context.Context, staff service.StaffIdentity, r service.Redeemable) (*service.RedemptionResult, error)
}

// RedemptionHandler handles the staff passcode gate and redemption
// confirmation endpoints.
type RedemptionHandler struct {
	gate StaffVerifier
	svc  RedemptionConfirmer
}

// NewRedemptionHandler creates a new RedemptionHandler.
func NewRedemptionHandler(gate StaffVerifier, svc RedemptionConfirmer) *RedemptionHandler {
	return &RedemptionHandler{gate: gate, svc: svc}
}

// RegisterRoutes registers staff and redemption endpoints.
// Expected to be mounted inside an outlet-scoped subrouter: /outlets/{oid}
func (h *RedemptionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/staff/verify", h.VerifyStaff)
	r.Post("/redemptions/orders/{id}", h.RedeemOrderItems)
	r.Post("/redemptions/rewards/{rid}", h.RedeemReward)
}

// --- Request / Response types ---

type verifyStaffRequest struct {
	Passcode string `json:"passcode"`
}

type redeemOrderRequest struct {
	Passcode    string `json:"passcode"`
	ItemIndices []int  `json:"item_indices"`
}

type redeemRewardRequest struct {
	Passcode string `json:"passcode"`
}

type redemptionResponse struct {
	Staff service.StaffIdentity `json:"staff"`
	*service.RedemptionResult
}

// --- Handlers ---

// VerifyStaff handles POST /outlets/{oid}/staff/verify.
func (h *RedemptionHandler) VerifyStaff(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	var req verifyStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	staff, err := h.gate.Verify(r.Context(), outletID, req.Passcode, requestMetadata(r, "verify"))
	if err != nil {
		writeServiceError(w, "verify staff", err)
		return
	}

	writeJSON(w, http.StatusOK, staff)
}

// RedeemOrderItems handles POST /outlets/{oid}/redemptions/orders/{id}.
func (h *RedemptionHandler) RedeemOrderItems(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	var req redeemOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.ItemIndices) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": service.ErrNoItemsSelected.Error()})
		return
	}

	meta := requestMetadata(r, "redeem_order")
	meta["order_id"] = orderID.String()
	staff, err := h.gate.Verify(r.Context(), outletID, req.Passcode, meta)
	if err != nil {
		writeServiceError(w, "verify staff", err)
		return
	}

	res, err := h.svc.Confirm(r.Context(), *staff, service.OrderItems{
		OrderID:  orderID,
		OutletID: outletID,
		Indices:  req.ItemIndices,
	})
	if err != nil {
		writeServiceError(w, "redeem order items", err)
		return
	}

	writeJSON(w, http.StatusOK, redemptionResponse{Staff: *staff, RedemptionResult: res})
}

// RedeemReward handles POST /outlets/{oid}/redemptions/rewards/{rid}.
func (h *RedemptionHandler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	rewardID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid reward ID"})
		return
	}

	var req redeemRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	meta := requestMetadata(r, "redeem_reward")
	meta["reward_id"] = rewardID.String()
	staff, err := h.gate.Verify(r.Context(), outletID, req.Passcode, meta)
	if err != nil {
		writeServiceError(w, "verify staff", err)
		return
	}

	res, err := h.svc.Confirm(r.Context(), *staff, service.SingleReward{
		RewardID: rewardID,
		OutletID: outletID,
	})
	if err != nil {
		writeServiceError(w, "redeem reward", err)
		return
	}

	writeJSON(w, http.StatusOK, redemptionResponse{Staff: *staff, RedemptionResult: res})
}

// requestMetadata is merged into the passcode audit row.
func requestMetadata(r *http.Request, action string) map[string]any {
	return map[string]any{
		"action":     action,
		"remote_ip":  r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}
}
