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
	"github.com/brewloyal/api/internal/order"
	"github.com/brewloyal/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*database.Order, error)
	ConfirmPayment(ctx context.Context, outletID, orderID uuid.UUID) (*database.Order, error)
	FailPayment(ctx context.Context, outletID, orderID uuid.UUID) (*database.Order, error)
	CancelOrder(ctx context.Context, req service.CancelOrderRequest) (*service.CancelOrderResult, error)
	RefundOrder(ctx context.Context, outletID, orderID uuid.UUID, reason, staffName string) (*database.Order, error)
	DeleteOrders(ctx context.Context, outletID uuid.UUID, orderIDs []uuid.UUID, confirmToken string) (*service.DeleteOrdersResult, error)
	GetOrderDetail(ctx context.Context, outletID, orderID uuid.UUID) (*service.OrderDetail, error)
	ListOrders(ctx context.Context, req service.ListOrdersRequest) ([]database.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside an outlet-scoped subrouter: /outlets/{oid}/orders
// Deleting and refunding are limited to owners and managers.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.With(middleware.RequireRole(enum.UserRoleOwner, enum.UserRoleManager)).Post("/delete", h.Delete)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/payment", h.Payment)
	r.Post("/{id}/cancel", h.Cancel)
	r.With(middleware.RequireRole(enum.UserRoleOwner, enum.UserRoleManager)).Post("/{id}/refund", h.Refund)
}

// --- Request / Response types ---

type createOrderRequest struct {
	UserID string           `json:"user_id"`
	Items  []order.LineItem `json:"items"`
}

type paymentRequest struct {
	Success *bool `json:"success"`
}

type cancelOrderRequest struct {
	Reason       string `json:"reason"`
	StaffName    string `json:"staff_name"`
	ConfirmToken string `json:"confirm_token"`
}

type refundOrderRequest struct {
	Reason    string `json:"reason"`
	StaffName string `json:"staff_name"`
}

type deleteOrdersRequest struct {
	IDs          []string `json:"ids"`
	ConfirmToken string   `json:"confirm_token"`
}

type confirmResponse struct {
	ConfirmToken string `json:"confirm_token"`
}

type deleteOrdersResponse struct {
	Deleted int `json:"deleted"`
}

type orderResponse struct {
	ID                  uuid.UUID       `json:"id"`
	OutletID            uuid.UUID       `json:"outlet_id"`
	UserID              uuid.UUID       `json:"user_id"`
	OrderNumber         string          `json:"order_number"`
	CollectionNumber    string          `json:"collection_number"`
	Items               json.RawMessage `json:"items"`
	PaymentStatus       string          `json:"payment_status"`
	Status              string          `json:"status"`
	KitchenStatus       string          `json:"kitchen_status"`
	QrCode              *string         `json:"qr_code"`
	GrossSales          string          `json:"gross_sales"`
	Subtotal            string          `json:"subtotal"`
	VoucherDiscount     string          `json:"voucher_discount"`
	TierDiscount        string          `json:"tier_discount"`
	BonusDiscount       string          `json:"bonus_discount"`
	TotalAmount         string          `json:"total_amount"`
	StaffNameLastAction *string         `json:"staff_name_last_action"`
	PaidAt              *time.Time      `json:"paid_at"`
	CompletedAt         *time.Time      `json:"completed_at"`
	CancelledAt         *time.Time      `json:"cancelled_at"`
	CancelReason        *string         `json:"cancel_reason"`
	RefundedAt          *time.Time      `json:"refunded_at"`
	RefundReason        *string         `json:"refund_reason"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type breakdownResponse struct {
	Gross       string `json:"gross"`
	Voucher     string `json:"voucher"`
	Tier        string `json:"tier"`
	Bonus       string `json:"bonus"`
	Unaccounted string `json:"unaccounted"`
	Total       string `json:"total"`
	ItemsSum    string `json:"items_sum"`
	ItemsDelta  string `json:"items_delta"`
	Balanced    bool   `json:"balanced"`
}

type orderItemResponse struct {
	Index      int    `json:"index"`
	Redeemable bool   `json:"redeemable"`
	ItemTotal  string `json:"item_total"`
	order.LineItem
}

// orderDetailResponse extends orderResponse with the breakdown and ledger.
type orderDetailResponse struct {
	orderResponse
	LineItems   []orderItemResponse            `json:"line_items"`
	Breakdown   breakdownResponse              `json:"breakdown"`
	Redemptions []database.OrderItemRedemption `json:"redemptions"`
	Progress    string                         `json:"redemption_progress"`
	Redeemable  bool                           `json:"redeemable"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// --- Handlers ---

// Create handles POST /outlets/{oid}/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return
	}

	created, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		OutletID: outletID,
		UserID:   userID,
		Items:    req.Items,
	})
	if err != nil {
		writeServiceError(w, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(*created))
}

// List handles GET /outlets/{oid}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	// Parse pagination
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 200 {
		limit = 200
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	paymentStatus := r.URL.Query().Get("payment_status")
	if paymentStatus != "" && !isValidPaymentStatus(paymentStatus) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_status"})
		return
	}
	status := r.URL.Query().Get("status")
	if status != "" && !isValidOrderStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	orders, err := h.svc.ListOrders(r.Context(), service.ListOrdersRequest{
		OutletID:      outletID,
		PaymentStatus: paymentStatus,
		Status:        status,
		Limit:         int32(limit),
		Offset:        int32(offset),
	})
	if err != nil {
		writeServiceError(w, "list orders", err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /outlets/{oid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.GetOrderDetail(r.Context(), outletID, orderID)
	if err != nil {
		writeServiceError(w, "get order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDetailResponse(detail))
}

// Payment handles POST /outlets/{oid}/orders/{id}/payment. It is the write
// path of the payment webhook: success settles the order and issues its QR
// payload, failure marks the payment failed.
func (h *OrderHandler) Payment(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Success == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "success is required"})
		return
	}

	if *req.Success {
		updated, err := h.svc.ConfirmPayment(r.Context(), outletID, orderID)
		if err != nil {
			writeServiceError(w, "confirm payment", err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(*updated))
		return
	}

	updated, err := h.svc.FailPayment(r.Context(), outletID, orderID)
	if err != nil {
		writeServiceError(w, "fail payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*updated))
}

// Cancel handles POST /outlets/{oid}/orders/{id}/cancel. The first call
// returns a confirm_token; repeating the call with it applies the cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.svc.CancelOrder(r.Context(), service.CancelOrderRequest{
		OutletID:     outletID,
		OrderID:      orderID,
		Reason:       req.Reason,
		StaffName:    req.StaffName,
		ConfirmToken: req.ConfirmToken,
	})
	if err != nil {
		writeServiceError(w, "cancel order", err)
		return
	}

	if res.Order == nil {
		writeJSON(w, http.StatusAccepted, confirmResponse{ConfirmToken: res.ConfirmToken})
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*res.Order))
}

// Refund handles POST /outlets/{oid}/orders/{id}/refund.
func (h *OrderHandler) Refund(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	var req refundOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason is required"})
		return
	}

	updated, err := h.svc.RefundOrder(r.Context(), outletID, orderID, req.Reason, req.StaffName)
	if err != nil {
		writeServiceError(w, "refund order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*updated))
}

// Delete handles POST /outlets/{oid}/orders/delete for one or many orders.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	var req deleteOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ids := make([]uuid.UUID, len(req.IDs))
	for i, s := range req.IDs {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID: " + s})
			return
		}
		ids[i] = id
	}

	res, err := h.svc.DeleteOrders(r.Context(), outletID, ids, req.ConfirmToken)
	if err != nil {
		writeServiceError(w, "delete orders", err)
		return
	}

	if res.ConfirmToken != "" {
		writeJSON(w, http.StatusAccepted, confirmResponse{ConfirmToken: res.ConfirmToken})
		return
	}
	writeJSON(w, http.StatusOK, deleteOrdersResponse{Deleted: res.Deleted})
}

// --- Helpers ---

// parseOrderPath reads {oid} and {id}, writing a 400 on failure.
func parseOrderPath(w http.ResponseWriter, r *http.Request) (outletID, orderID uuid.UUID, ok bool) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return uuid.Nil, uuid.Nil, false
	}

	if middleware.ClaimsFromContext(r.Context()) == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return uuid.Nil, uuid.Nil, false
	}

	orderID, err = uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return outletID, orderID, true
}

func isValidPaymentStatus(s string) bool {
	switch s {
	case enum.PaymentStatusPending, enum.PaymentStatusPaid, enum.PaymentStatusFailed:
		return true
	}
	return false
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusWaitingPayment, enum.OrderStatusReady, enum.OrderStatusCompleted,
		enum.OrderStatusCancelled, enum.OrderStatusRefunded:
		return true
	}
	return false
}

func toOrderResponse(o database.Order) orderResponse {
	items := o.Items
	if len(items) == 0 {
		items = json.RawMessage("[]")
	}
	return orderResponse{
		ID:                  o.ID,
		OutletID:            o.OutletID,
		UserID:              o.UserID,
		OrderNumber:         o.OrderNumber,
		CollectionNumber:    order.CollectionNumber(o.OrderNumber),
		Items:               items,
		PaymentStatus:       o.PaymentStatus,
		Status:              o.Status,
		KitchenStatus:       order.KitchenStatus(o.FnbStatus.String, o.FnbStatus.Valid),
		QrCode:              textPtr(o.QrCode),
		GrossSales:          money(o.GrossSales),
		Subtotal:            money(o.Subtotal),
		VoucherDiscount:     money(o.VoucherDiscount),
		TierDiscount:        money(o.TierDiscount),
		BonusDiscount:       money(o.BonusDiscount),
		TotalAmount:         money(o.TotalAmount),
		StaffNameLastAction: textPtr(o.StaffNameLastAction),
		PaidAt:              timePtr(o.PaidAt),
		CompletedAt:         timePtr(o.CompletedAt),
		CancelledAt:         timePtr(o.CancelledAt),
		CancelReason:        textPtr(o.CancelReason),
		RefundedAt:          timePtr(o.RefundedAt),
		RefundReason:        textPtr(o.RefundReason),
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

func toOrderDetailResponse(d *service.OrderDetail) orderDetailResponse {
	items := make([]orderItemResponse, len(d.Items))
	for i, li := range d.Items {
		items[i] = orderItemResponse{
			Index:      i,
			Redeemable: li.Redeemable(),
			ItemTotal:  d.Breakdown.ItemTotals[i].StringFixed(2),
			LineItem:   li,
		}
	}

	redemptions := d.Redemptions
	if redemptions == nil {
		redemptions = []database.OrderItemRedemption{}
	}

	b := d.Breakdown
	return orderDetailResponse{
		orderResponse: toOrderResponse(d.Order),
		LineItems:     items,
		Breakdown: breakdownResponse{
			Gross:       b.Gross.StringFixed(2),
			Voucher:     b.Voucher.StringFixed(2),
			Tier:        b.Tier.StringFixed(2),
			Bonus:       b.Bonus.StringFixed(2),
			Unaccounted: b.Unaccounted.StringFixed(2),
			Total:       b.Total.StringFixed(2),
			ItemsSum:    b.ItemsSum.StringFixed(2),
			ItemsDelta:  b.ItemsDelta.StringFixed(2),
			Balanced:    b.Balanced,
		},
		Redemptions: redemptions,
		Progress:    d.Progress,
		Redeemable:  d.Redeemable,
	}
}

func money(n pgtype.Numeric) string {
	if !n.Valid {
		return decimal.Zero.StringFixed(2)
	}
	return order.NumericToDecimal(n).StringFixed(2)
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
