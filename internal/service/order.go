package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/enum"
	"github.com/brewloyal/api/internal/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidPrice         = errors.New("prices must not be negative")
	ErrNegativeDiscount     = errors.New("discounts must not be negative")
	ErrDiscountExceedsGross = errors.New("item discounts exceed item gross")
	ErrOrderNotFound        = errors.New("order not found")
	ErrPaymentSettled       = errors.New("payment already settled")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNoOrdersSelected     = errors.New("no orders selected")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed by the order lifecycle.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetNextOrderNumber(ctx context.Context, outletID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListRedeemableOrdersByUser(ctx context.Context, userID uuid.UUID) ([]database.Order, error)
	ListRedemptionsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemRedemption, error)
	ConfirmOrderPayment(ctx context.Context, arg database.ConfirmOrderPaymentParams) (database.Order, error)
	FailOrderPayment(ctx context.Context, arg database.FailOrderPaymentParams) (database.Order, error)
	CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
	RefundOrder(ctx context.Context, arg database.RefundOrderParams) (database.Order, error)
	DeleteRedemptionsByOrder(ctx context.Context, orderID uuid.UUID) error
	DeleteKitchenTrackingByOrder(ctx context.Context, orderID uuid.UUID) error
	DeleteOrder(ctx context.Context, arg database.DeleteOrderParams) (int64, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the validated input for checkout.
type CreateOrderRequest struct {
	OutletID uuid.UUID
	UserID   uuid.UUID
	Items    []order.LineItem
}

// CancelOrderRequest drives both steps of a cancel. An empty ConfirmToken
// asks for a token; a non-empty one applies the cancel.
type CancelOrderRequest struct {
	OutletID     uuid.UUID
	OrderID      uuid.UUID
	Reason       string
	StaffName    string
	ConfirmToken string
}

// CancelOrderResult carries either the token to confirm with, or the
// cancelled order.
type CancelOrderResult struct {
	ConfirmToken string
	Order        *database.Order
}

// DeleteOrdersResult carries either the token to confirm with, or the
// number of deleted orders.
type DeleteOrdersResult struct {
	ConfirmToken string
	Deleted      int
}

// ListOrdersRequest filters the CMS order table. Empty filters match all.
type ListOrdersRequest struct {
	OutletID      uuid.UUID
	PaymentStatus string
	Status        string
	Limit         int32
	Offset        int32
}

// OrderDetail is the full read model of one order.
type OrderDetail struct {
	Order            database.Order
	Items            []order.LineItem
	Breakdown        order.Breakdown
	Redemptions      []database.OrderItemRedemption
	Progress         string
	CollectionNumber string
	KitchenStatus    string
	Redeemable       bool
}

// OrderService handles the order lifecycle outside staff redemption.
type OrderService struct {
	pool     TxBeginner
	store    OrderStore
	newStore NewOrderStore
	confirm  *Confirmer
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, store OrderStore, newStore NewOrderStore, confirm *Confirmer) *OrderService {
	return &OrderService{pool: pool, store: store, newStore: newStore, confirm: confirm}
}

// CreateOrder validates line items, fixes each item's total and creates a
// pending order atomically. Retries up to maxOrderNumberRetries times on
// order_number unique constraint violations (race condition where
// concurrent transactions get the same MAX).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*database.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	items := make([]order.LineItem, len(req.Items))
	for i, li := range req.Items {
		if err := validateLineItem(li); err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		if li.Discounts == nil {
			li.Discounts = &order.Discounts{}
		}
		if li.Kind == "" {
			li.Kind = enum.ItemKindProduct
		}
		total := order.ItemTotal(li).Round(2)
		li.TotalPrice = &total
		items[i] = li
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		created, err := s.createOrderTx(ctx, req, items)
		if err == nil {
			return created, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func validateLineItem(li order.LineItem) error {
	if li.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if li.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	for _, m := range li.Modifiers {
		if m.Price.IsNegative() {
			return ErrInvalidPrice
		}
	}
	if li.Discounts != nil {
		if li.Discounts.IsNegative() {
			return ErrNegativeDiscount
		}
		if li.Discounts.Total().GreaterThan(li.Gross()) {
			return ErrDiscountExceedsGross
		}
	}
	return nil
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_outlet_id_order_number_key"
	}
	return false
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest, items []order.LineItem) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	nextNum, err := store.GetNextOrderNumber(ctx, req.OutletID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}

	raw, err := order.EncodeItems(items)
	if err != nil {
		return nil, err
	}

	amounts := order.Totals(items)
	subtotal := amounts.Gross.Sub(amounts.Voucher).Sub(amounts.Tier)

	created, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OutletID:        req.OutletID,
		UserID:          req.UserID,
		OrderNumber:     fmt.Sprintf("ORD-%04d", nextNum),
		Items:           raw,
		GrossSales:      order.DecimalToNumeric(amounts.Gross),
		Subtotal:        order.DecimalToNumeric(subtotal),
		VoucherDiscount: order.DecimalToNumeric(amounts.Voucher),
		TierDiscount:    order.DecimalToNumeric(amounts.Tier),
		BonusDiscount:   order.DecimalToNumeric(amounts.Bonus),
		TotalAmount:     order.DecimalToNumeric(amounts.Total),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &created, nil
}

// ConfirmPayment moves a pending order to paid exactly once, assigns its
// QR payload and derives the initial fulfillment status.
func (s *OrderService) ConfirmPayment(ctx context.Context, outletID, orderID uuid.UUID) (*database.Order, error) {
	current, err := s.getOrder(ctx, outletID, orderID)
	if err != nil {
		return nil, err
	}
	items, err := order.DecodeItems(current.Items)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.ConfirmOrderPayment(ctx, database.ConfirmOrderPaymentParams{
		ID:       orderID,
		Status:   order.InitialStatus(items),
		QrCode:   pgtype.Text{String: "QR-" + uuid.NewString(), Valid: true},
		OutletID: outletID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentSettled
		}
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	return &updated, nil
}

// FailPayment marks a pending payment attempt as failed.
func (s *OrderService) FailPayment(ctx context.Context, outletID, orderID uuid.UUID) (*database.Order, error) {
	if _, err := s.getOrder(ctx, outletID, orderID); err != nil {
		return nil, err
	}
	updated, err := s.store.FailOrderPayment(ctx, database.FailOrderPaymentParams{ID: orderID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentSettled
		}
		return nil, fmt.Errorf("fail payment: %w", err)
	}
	return &updated, nil
}

// CancelOrder is two-step: without a token it checks the order can be
// cancelled and returns a confirmation token; with one it applies.
func (s *OrderService) CancelOrder(ctx context.Context, req CancelOrderRequest) (*CancelOrderResult, error) {
	current, err := s.getOrder(ctx, req.OutletID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if current.Status != enum.OrderStatusWaitingPayment && current.Status != enum.OrderStatusReady {
		return nil, fmt.Errorf("%w: cannot cancel a %s order", ErrInvalidTransition, current.Status)
	}

	if req.ConfirmToken == "" {
		token, err := s.confirm.Issue(ActionOrderCancel, req.OutletID, req.OrderID)
		if err != nil {
			return nil, err
		}
		return &CancelOrderResult{ConfirmToken: token}, nil
	}
	if err := s.confirm.Check(req.ConfirmToken, ActionOrderCancel, req.OutletID, req.OrderID); err != nil {
		return nil, err
	}

	updated, err := s.store.CancelOrder(ctx, database.CancelOrderParams{
		ID:        req.OrderID,
		OutletID:  req.OutletID,
		Reason:    textOrNull(req.Reason),
		StaffName: textOrNull(req.StaffName),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order changed before cancel", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	return &CancelOrderResult{Order: &updated}, nil
}

// RefundOrder refunds a paid order that is ready or completed.
func (s *OrderService) RefundOrder(ctx context.Context, outletID, orderID uuid.UUID, reason, staffName string) (*database.Order, error) {
	current, err := s.getOrder(ctx, outletID, orderID)
	if err != nil {
		return nil, err
	}
	if current.PaymentStatus != enum.PaymentStatusPaid ||
		(current.Status != enum.OrderStatusReady && current.Status != enum.OrderStatusCompleted) {
		return nil, fmt.Errorf("%w: cannot refund a %s/%s order", ErrInvalidTransition, current.PaymentStatus, current.Status)
	}

	updated, err := s.store.RefundOrder(ctx, database.RefundOrderParams{
		ID:        orderID,
		OutletID:  outletID,
		Reason:    textOrNull(reason),
		StaffName: textOrNull(staffName),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order changed before refund", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("refund order: %w", err)
	}
	return &updated, nil
}

// DeleteOrders removes one or more orders of an outlet. Without a token it
// checks every order exists and returns a confirmation token. With one it
// deletes ledger entries, kitchen tracking and the orders in a single
// transaction; any missing order rolls the whole batch back.
func (s *OrderService) DeleteOrders(ctx context.Context, outletID uuid.UUID, orderIDs []uuid.UUID, confirmToken string) (*DeleteOrdersResult, error) {
	if len(orderIDs) == 0 {
		return nil, ErrNoOrdersSelected
	}

	if confirmToken == "" {
		for _, id := range orderIDs {
			if _, err := s.getOrder(ctx, outletID, id); err != nil {
				return nil, err
			}
		}
		token, err := s.confirm.Issue(ActionOrderDelete, outletID, orderIDs...)
		if err != nil {
			return nil, err
		}
		return &DeleteOrdersResult{ConfirmToken: token}, nil
	}
	if err := s.confirm.Check(confirmToken, ActionOrderDelete, outletID, orderIDs...); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	deleted := 0
	seen := make(map[uuid.UUID]bool, len(orderIDs))
	for _, id := range orderIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		if err := store.DeleteRedemptionsByOrder(ctx, id); err != nil {
			return nil, fmt.Errorf("delete redemptions of %s: %w", id, err)
		}
		if err := store.DeleteKitchenTrackingByOrder(ctx, id); err != nil {
			return nil, fmt.Errorf("delete kitchen tracking of %s: %w", id, err)
		}
		n, err := store.DeleteOrder(ctx, database.DeleteOrderParams{ID: id, OutletID: outletID})
		if err != nil {
			return nil, fmt.Errorf("delete order %s: %w", id, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		deleted++
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &DeleteOrdersResult{Deleted: deleted}, nil
}

// GetOrderDetail assembles the order, its reconciled financials and its
// redemption ledger.
func (s *OrderService) GetOrderDetail(ctx context.Context, outletID, orderID uuid.UUID) (*OrderDetail, error) {
	o, err := s.getOrder(ctx, outletID, orderID)
	if err != nil {
		return nil, err
	}
	items, err := order.DecodeItems(o.Items)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListRedemptionsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}

	return &OrderDetail{
		Order:            *o,
		Items:            items,
		Breakdown:        order.Reconcile(orderAmounts(*o), items),
		Redemptions:      entries,
		Progress:         ledgerProgress(entries),
		CollectionNumber: order.CollectionNumber(o.OrderNumber),
		KitchenStatus:    order.KitchenStatus(o.FnbStatus.String, o.FnbStatus.Valid),
		Redeemable:       order.IsRedeemable(o.PaymentStatus, o.Status, o.QrCode.String),
	}, nil
}

// ListOrders returns orders in every payment state for the CMS table.
func (s *OrderService) ListOrders(ctx context.Context, req ListOrdersRequest) ([]database.Order, error) {
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	orders, err := s.store.ListOrders(ctx, database.ListOrdersParams{
		OutletID:      req.OutletID,
		PaymentStatus: textOrNull(req.PaymentStatus),
		Status:        textOrNull(req.Status),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListRedeemableOrders returns the customer's QR list. Orders without a QR
// payload are never included.
func (s *OrderService) ListRedeemableOrders(ctx context.Context, userID uuid.UUID) ([]database.Order, error) {
	orders, err := s.store.ListRedeemableOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list redeemable orders: %w", err)
	}
	out := orders[:0]
	for _, o := range orders {
		if order.IsRedeemable(o.PaymentStatus, o.Status, o.QrCode.String) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *OrderService) getOrder(ctx context.Context, outletID, orderID uuid.UUID) (*database.Order, error) {
	o, err := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

func orderAmounts(o database.Order) order.Amounts {
	return order.Amounts{
		Gross:   order.NumericToDecimal(o.GrossSales),
		Voucher: order.NumericToDecimal(o.VoucherDiscount),
		Tier:    order.NumericToDecimal(o.TierDiscount),
		Bonus:   order.NumericToDecimal(o.BonusDiscount),
		Total:   order.NumericToDecimal(o.TotalAmount),
	}
}

func ledgerProgress(entries []database.OrderItemRedemption) string {
	completed := 0
	for _, e := range entries {
		if e.Status == enum.LedgerStatusCompleted {
			completed++
		}
	}
	return order.RedemptionProgress(len(entries), completed)
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func uuidOrNull(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}
