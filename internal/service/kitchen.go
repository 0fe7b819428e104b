package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/enum"
	"github.com/brewloyal/api/internal/notify"
	"github.com/brewloyal/api/internal/order"
	"github.com/brewloyal/api/internal/ws"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Errors returned by the kitchen service.
var (
	ErrKitchenClosed            = errors.New("kitchen ticket is closed")
	ErrInvalidKitchenTransition = errors.New("invalid kitchen status transition")
	ErrKitchenConflict          = errors.New("kitchen status changed concurrently")
	ErrNotReady                 = errors.New("order is not ready for collection")
	ErrAlreadyNotified          = errors.New("customer already notified for this ready episode")
	ErrOutletNotFound           = errors.New("outlet not found")
)

// allowedKitchenTransitions lists the single-tap transitions. Cancel is
// handled separately because it needs a confirmation token.
var allowedKitchenTransitions = map[string][]string{
	enum.KitchenStatusPreparing: {enum.KitchenStatusReady},
	enum.KitchenStatusReady:     {enum.KitchenStatusCollected},
}

func validateKitchenTransition(from, to string) error {
	for _, s := range allowedKitchenTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidKitchenTransition, from, to)
}

// KitchenStore defines the DB methods needed by the kitchen board.
// Satisfied by *database.Queries (and its WithTx variant).
type KitchenStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	ListKitchenOrders(ctx context.Context, outletID uuid.UUID) ([]database.Order, error)
	ListKitchenTrackingByOrders(ctx context.Context, orderIds []uuid.UUID) ([]database.KitchenItemTracking, error)
	UpsertKitchenItem(ctx context.Context, arg database.UpsertKitchenItemParams) (database.KitchenItemTracking, error)
	UpdateKitchenStatus(ctx context.Context, arg database.UpdateKitchenStatusParams) (database.Order, error)
	MarkCustomerNotified(ctx context.Context, arg database.MarkCustomerNotifiedParams) (database.Order, error)
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	CreateNotification(ctx context.Context, arg database.CreateNotificationParams) (database.Notification, error)
}

// NewKitchenStore creates a KitchenStore from a DBTX (pool or tx).
type NewKitchenStore func(db database.DBTX) KitchenStore

// Broadcaster pushes an event to a websocket room. Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastEvent(room, eventType string, payload any)
}

// BoardItem is one line item on a kitchen ticket.
type BoardItem struct {
	Index       int              `json:"index"`
	ProductName string           `json:"product_name"`
	Quantity    int32            `json:"quantity"`
	Modifiers   []order.Modifier `json:"modifiers,omitempty"`
	Prepared    bool             `json:"prepared"`
}

// BoardOrder is one ticket on the kitchen board.
type BoardOrder struct {
	OrderID          uuid.UUID     `json:"order_id"`
	OrderNumber      string        `json:"order_number"`
	CollectionNumber string        `json:"collection_number"`
	KitchenStatus    string        `json:"kitchen_status"`
	CreatedAt        time.Time     `json:"created_at"`
	Waiting          order.Waiting `json:"waiting"`
	Items            []BoardItem   `json:"items"`
	PreparedCount    int           `json:"prepared_count"`
	Notified         bool          `json:"notified"`
	CanNotify        bool          `json:"can_notify"`
}

// KitchenService drives the kitchen tracking board.
type KitchenService struct {
	pool      TxBeginner
	store     KitchenStore
	newStore  NewKitchenStore
	confirm   *Confirmer
	publisher notify.Publisher
	events    Broadcaster
}

func NewKitchenService(pool TxBeginner, store KitchenStore, newStore NewKitchenStore, confirm *Confirmer, publisher notify.Publisher, events Broadcaster) *KitchenService {
	return &KitchenService{
		pool:      pool,
		store:     store,
		newStore:  newStore,
		confirm:   confirm,
		publisher: publisher,
		events:    events,
	}
}

// Board returns the outlet's open tickets, oldest first.
func (s *KitchenService) Board(ctx context.Context, outletID uuid.UUID, now time.Time) ([]BoardOrder, error) {
	orders, err := s.store.ListKitchenOrders(ctx, outletID)
	if err != nil {
		return nil, fmt.Errorf("list kitchen orders: %w", err)
	}
	if len(orders) == 0 {
		return []BoardOrder{}, nil
	}

	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	tracking, err := s.store.ListKitchenTrackingByOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list kitchen tracking: %w", err)
	}
	prepared := make(map[uuid.UUID]map[int32]bool, len(orders))
	for _, t := range tracking {
		if prepared[t.OrderID] == nil {
			prepared[t.OrderID] = make(map[int32]bool)
		}
		prepared[t.OrderID][t.ItemIndex] = t.IsPrepared
	}

	board := make([]BoardOrder, 0, len(orders))
	for _, o := range orders {
		items, err := order.DecodeItems(o.Items)
		if err != nil {
			log.Printf("WARN: skip kitchen ticket %s: %v", o.OrderNumber, err)
			continue
		}
		if len(order.RedeemableIndices(items)) == 0 {
			continue
		}
		board = append(board, buildTicket(o, items, prepared[o.ID], now))
	}
	return board, nil
}

func buildTicket(o database.Order, items []order.LineItem, prepared map[int32]bool, now time.Time) BoardOrder {
	status := order.KitchenStatus(o.FnbStatus.String, o.FnbStatus.Valid)
	t := BoardOrder{
		OrderID:          o.ID,
		OrderNumber:      o.OrderNumber,
		CollectionNumber: order.CollectionNumber(o.OrderNumber),
		KitchenStatus:    status,
		CreatedAt:        o.CreatedAt,
		Waiting:          order.WaitingTime(o.CreatedAt, status, o.KitchenStatusChangedAt.Time, now),
		Items:            make([]BoardItem, 0, len(items)),
		Notified:         notifiedThisEpisode(o),
	}
	for i, li := range items {
		if !li.Redeemable() {
			continue
		}
		done := prepared[int32(i)]
		if done {
			t.PreparedCount++
		}
		t.Items = append(t.Items, BoardItem{
			Index:       i,
			ProductName: li.ProductName,
			Quantity:    li.Quantity,
			Modifiers:   li.Modifiers,
			Prepared:    done,
		})
	}
	t.CanNotify = status == enum.KitchenStatusReady && !t.Notified
	return t
}

// notifiedThisEpisode reports whether the customer was notified since the
// order last changed kitchen status.
func notifiedThisEpisode(o database.Order) bool {
	if !o.CustomerNotifiedAt.Valid {
		return false
	}
	if !o.KitchenStatusChangedAt.Valid {
		return true
	}
	return !o.CustomerNotifiedAt.Time.Before(o.KitchenStatusChangedAt.Time)
}

// SetItemPrepared toggles one item's prepared flag.
func (s *KitchenService) SetItemPrepared(ctx context.Context, outletID, orderID uuid.UUID, index int, prepared bool, staffID uuid.UUID) (*database.KitchenItemTracking, error) {
	_, kitchenItems, err := s.openTicket(ctx, s.store, outletID, orderID, false)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(kitchenItems, index) {
		return nil, fmt.Errorf("item[%d]: %w", index, ErrInvalidItemIndex)
	}

	row, err := s.store.UpsertKitchenItem(ctx, database.UpsertKitchenItemParams{
		OrderID:    orderID,
		ItemIndex:  int32(index),
		IsPrepared: prepared,
		StaffID:    uuidOrNull(staffID),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert kitchen item: %w", err)
	}
	return &row, nil
}

// MarkAllPrepared marks every kitchen item prepared and, if the ticket is still
// preparing, advances it to ready in the same transaction.
func (s *KitchenService) MarkAllPrepared(ctx context.Context, outletID, orderID, staffID uuid.UUID) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	o, kitchenItems, err := s.openTicket(ctx, store, outletID, orderID, true)
	if err != nil {
		return nil, err
	}

	for _, i := range kitchenItems {
		_, err := store.UpsertKitchenItem(ctx, database.UpsertKitchenItemParams{
			OrderID:    orderID,
			ItemIndex:  int32(i),
			IsPrepared: true,
			StaffID:    uuidOrNull(staffID),
		})
		if err != nil {
			return nil, fmt.Errorf("item[%d]: upsert kitchen item: %w", i, err)
		}
	}

	result := *o
	if order.KitchenStatus(o.FnbStatus.String, o.FnbStatus.Valid) == enum.KitchenStatusPreparing {
		result, err = store.UpdateKitchenStatus(ctx, database.UpdateKitchenStatusParams{
			ID:         orderID,
			OutletID:   outletID,
			Status:     enum.KitchenStatusReady,
			FromStatus: enum.KitchenStatusPreparing,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrKitchenConflict
			}
			return nil, fmt.Errorf("update kitchen status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &result, nil
}

// Advance applies a single-tap transition: preparing -> ready or
// ready -> collected.
func (s *KitchenService) Advance(ctx context.Context, outletID, orderID uuid.UUID, next string) (*database.Order, error) {
	o, _, err := s.openTicket(ctx, s.store, outletID, orderID, false)
	if err != nil {
		return nil, err
	}
	current := order.KitchenStatus(o.FnbStatus.String, o.FnbStatus.Valid)
	if err := validateKitchenTransition(current, next); err != nil {
		return nil, err
	}
	return s.updateStatus(ctx, outletID, orderID, current, next)
}

// RequestCancel checks the ticket can be cancelled and returns the token
// ConfirmCancel needs.
func (s *KitchenService) RequestCancel(ctx context.Context, outletID, orderID uuid.UUID) (string, error) {
	if _, _, err := s.openTicket(ctx, s.store, outletID, orderID, false); err != nil {
		return "", err
	}
	return s.confirm.Issue(ActionKitchenCancel, outletID, orderID)
}

// ConfirmCancel cancels the ticket. The order's payment and fulfillment
// status are left untouched.
func (s *KitchenService) ConfirmCancel(ctx context.Context, outletID, orderID uuid.UUID, token string) (*database.Order, error) {
	if err := s.confirm.Check(token, ActionKitchenCancel, outletID, orderID); err != nil {
		return nil, err
	}
	o, _, err := s.openTicket(ctx, s.store, outletID, orderID, false)
	if err != nil {
		return nil, err
	}
	current := order.KitchenStatus(o.FnbStatus.String, o.FnbStatus.Valid)
	return s.updateStatus(ctx, outletID, orderID, current, enum.KitchenStatusCancelled)
}

func (s *KitchenService) updateStatus(ctx context.Context, outletID, orderID uuid.UUID, from, to string) (*database.Order, error) {
	updated, err := s.store.UpdateKitchenStatus(ctx, database.UpdateKitchenStatusParams{
		ID:         orderID,
		OutletID:   outletID,
		Status:     to,
		FromStatus: from,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKitchenConflict
		}
		return nil, fmt.Errorf("update kitchen status: %w", err)
	}
	return &updated, nil
}

// NotifyCustomer records an order_ready notification for the order's
// customer, at most once per ready episode. The notification row and the
// notified mark commit together; broker fan-out and the board chime follow
// the commit.
func (s *KitchenService) NotifyCustomer(ctx context.Context, outletID, orderID uuid.UUID) (*database.Notification, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	o, err := store.MarkCustomerNotified(ctx, database.MarkCustomerNotifiedParams{ID: orderID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.notifyRejection(ctx, store, outletID, orderID)
		}
		return nil, fmt.Errorf("mark customer notified: %w", err)
	}

	outlet, err := store.GetOutlet(ctx, outletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOutletNotFound
		}
		return nil, fmt.Errorf("get outlet: %w", err)
	}

	message := order.ReadyMessage(o.OrderNumber, outlet.Name)
	n, err := store.CreateNotification(ctx, database.CreateNotificationParams{
		UserID:           o.UserID,
		OrderID:          uuidOrNull(o.ID),
		NotificationType: enum.NotificationOrderReady,
		Title:            "Order ready",
		Message:          message,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	collection := order.CollectionNumber(o.OrderNumber)
	err = s.publisher.PublishOrderReady(ctx, notify.OrderReady{
		NotificationID:   n.ID,
		OrderID:          o.ID,
		UserID:           o.UserID,
		OutletID:         outletID,
		OrderNumber:      o.OrderNumber,
		CollectionNumber: collection,
		OutletName:       outlet.Name,
		Message:          message,
		NotifiedAt:       o.CustomerNotifiedAt.Time,
	})
	if err != nil {
		log.Printf("WARN: publish order_ready %s: %v", o.OrderNumber, err)
	}

	s.events.BroadcastEvent(ws.OutletRoom(outletID), ws.EventChime, map[string]any{
		"order_id":          o.ID,
		"order_number":      o.OrderNumber,
		"collection_number": collection,
	})

	return &n, nil
}

// notifyRejection explains why MarkCustomerNotified matched no row.
func (s *KitchenService) notifyRejection(ctx context.Context, store KitchenStore, outletID, orderID uuid.UUID) error {
	o, err := store.GetOrder(ctx, database.GetOrderParams{ID: orderID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("get order: %w", err)
	}
	if order.KitchenStatus(o.FnbStatus.String, o.FnbStatus.Valid) != enum.KitchenStatusReady {
		return ErrNotReady
	}
	return ErrAlreadyNotified
}

// openTicket loads an order whose kitchen ticket can still change: paid,
// not cancelled or refunded, kitchen status preparing or ready, and at least
// one item for the kitchen. It also returns the indices of those items;
// wallet top-ups and items without a product never enter kitchen tracking.
func (s *KitchenService) openTicket(ctx context.Context, store KitchenStore, outletID, orderID uuid.UUID, forUpdate bool) (*database.Order, []int, error) {
	var (
		o   database.Order
		err error
	)
	if forUpdate {
		o, err = store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{ID: orderID, OutletID: outletID})
	} else {
		o, err = store.GetOrder(ctx, database.GetOrderParams{ID: orderID, OutletID: outletID})
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrOrderNotFound
		}
		return nil, nil, fmt.Errorf("get order: %w", err)
	}

	if o.PaymentStatus != enum.PaymentStatusPaid || order.IsTerminal(o.Status) {
		return nil, nil, ErrKitchenClosed
	}
	switch order.KitchenStatus(o.FnbStatus.String, o.FnbStatus.Valid) {
	case enum.KitchenStatusPreparing, enum.KitchenStatusReady:
	default:
		return nil, nil, ErrKitchenClosed
	}

	items, err := order.DecodeItems(o.Items)
	if err != nil {
		return nil, nil, err
	}
	kitchenItems := order.RedeemableIndices(items)
	if len(kitchenItems) == 0 {
		return nil, nil, ErrKitchenClosed
	}
	return &o, kitchenItems, nil
}
