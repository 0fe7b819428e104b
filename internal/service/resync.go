package service

import (
	"context"
	"fmt"
	"time"

	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/ws"
	"github.com/google/uuid"
)

const snapshotNotificationLimit = 20

// NotificationStore lists a customer's notifications.
// Satisfied by *database.Queries.
type NotificationStore interface {
	ListNotificationsByUser(ctx context.Context, arg database.ListNotificationsByUserParams) ([]database.Notification, error)
}

// OutletSnapshot is the full state pushed to an outlet room.
type OutletSnapshot struct {
	Room    string           `json:"room"`
	Kitchen []BoardOrder     `json:"kitchen"`
	Orders  []database.Order `json:"orders"`
}

// CustomerSnapshot is the full state pushed to a customer room.
type CustomerSnapshot struct {
	Room          string                  `json:"room"`
	Redeemable    []database.Order        `json:"redeemable"`
	Notifications []database.Notification `json:"notifications"`
}

// Snapshots rebuilds room state from the store. It is the single resync
// routine behind feed reconnects and client resync requests.
type Snapshots struct {
	orders        *OrderService
	kitchen       *KitchenService
	notifications NotificationStore
	now           func() time.Time
}

func NewSnapshots(orders *OrderService, kitchen *KitchenService, notifications NotificationStore) *Snapshots {
	return &Snapshots{orders: orders, kitchen: kitchen, notifications: notifications, now: time.Now}
}

// Snapshot implements ws.Resyncer.
func (s *Snapshots) Snapshot(ctx context.Context, room string) (ws.Event, error) {
	kind, id, err := ws.ParseRoom(room)
	if err != nil {
		return ws.Event{}, err
	}
	switch kind {
	case ws.RoomOutlet:
		snap, err := s.outlet(ctx, room, id)
		if err != nil {
			return ws.Event{}, err
		}
		return ws.NewEvent(ws.EventSnapshot, snap)
	default:
		snap, err := s.customer(ctx, room, id)
		if err != nil {
			return ws.Event{}, err
		}
		return ws.NewEvent(ws.EventSnapshot, snap)
	}
}

func (s *Snapshots) outlet(ctx context.Context, room string, outletID uuid.UUID) (*OutletSnapshot, error) {
	board, err := s.kitchen.Board(ctx, outletID, s.now())
	if err != nil {
		return nil, fmt.Errorf("snapshot kitchen board: %w", err)
	}
	orders, err := s.orders.ListOrders(ctx, ListOrdersRequest{OutletID: outletID})
	if err != nil {
		return nil, fmt.Errorf("snapshot orders: %w", err)
	}
	return &OutletSnapshot{Room: room, Kitchen: board, Orders: orders}, nil
}

func (s *Snapshots) customer(ctx context.Context, room string, userID uuid.UUID) (*CustomerSnapshot, error) {
	redeemable, err := s.orders.ListRedeemableOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("snapshot redeemable orders: %w", err)
	}
	notes, err := s.notifications.ListNotificationsByUser(ctx, database.ListNotificationsByUserParams{
		UserID: userID,
		Limit:  snapshotNotificationLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot notifications: %w", err)
	}
	return &CustomerSnapshot{Room: room, Redeemable: redeemable, Notifications: notes}, nil
}
