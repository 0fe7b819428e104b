package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/enum"
	"github.com/brewloyal/api/internal/notify"
	"github.com/brewloyal/api/internal/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// *database.Queries must satisfy every store the services depend on.
var (
	_ OrderStore        = (*database.Queries)(nil)
	_ RedemptionStore   = (*database.Queries)(nil)
	_ KitchenStore      = (*database.Queries)(nil)
	_ StaffStore        = (*database.Queries)(nil)
	_ NotificationStore = (*database.Queries)(nil)
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr error
	committed bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error { return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner and hands out fresh mockTx values.
type mockTxBeginner struct {
	err error
	txs []*mockTx
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.err != nil {
		return nil, m.err
	}
	tx := &mockTx{}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *mockTxBeginner) commits() int {
	n := 0
	for _, tx := range m.txs {
		if tx.committed {
			n++
		}
	}
	return n
}

// mockStore implements every store interface with configurable behavior.
// Calling a method whose fn is nil panics.
type mockStore struct {
	getNextOrderNumberFn           func(ctx context.Context, outletID uuid.UUID) (int32, error)
	createOrderFn                  func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	getOrderFn                     func(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	getOrderForUpdateFn            func(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	listOrdersFn                   func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	listRedeemableOrdersByUserFn   func(ctx context.Context, userID uuid.UUID) ([]database.Order, error)
	listKitchenOrdersFn            func(ctx context.Context, outletID uuid.UUID) ([]database.Order, error)
	confirmOrderPaymentFn          func(ctx context.Context, arg database.ConfirmOrderPaymentParams) (database.Order, error)
	failOrderPaymentFn             func(ctx context.Context, arg database.FailOrderPaymentParams) (database.Order, error)
	cancelOrderFn                  func(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
	refundOrderFn                  func(ctx context.Context, arg database.RefundOrderParams) (database.Order, error)
	deleteOrderFn                  func(ctx context.Context, arg database.DeleteOrderParams) (int64, error)
	completeOrderRedemptionFn      func(ctx context.Context, arg database.CompleteOrderRedemptionParams) (database.Order, error)
	touchOrderStaffActionFn        func(ctx context.Context, arg database.TouchOrderStaffActionParams) error
	updateKitchenStatusFn          func(ctx context.Context, arg database.UpdateKitchenStatusParams) (database.Order, error)
	markCustomerNotifiedFn         func(ctx context.Context, arg database.MarkCustomerNotifiedParams) (database.Order, error)
	ensureRedemptionFn             func(ctx context.Context, arg database.EnsureRedemptionParams) error
	listRedemptionsByOrderFn       func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemRedemption, error)
	redeemItemFn                   func(ctx context.Context, arg database.RedeemItemParams) (database.OrderItemRedemption, error)
	countPendingRedemptionsFn      func(ctx context.Context, orderID uuid.UUID) (int64, error)
	deleteRedemptionsByOrderFn     func(ctx context.Context, orderID uuid.UUID) error
	listKitchenTrackingByOrdersFn  func(ctx context.Context, orderIds []uuid.UUID) ([]database.KitchenItemTracking, error)
	upsertKitchenItemFn            func(ctx context.Context, arg database.UpsertKitchenItemParams) (database.KitchenItemTracking, error)
	deleteKitchenTrackingByOrderFn func(ctx context.Context, orderID uuid.UUID) error
	getCustomerRewardFn            func(ctx context.Context, id uuid.UUID) (database.CustomerReward, error)
	redeemCustomerRewardFn         func(ctx context.Context, arg database.RedeemCustomerRewardParams) (database.CustomerReward, error)
	listStaffPasscodesForOutletFn  func(ctx context.Context, outletID uuid.UUID) ([]database.StaffPasscode, error)
	touchStaffPasscodeFn           func(ctx context.Context, id uuid.UUID) error
	getOutletFn                    func(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	createNotificationFn           func(ctx context.Context, arg database.CreateNotificationParams) (database.Notification, error)
	listNotificationsByUserFn      func(ctx context.Context, arg database.ListNotificationsByUserParams) ([]database.Notification, error)

	// Audit rows are always recorded.
	redemptionLogs []database.CreateStaffRedemptionLogParams
	scanLogs       []database.CreateStaffScanLogParams
	auditErr       error
}

func (m *mockStore) GetNextOrderNumber(ctx context.Context, outletID uuid.UUID) (int32, error) {
	return m.getNextOrderNumberFn(ctx, outletID)
}
func (m *mockStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	return m.createOrderFn(ctx, arg)
}
func (m *mockStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	return m.getOrderFn(ctx, arg)
}
func (m *mockStore) GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error) {
	return m.getOrderForUpdateFn(ctx, arg)
}
func (m *mockStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	return m.listOrdersFn(ctx, arg)
}
func (m *mockStore) ListRedeemableOrdersByUser(ctx context.Context, userID uuid.UUID) ([]database.Order, error) {
	return m.listRedeemableOrdersByUserFn(ctx, userID)
}
func (m *mockStore) ListKitchenOrders(ctx context.Context, outletID uuid.UUID) ([]database.Order, error) {
	return m.listKitchenOrdersFn(ctx, outletID)
}
func (m *mockStore) ConfirmOrderPayment(ctx context.Context, arg database.ConfirmOrderPaymentParams) (database.Order, error) {
	return m.confirmOrderPaymentFn(ctx, arg)
}
func (m *mockStore) FailOrderPayment(ctx context.Context, arg database.FailOrderPaymentParams) (database.Order, error) {
	return m.failOrderPaymentFn(ctx, arg)
}
func (m *mockStore) CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error) {
	return m.cancelOrderFn(ctx, arg)
}
func (m *mockStore) RefundOrder(ctx context.Context, arg database.RefundOrderParams) (database.Order, error) {
	return m.refundOrderFn(ctx, arg)
}
func (m *mockStore) DeleteOrder(ctx context.Context, arg database.DeleteOrderParams) (int64, error) {
	return m.deleteOrderFn(ctx, arg)
}
func (m *mockStore) CompleteOrderRedemption(ctx context.Context, arg database.CompleteOrderRedemptionParams) (database.Order, error) {
	return m.completeOrderRedemptionFn(ctx, arg)
}
func (m *mockStore) TouchOrderStaffAction(ctx context.Context, arg database.TouchOrderStaffActionParams) error {
	return m.touchOrderStaffActionFn(ctx, arg)
}
func (m *mockStore) UpdateKitchenStatus(ctx context.Context, arg database.UpdateKitchenStatusParams) (database.Order, error) {
	return m.updateKitchenStatusFn(ctx, arg)
}
func (m *mockStore) MarkCustomerNotified(ctx context.Context, arg database.MarkCustomerNotifiedParams) (database.Order, error) {
	return m.markCustomerNotifiedFn(ctx, arg)
}
func (m *mockStore) EnsureRedemption(ctx context.Context, arg database.EnsureRedemptionParams) error {
	return m.ensureRedemptionFn(ctx, arg)
}
func (m *mockStore) ListRedemptionsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemRedemption, error) {
	return m.listRedemptionsByOrderFn(ctx, orderID)
}
func (m *mockStore) RedeemItem(ctx context.Context, arg database.RedeemItemParams) (database.OrderItemRedemption, error) {
	return m.redeemItemFn(ctx, arg)
}
func (m *mockStore) CountPendingRedemptions(ctx context.Context, orderID uuid.UUID) (int64, error) {
	return m.countPendingRedemptionsFn(ctx, orderID)
}
func (m *mockStore) DeleteRedemptionsByOrder(ctx context.Context, orderID uuid.UUID) error {
	return m.deleteRedemptionsByOrderFn(ctx, orderID)
}
func (m *mockStore) ListKitchenTrackingByOrders(ctx context.Context, orderIds []uuid.UUID) ([]database.KitchenItemTracking, error) {
	return m.listKitchenTrackingByOrdersFn(ctx, orderIds)
}
func (m *mockStore) UpsertKitchenItem(ctx context.Context, arg database.UpsertKitchenItemParams) (database.KitchenItemTracking, error) {
	return m.upsertKitchenItemFn(ctx, arg)
}
func (m *mockStore) DeleteKitchenTrackingByOrder(ctx context.Context, orderID uuid.UUID) error {
	return m.deleteKitchenTrackingByOrderFn(ctx, orderID)
}
func (m *mockStore) GetCustomerReward(ctx context.Context, id uuid.UUID) (database.CustomerReward, error) {
	return m.getCustomerRewardFn(ctx, id)
}
func (m *mockStore) RedeemCustomerReward(ctx context.Context, arg database.RedeemCustomerRewardParams) (database.CustomerReward, error) {
	return m.redeemCustomerRewardFn(ctx, arg)
}
func (m *mockStore) ListStaffPasscodesForOutlet(ctx context.Context, outletID uuid.UUID) ([]database.StaffPasscode, error) {
	return m.listStaffPasscodesForOutletFn(ctx, outletID)
}
func (m *mockStore) TouchStaffPasscode(ctx context.Context, id uuid.UUID) error {
	return m.touchStaffPasscodeFn(ctx, id)
}
func (m *mockStore) GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error) {
	return m.getOutletFn(ctx, id)
}
func (m *mockStore) CreateNotification(ctx context.Context, arg database.CreateNotificationParams) (database.Notification, error) {
	return m.createNotificationFn(ctx, arg)
}
func (m *mockStore) ListNotificationsByUser(ctx context.Context, arg database.ListNotificationsByUserParams) ([]database.Notification, error) {
	return m.listNotificationsByUserFn(ctx, arg)
}
func (m *mockStore) CreateStaffRedemptionLog(ctx context.Context, arg database.CreateStaffRedemptionLogParams) (database.LogStaffRedemption, error) {
	if m.auditErr != nil {
		return database.LogStaffRedemption{}, m.auditErr
	}
	m.redemptionLogs = append(m.redemptionLogs, arg)
	return database.LogStaffRedemption{ID: uuid.New(), Success: arg.Success}, nil
}
func (m *mockStore) CreateStaffScanLog(ctx context.Context, arg database.CreateStaffScanLogParams) (database.StaffScanLog, error) {
	if m.auditErr != nil {
		return database.StaffScanLog{}, m.auditErr
	}
	m.scanLogs = append(m.scanLogs, arg)
	return database.StaffScanLog{ID: uuid.New(), Success: arg.Success}, nil
}

// mockPublisher records published notifications.
type mockPublisher struct {
	err       error
	published []notify.OrderReady
}

func (m *mockPublisher) PublishOrderReady(ctx context.Context, msg notify.OrderReady) error {
	m.published = append(m.published, msg)
	return m.err
}

// mockBroadcaster records websocket events.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []broadcastCall
}

type broadcastCall struct {
	room      string
	eventType string
	payload   any
}

func (m *mockBroadcaster) BroadcastEvent(room, eventType string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, broadcastCall{room: room, eventType: eventType, payload: payload})
}

// --- Test helpers ---

const testSecret = "test-secret"

func testConfirmer() *Confirmer {
	return NewConfirmer(testSecret, time.Minute)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	return order.NumericToDecimal(n).Equal(dec(expected))
}

func mustItems(t *testing.T, items []order.LineItem) json.RawMessage {
	t.Helper()
	raw, err := order.EncodeItems(items)
	if err != nil {
		t.Fatalf("encode items: %v", err)
	}
	return raw
}

// threeItems is ORD-0042: three redeemable drinks.
func threeItems() []order.LineItem {
	return []order.LineItem{
		{ProductID: "p-latte", ProductName: "Latte", Quantity: 1, UnitPrice: dec("4.50")},
		{ProductID: "p-mocha", ProductName: "Mocha", Quantity: 2, UnitPrice: dec("5.00")},
		{ProductID: "p-tea", ProductName: "Green Tea", Quantity: 1, UnitPrice: dec("3.00")},
	}
}

func paidOrder(t *testing.T, outletID uuid.UUID, number string, items []order.LineItem) database.Order {
	t.Helper()
	return database.Order{
		ID:            uuid.New(),
		OutletID:      outletID,
		UserID:        uuid.New(),
		OrderNumber:   number,
		Items:         mustItems(t, items),
		PaymentStatus: enum.PaymentStatusPaid,
		Status:        enum.OrderStatusReady,
		QrCode:        pgtype.Text{String: "QR-" + uuid.NewString(), Valid: true},
		CreatedAt:     time.Now().Add(-3 * time.Minute),
	}
}
