package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/enum"
	"github.com/brewloyal/api/internal/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ledgerFake backs the redemption store methods with an in-memory ledger
// for a single order.
type ledgerFake struct {
	order     database.Order
	entries   map[int32]*database.OrderItemRedemption
	completed int
	touched   int
}

func newLedgerFake(o database.Order) *ledgerFake {
	return &ledgerFake{order: o, entries: make(map[int32]*database.OrderItemRedemption)}
}

func (f *ledgerFake) wire(store *mockStore) {
	store.getOrderForUpdateFn = func(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error) {
		if arg.ID != f.order.ID || arg.OutletID != f.order.OutletID {
			return database.Order{}, pgx.ErrNoRows
		}
		return f.order, nil
	}
	store.ensureRedemptionFn = func(ctx context.Context, arg database.EnsureRedemptionParams) error {
		if _, ok := f.entries[arg.ItemIndex]; !ok {
			f.entries[arg.ItemIndex] = &database.OrderItemRedemption{
				ID:          uuid.New(),
				OrderID:     arg.OrderID,
				ItemIndex:   arg.ItemIndex,
				ProductName: arg.ProductName,
				Quantity:    arg.Quantity,
				Status:      enum.LedgerStatusPending,
			}
		}
		return nil
	}
	store.redeemItemFn = func(ctx context.Context, arg database.RedeemItemParams) (database.OrderItemRedemption, error) {
		e, ok := f.entries[arg.ItemIndex]
		if !ok || e.Status != enum.LedgerStatusPending {
			return database.OrderItemRedemption{}, pgx.ErrNoRows
		}
		e.Status = enum.LedgerStatusCompleted
		e.RedeemedQuantity = e.Quantity
		e.RedeemedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
		e.RedeemedAtOutletID = arg.OutletID
		e.RedemptionMethod = arg.RedemptionMethod
		return *e, nil
	}
	store.countPendingRedemptionsFn = func(ctx context.Context, orderID uuid.UUID) (int64, error) {
		var n int64
		for _, e := range f.entries {
			if e.Status == enum.LedgerStatusPending {
				n++
			}
		}
		return n, nil
	}
	store.completeOrderRedemptionFn = func(ctx context.Context, arg database.CompleteOrderRedemptionParams) (database.Order, error) {
		f.completed++
		f.order.Status = enum.OrderStatusCompleted
		f.order.StaffNameLastAction = arg.StaffName
		return f.order, nil
	}
	store.touchOrderStaffActionFn = func(ctx context.Context, arg database.TouchOrderStaffActionParams) error {
		f.touched++
		f.order.StaffNameLastAction = arg.StaffName
		return nil
	}
	store.listRedemptionsByOrderFn = func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemRedemption, error) {
		out := make([]database.OrderItemRedemption, 0, len(f.entries))
		for _, e := range f.entries {
			out = append(out, *e)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ItemIndex < out[j].ItemIndex })
		return out, nil
	}
}

func newTestRedemptionService(store *mockStore) (*RedemptionService, *mockTxBeginner) {
	pool := &mockTxBeginner{}
	newStore := func(db database.DBTX) RedemptionStore { return store }
	return NewRedemptionService(pool, store, newStore), pool
}

var dina = StaffIdentity{StaffID: uuid.New(), StaffName: "Dina"}

// ===========================================================================
// Order items
// ===========================================================================

func TestConfirm_PartialThenComplete(t *testing.T) {
	outletID := uuid.New()
	o := paidOrder(t, outletID, "ORD-0042", threeItems())
	ledger := newLedgerFake(o)
	store := &mockStore{}
	ledger.wire(store)
	svc, pool := newTestRedemptionService(store)
	ctx := context.Background()

	res, err := svc.Confirm(ctx, dina, OrderItems{OrderID: o.ID, OutletID: outletID, Indices: []int{0, 2}})
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if res.Progress != enum.RedemptionProgressPartial || res.OrderCompleted {
		t.Errorf("expected partial progress, got %s completed=%v", res.Progress, res.OrderCompleted)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(res.Entries))
	}
	if res.Entries[1].Status != enum.LedgerStatusPending {
		t.Error("item 1 should still be pending")
	}
	if ledger.touched != 1 || ledger.completed != 0 {
		t.Errorf("partial redeem should only touch the order (touched=%d completed=%d)", ledger.touched, ledger.completed)
	}
	if ledger.order.StaffNameLastAction.String != "Dina" {
		t.Error("staff name of the last action should be recorded")
	}

	res, err = svc.Confirm(ctx, dina, OrderItems{OrderID: o.ID, OutletID: outletID, Indices: []int{1}})
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if res.Progress != enum.RedemptionProgressCompleted || !res.OrderCompleted {
		t.Errorf("expected completed, got %s completed=%v", res.Progress, res.OrderCompleted)
	}
	if ledger.completed != 1 {
		t.Errorf("order should be completed exactly once, got %d", ledger.completed)
	}
	if pool.commits() != 2 {
		t.Errorf("expected 2 commits, got %d", pool.commits())
	}

	if len(store.redemptionLogs) != 2 || len(store.scanLogs) != 2 {
		t.Fatalf("expected one redemption and one scan log per confirm, got %d/%d", len(store.redemptionLogs), len(store.scanLogs))
	}
	first := store.redemptionLogs[0]
	if !first.Success || first.RedemptionType != enum.RedemptionTypeOrder || first.ReferenceID.Bytes != o.ID {
		t.Errorf("unexpected audit row %+v", first)
	}
	var items []map[string]any
	if err := json.Unmarshal(first.Items, &items); err != nil {
		t.Fatalf("decode audit items: %v", err)
	}
	if len(items) != 2 || items[0]["name"] != "Latte" || items[1]["name"] != "Green Tea" {
		t.Errorf("unexpected audit items %v", items)
	}
	if store.scanLogs[0].OrderNumber.String != "ORD-0042" {
		t.Errorf("scan log should carry the order number, got %+v", store.scanLogs[0].OrderNumber)
	}
}

func TestConfirm_AlreadyRedeemed(t *testing.T) {
	outletID := uuid.New()
	o := paidOrder(t, outletID, "ORD-0042", threeItems())
	ledger := newLedgerFake(o)
	store := &mockStore{}
	ledger.wire(store)
	svc, pool := newTestRedemptionService(store)
	ctx := context.Background()

	if _, err := svc.Confirm(ctx, dina, OrderItems{OrderID: o.ID, OutletID: outletID, Indices: []int{0}}); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	_, err := svc.Confirm(ctx, dina, OrderItems{OrderID: o.ID, OutletID: outletID, Indices: []int{0}})
	if !errors.Is(err, ErrAlreadyRedeemed) {
		t.Fatalf("expected ErrAlreadyRedeemed, got %v", err)
	}
	if pool.commits() != 1 {
		t.Errorf("failed confirm must not commit, got %d commits", pool.commits())
	}

	if len(store.redemptionLogs) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(store.redemptionLogs))
	}
	failed := store.redemptionLogs[1]
	if failed.Success {
		t.Error("second audit row should record a failure")
	}
	var meta map[string]any
	if err := json.Unmarshal(failed.Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	reason, _ := meta["reason"].(string)
	if !strings.Contains(reason, "already redeemed") {
		t.Errorf("expected already redeemed reason, got %q", reason)
	}
	scan := store.scanLogs[1]
	if scan.Success || !scan.ErrorMessage.Valid {
		t.Errorf("scan log should record the failure, got %+v", scan)
	}
}

func TestConfirm_BatchWithRedeemedItemFails(t *testing.T) {
	outletID := uuid.New()
	o := paidOrder(t, outletID, "ORD-0042", threeItems())
	ledger := newLedgerFake(o)
	store := &mockStore{}
	ledger.wire(store)
	svc, pool := newTestRedemptionService(store)
	ctx := context.Background()

	if _, err := svc.Confirm(ctx, dina, OrderItems{OrderID: o.ID, OutletID: outletID, Indices: []int{2}}); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	_, err := svc.Confirm(ctx, dina, OrderItems{OrderID: o.ID, OutletID: outletID, Indices: []int{1, 2}})
	if !errors.Is(err, ErrAlreadyRedeemed) {
		t.Fatalf("expected ErrAlreadyRedeemed, got %v", err)
	}
	if !strings.Contains(err.Error(), "item[2]") {
		t.Errorf("error should name the redeemed item, got %v", err)
	}
	if pool.commits() != 1 {
		t.Errorf("batch must be rolled back, got %d commits", pool.commits())
	}
	if ledger.completed != 0 {
		t.Error("order must not complete on a failed batch")
	}
}

func TestConfirm_SelectionValidation(t *testing.T) {
	items := append(threeItems(), order.LineItem{
		ProductID: "topup", ProductName: "Wallet", Kind: enum.ItemKindWalletTopUp, Quantity: 1, UnitPrice: dec("10"),
	})
	tests := []struct {
		name    string
		indices []int
		want    error
	}{
		{"none", nil, ErrNoItemsSelected},
		{"out of range", []int{7}, ErrInvalidItemIndex},
		{"negative", []int{-1}, ErrInvalidItemIndex},
		{"wallet top-up", []int{3}, ErrInvalidItemIndex},
		{"duplicate", []int{1, 1}, ErrDuplicateItemIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outletID := uuid.New()
			o := paidOrder(t, outletID, "ORD-0042", items)
			ledger := newLedgerFake(o)
			store := &mockStore{}
			ledger.wire(store)
			svc, pool := newTestRedemptionService(store)

			_, err := svc.Confirm(context.Background(), dina, OrderItems{OrderID: o.ID, OutletID: outletID, Indices: tt.indices})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if pool.commits() != 0 {
				t.Error("invalid selection must not commit")
			}
			if len(ledger.entries) != 0 {
				t.Error("ledger must not be touched by an invalid selection")
			}
			if len(store.redemptionLogs) != 1 {
				t.Errorf("expected one failure audit row, got %d", len(store.redemptionLogs))
			}
		})
	}
}

func TestConfirm_NotRedeemable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *database.Order)
	}{
		{"unpaid", func(o *database.Order) { o.PaymentStatus = enum.PaymentStatusPending }},
		{"completed", func(o *database.Order) { o.Status = enum.OrderStatusCompleted }},
		{"cancelled", func(o *database.Order) { o.Status = enum.OrderStatusCancelled }},
		{"missing QR", func(o *database.Order) { o.QrCode = pgtype.Text{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outletID := uuid.New()
			o := paidOrder(t, outletID, "ORD-0042", threeItems())
			tt.mutate(&o)
			ledger := newLedgerFake(o)
			store := &mockStore{}
			ledger.wire(store)
			svc, _ := newTestRedemptionService(store)

			_, err := svc.Confirm(context.Background(), dina, OrderItems{OrderID: o.ID, OutletID: outletID, Indices: []int{0}})
			if !errors.Is(err, ErrNotRedeemable) {
				t.Fatalf("expected ErrNotRedeemable, got %v", err)
			}
			if len(ledger.entries) != 0 {
				t.Error("ledger must not be created for a non-redeemable order")
			}
		})
	}
}

func TestConfirm_OrderOfOtherOutlet(t *testing.T) {
	o := paidOrder(t, uuid.New(), "ORD-0042", threeItems())
	ledger := newLedgerFake(o)
	store := &mockStore{}
	ledger.wire(store)
	svc, _ := newTestRedemptionService(store)

	_, err := svc.Confirm(context.Background(), dina, OrderItems{OrderID: o.ID, OutletID: uuid.New(), Indices: []int{0}})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestEnsureLedger_SkipsNonRedeemable(t *testing.T) {
	items := []order.LineItem{
		{ProductID: "p-latte", ProductName: "Latte", Quantity: 1, UnitPrice: dec("4")},
		{ProductID: "topup", ProductName: "Wallet", Kind: enum.ItemKindWalletTopUp, Quantity: 1, UnitPrice: dec("10")},
		{ProductName: "Custom", Quantity: 1, UnitPrice: dec("2")},
	}
	o := paidOrder(t, uuid.New(), "ORD-0001", items)
	ledger := newLedgerFake(o)
	store := &mockStore{}
	ledger.wire(store)

	if err := EnsureLedger(context.Background(), store, o, items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Calling twice leaves the existing entry alone.
	ledger.entries[0].Status = enum.LedgerStatusCompleted
	if err := EnsureLedger(context.Background(), store, o, items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(ledger.entries))
	}
	if ledger.entries[0].Status != enum.LedgerStatusCompleted {
		t.Error("existing entry must not be reset")
	}
}

// ===========================================================================
// Rewards
// ===========================================================================

func rewardStore(reward database.CustomerReward) *mockStore {
	return &mockStore{
		getCustomerRewardFn: func(ctx context.Context, id uuid.UUID) (database.CustomerReward, error) {
			if id != reward.ID {
				return database.CustomerReward{}, pgx.ErrNoRows
			}
			return reward, nil
		},
		redeemCustomerRewardFn: func(ctx context.Context, arg database.RedeemCustomerRewardParams) (database.CustomerReward, error) {
			redeemed := reward
			redeemed.Status = enum.RewardStatusCompleted
			redeemed.RedeemedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
			redeemed.RedeemedAtOutletID = arg.OutletID
			redeemed.StaffName = arg.StaffName
			return redeemed, nil
		},
	}
}

func TestConfirm_Reward(t *testing.T) {
	reward := database.CustomerReward{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		RewardType: enum.RedemptionTypeStamp,
		RewardName: "Free Latte",
		Quantity:   1,
		Status:     enum.RewardStatusPending,
	}
	store := rewardStore(reward)
	svc, pool := newTestRedemptionService(store)
	outletID := uuid.New()

	res, err := svc.Confirm(context.Background(), dina, SingleReward{RewardID: reward.ID, OutletID: outletID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Type != enum.RedemptionTypeStamp || !res.OrderCompleted {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Entries) != 1 || res.Entries[0].ProductName != "Free Latte" || res.Entries[0].Status != enum.LedgerStatusCompleted {
		t.Errorf("expected one synthetic completed entry, got %+v", res.Entries)
	}
	if res.Reward.StaffName.String != "Dina" || res.Reward.RedeemedAtOutletID.Bytes != outletID {
		t.Errorf("reward should record staff and outlet, got %+v", res.Reward)
	}
	if pool.commits() != 1 {
		t.Errorf("expected 1 commit, got %d", pool.commits())
	}
	if len(store.redemptionLogs) != 1 || store.redemptionLogs[0].RedemptionType != enum.RedemptionTypeStamp {
		t.Errorf("expected one stamp audit row, got %+v", store.redemptionLogs)
	}
	if desc := store.scanLogs[0].Description; !strings.Contains(desc, "Free Latte") {
		t.Errorf("scan description should name the reward, got %q", desc)
	}
}

func TestConfirm_RewardErrors(t *testing.T) {
	pending := database.CustomerReward{ID: uuid.New(), RewardType: enum.RedemptionTypeGift, Status: enum.RewardStatusPending}
	done := pending
	done.Status = enum.RewardStatusCompleted

	tests := []struct {
		name  string
		store *mockStore
		id    uuid.UUID
		want  error
	}{
		{"not found", rewardStore(pending), uuid.New(), ErrRewardNotFound},
		{"already redeemed", rewardStore(done), done.ID, ErrRewardAlreadyRedeemed},
		{"lost race", func() *mockStore {
			s := rewardStore(pending)
			s.redeemCustomerRewardFn = func(ctx context.Context, arg database.RedeemCustomerRewardParams) (database.CustomerReward, error) {
				return database.CustomerReward{}, pgx.ErrNoRows
			}
			return s
		}(), pending.ID, ErrRewardAlreadyRedeemed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, pool := newTestRedemptionService(tt.store)
			_, err := svc.Confirm(context.Background(), dina, SingleReward{RewardID: tt.id, OutletID: uuid.New()})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if pool.commits() != 0 {
				t.Error("failed reward redemption must not commit")
			}
			if len(tt.store.redemptionLogs) != 1 || tt.store.redemptionLogs[0].Success {
				t.Errorf("expected one failure audit row, got %+v", tt.store.redemptionLogs)
			}
		})
	}
}
