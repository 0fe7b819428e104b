package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/enum"
	"github.com/brewloyal/api/internal/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Errors returned by the redemption service.
var (
	ErrNotRedeemable         = errors.New("order is not redeemable")
	ErrNoItemsSelected       = errors.New("no items selected")
	ErrInvalidItemIndex      = errors.New("item index out of range or not redeemable")
	ErrDuplicateItemIndex    = errors.New("item selected more than once")
	ErrAlreadyRedeemed       = errors.New("item already redeemed")
	ErrRewardNotFound        = errors.New("reward not found")
	ErrRewardAlreadyRedeemed = errors.New("reward already redeemed")
	ErrUnknownRedeemable     = errors.New("unknown redeemable kind")
)

// RedemptionStore defines the DB methods needed to confirm redemptions and
// write their audit trail. Satisfied by *database.Queries.
type RedemptionStore interface {
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	EnsureRedemption(ctx context.Context, arg database.EnsureRedemptionParams) error
	ListRedemptionsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemRedemption, error)
	RedeemItem(ctx context.Context, arg database.RedeemItemParams) (database.OrderItemRedemption, error)
	CountPendingRedemptions(ctx context.Context, orderID uuid.UUID) (int64, error)
	CompleteOrderRedemption(ctx context.Context, arg database.CompleteOrderRedemptionParams) (database.Order, error)
	TouchOrderStaffAction(ctx context.Context, arg database.TouchOrderStaffActionParams) error
	GetCustomerReward(ctx context.Context, id uuid.UUID) (database.CustomerReward, error)
	RedeemCustomerReward(ctx context.Context, arg database.RedeemCustomerRewardParams) (database.CustomerReward, error)
	CreateStaffRedemptionLog(ctx context.Context, arg database.CreateStaffRedemptionLogParams) (database.LogStaffRedemption, error)
	CreateStaffScanLog(ctx context.Context, arg database.CreateStaffScanLogParams) (database.StaffScanLog, error)
}

// NewRedemptionStore creates a RedemptionStore from a DBTX (pool or tx).
type NewRedemptionStore func(db database.DBTX) RedemptionStore

// Redeemable is what a staff member can redeem: OrderItems or
// SingleReward.
type Redeemable interface {
	redemptionType() string
	referenceID() uuid.UUID
	outletID() uuid.UUID
}

// OrderItems selects line items of an order by their item index.
type OrderItems struct {
	OrderID  uuid.UUID
	OutletID uuid.UUID
	Indices  []int
}

func (r OrderItems) redemptionType() string { return enum.RedemptionTypeOrder }
func (r OrderItems) referenceID() uuid.UUID { return r.OrderID }
func (r OrderItems) outletID() uuid.UUID    { return r.OutletID }

// SingleReward is a gift or stamp entitlement, redeemed as one synthetic
// ledger entry.
type SingleReward struct {
	RewardID uuid.UUID
	OutletID uuid.UUID
}

func (r SingleReward) redemptionType() string { return enum.RedemptionTypeGift }
func (r SingleReward) referenceID() uuid.UUID { return r.RewardID }
func (r SingleReward) outletID() uuid.UUID    { return r.OutletID }

// RedemptionResult is the outcome of a successful confirmation.
// OrderCompleted is set when the batch redeemed the last pending entry.
type RedemptionResult struct {
	Type           string                         `json:"redemption_type"`
	ReferenceID    uuid.UUID                      `json:"reference_id"`
	OrderNumber    string                         `json:"order_number,omitempty"`
	Entries        []database.OrderItemRedemption `json:"entries"`
	Progress       string                         `json:"progress"`
	OrderCompleted bool                           `json:"order_completed"`
	Reward         *database.CustomerReward       `json:"reward,omitempty"`
}

// auditItem is one element of log_staff_redemption.items.
type auditItem struct {
	ItemIndex int    `json:"item_index"`
	Name      string `json:"name,omitempty"`
	Quantity  int32  `json:"quantity,omitempty"`
}

// attempt accumulates what is known about a confirmation for its audit
// rows, whether it succeeds or fails part way.
type attempt struct {
	kind        string
	outletID    uuid.UUID
	referenceID uuid.UUID
	orderNumber string
	items       []auditItem
}

// RedemptionService confirms staff redemptions against the item ledger.
type RedemptionService struct {
	pool     TxBeginner
	store    RedemptionStore
	newStore NewRedemptionStore
}

func NewRedemptionService(pool TxBeginner, store RedemptionStore, newStore NewRedemptionStore) *RedemptionService {
	return &RedemptionService{pool: pool, store: store, newStore: newStore}
}

// Confirm redeems r on behalf of staff in one transaction. Ledger rows are
// only moved pending -> completed with a conditional update, so a
// concurrent confirm of the same entry fails the whole batch with
// ErrAlreadyRedeemed. Every call writes exactly one log_staff_redemption
// row and one staff_scan_logs row: inside the transaction on success,
// after rollback on failure.
func (s *RedemptionService) Confirm(ctx context.Context, staff StaffIdentity, r Redeemable) (*RedemptionResult, error) {
	att := &attempt{
		kind:        r.redemptionType(),
		outletID:    r.outletID(),
		referenceID: r.referenceID(),
	}

	var (
		res *RedemptionResult
		err error
	)
	switch v := r.(type) {
	case OrderItems:
		for _, idx := range v.Indices {
			att.items = append(att.items, auditItem{ItemIndex: idx})
		}
		res, err = s.confirmOrderItems(ctx, staff, v, att)
	case SingleReward:
		res, err = s.confirmReward(ctx, staff, v, att)
	default:
		return nil, ErrUnknownRedeemable
	}

	if err != nil {
		if auditErr := writeAudit(ctx, s.store, staff, att, err); auditErr != nil {
			log.Printf("ERROR: write redemption audit for %s: %v", att.referenceID, auditErr)
		}
		return nil, err
	}
	return res, nil
}

// EnsureLedger creates the missing ledger entries for every redeemable line
// item of o. Existing entries are left untouched.
func EnsureLedger(ctx context.Context, store RedemptionStore, o database.Order, items []order.LineItem) error {
	for _, idx := range order.RedeemableIndices(items) {
		li := items[idx]
		err := store.EnsureRedemption(ctx, database.EnsureRedemptionParams{
			OrderID:     o.ID,
			ItemIndex:   int32(idx),
			ProductName: li.ProductName,
			Quantity:    li.Quantity,
		})
		if err != nil {
			return fmt.Errorf("ensure ledger entry %d: %w", idx, err)
		}
	}
	return nil
}

func (s *RedemptionService) confirmOrderItems(ctx context.Context, staff StaffIdentity, req OrderItems, att *attempt) (*RedemptionResult, error) {
	if len(req.Indices) == 0 {
		return nil, ErrNoItemsSelected
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	o, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{ID: req.OrderID, OutletID: req.OutletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	att.orderNumber = o.OrderNumber

	if !order.IsRedeemable(o.PaymentStatus, o.Status, o.QrCode.String) {
		return nil, ErrNotRedeemable
	}

	items, err := order.DecodeItems(o.Items)
	if err != nil {
		return nil, err
	}
	if err := validateSelection(items, req.Indices); err != nil {
		return nil, err
	}
	for i, idx := range req.Indices {
		att.items[i] = auditItem{ItemIndex: idx, Name: items[idx].ProductName, Quantity: items[idx].Quantity}
	}

	if err := EnsureLedger(ctx, store, o, items); err != nil {
		return nil, err
	}

	for _, idx := range req.Indices {
		_, err := store.RedeemItem(ctx, database.RedeemItemParams{
			OrderID:          o.ID,
			ItemIndex:        int32(idx),
			OutletID:         uuidOrNull(req.OutletID),
			RedemptionMethod: pgtype.Text{String: enum.RedemptionMethodScan, Valid: true},
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("item[%d]: %w", idx, ErrAlreadyRedeemed)
			}
			return nil, fmt.Errorf("item[%d]: redeem: %w", idx, err)
		}
	}

	pending, err := store.CountPendingRedemptions(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("count pending redemptions: %w", err)
	}

	staffName := pgtype.Text{String: staff.StaffName, Valid: staff.StaffName != ""}
	completed := pending == 0
	if completed {
		_, err := store.CompleteOrderRedemption(ctx, database.CompleteOrderRedemptionParams{ID: o.ID, StaffName: staffName})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotRedeemable
			}
			return nil, fmt.Errorf("complete order: %w", err)
		}
	} else {
		err := store.TouchOrderStaffAction(ctx, database.TouchOrderStaffActionParams{ID: o.ID, StaffName: staffName})
		if err != nil {
			return nil, fmt.Errorf("touch order: %w", err)
		}
	}

	entries, err := store.ListRedemptionsByOrder(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}

	if err := writeAudit(ctx, store, staff, att, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &RedemptionResult{
		Type:           enum.RedemptionTypeOrder,
		ReferenceID:    o.ID,
		OrderNumber:    o.OrderNumber,
		Entries:        entries,
		Progress:       ledgerProgress(entries),
		OrderCompleted: completed,
	}, nil
}

func validateSelection(items []order.LineItem, indices []int) error {
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(items) || !items[idx].Redeemable() {
			return fmt.Errorf("item[%d]: %w", idx, ErrInvalidItemIndex)
		}
		if seen[idx] {
			return fmt.Errorf("item[%d]: %w", idx, ErrDuplicateItemIndex)
		}
		seen[idx] = true
	}
	return nil
}

func (s *RedemptionService) confirmReward(ctx context.Context, staff StaffIdentity, req SingleReward, att *attempt) (*RedemptionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	reward, err := store.GetCustomerReward(ctx, req.RewardID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("get reward: %w", err)
	}
	att.kind = reward.RewardType
	att.items = []auditItem{{ItemIndex: 0, Name: reward.RewardName, Quantity: reward.Quantity}}

	if reward.Status != enum.RewardStatusPending {
		return nil, ErrRewardAlreadyRedeemed
	}

	redeemed, err := store.RedeemCustomerReward(ctx, database.RedeemCustomerRewardParams{
		ID:        reward.ID,
		OutletID:  uuidOrNull(req.OutletID),
		StaffName: pgtype.Text{String: staff.StaffName, Valid: staff.StaffName != ""},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRewardAlreadyRedeemed
		}
		return nil, fmt.Errorf("redeem reward: %w", err)
	}

	if err := writeAudit(ctx, store, staff, att, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	entry := database.OrderItemRedemption{
		OrderID:            redeemed.ID,
		ItemIndex:          0,
		ProductName:        redeemed.RewardName,
		Quantity:           redeemed.Quantity,
		RedeemedQuantity:   redeemed.Quantity,
		Status:             enum.LedgerStatusCompleted,
		RedeemedAt:         redeemed.RedeemedAt,
		RedeemedAtOutletID: redeemed.RedeemedAtOutletID,
		RedemptionMethod:   pgtype.Text{String: enum.RedemptionMethodScan, Valid: true},
	}
	return &RedemptionResult{
		Type:           redeemed.RewardType,
		ReferenceID:    redeemed.ID,
		Entries:        []database.OrderItemRedemption{entry},
		Progress:       enum.RedemptionProgressCompleted,
		OrderCompleted: true,
		Reward:         &redeemed,
	}, nil
}

// writeAudit appends the log_staff_redemption row and the staff_scan_logs
// row for one confirmation attempt. cause is nil on success.
func writeAudit(ctx context.Context, store RedemptionStore, staff StaffIdentity, att *attempt, cause error) error {
	items := att.items
	if items == nil {
		items = []auditItem{}
	}
	rawItems, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal audit items: %w", err)
	}

	meta := map[string]any{"staff_name": staff.StaffName}
	if cause != nil {
		meta["reason"] = cause.Error()
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	kind := att.kind

	_, err = store.CreateStaffRedemptionLog(ctx, database.CreateStaffRedemptionLogParams{
		StaffPasscodeID: uuidOrNull(staff.StaffID),
		OutletID:        uuidOrNull(att.outletID),
		RedemptionType:  kind,
		ReferenceID:     uuidOrNull(att.referenceID),
		Items:           rawItems,
		Success:         cause == nil,
		Metadata:        rawMeta,
	})
	if err != nil {
		return fmt.Errorf("create redemption log: %w", err)
	}

	var errMsg pgtype.Text
	if cause != nil {
		errMsg = pgtype.Text{String: cause.Error(), Valid: true}
	}
	_, err = store.CreateStaffScanLog(ctx, database.CreateStaffScanLogParams{
		OutletID:     uuidOrNull(att.outletID),
		StaffName:    pgtype.Text{String: staff.StaffName, Valid: staff.StaffName != ""},
		ScanType:     kind,
		ReferenceID:  uuidOrNull(att.referenceID),
		OrderNumber:  textOrNull(att.orderNumber),
		Description:  scanDescription(att, cause == nil),
		Success:      cause == nil,
		ErrorMessage: errMsg,
	})
	if err != nil {
		return fmt.Errorf("create scan log: %w", err)
	}
	return nil
}

func scanDescription(att *attempt, ok bool) string {
	subject := att.orderNumber
	if subject == "" {
		subject = att.referenceID.String()
	}
	if att.kind != enum.RedemptionTypeOrder && len(att.items) == 1 && att.items[0].Name != "" {
		subject = att.items[0].Name
	}
	if !ok {
		return fmt.Sprintf("Redemption failed: %s %s", att.kind, subject)
	}
	if att.kind == enum.RedemptionTypeOrder {
		return fmt.Sprintf("Redeemed %d item(s) from %s", len(att.items), subject)
	}
	return fmt.Sprintf("Redeemed %s: %s", att.kind, subject)
}
