package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, outlet_id, user_id, order_number, items, payment_status, status, qr_code,
    gross_sales, subtotal, voucher_discount, tier_discount, bonus_discount, total_amount,
    fnb_status, kitchen_status_changed_at, customer_notified_at, staff_name_last_action,
    paid_at, completed_at, cancelled_at, cancel_reason, refunded_at, refund_reason,
    created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.OutletID,
		&i.UserID,
		&i.OrderNumber,
		&i.Items,
		&i.PaymentStatus,
		&i.Status,
		&i.QrCode,
		&i.GrossSales,
		&i.Subtotal,
		&i.VoucherDiscount,
		&i.TierDiscount,
		&i.BonusDiscount,
		&i.TotalAmount,
		&i.FnbStatus,
		&i.KitchenStatusChangedAt,
		&i.CustomerNotifiedAt,
		&i.StaffNameLastAction,
		&i.PaidAt,
		&i.CompletedAt,
		&i.CancelledAt,
		&i.CancelReason,
		&i.RefundedAt,
		&i.RefundReason,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectOrders(rows pgx.Rows, err error) ([]Order, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getNextOrderNumber = `-- name: GetNextOrderNumber :one
SELECT (COALESCE(MAX(NULLIF(regexp_replace(order_number, '\D', '', 'g'), '')::int), 0) + 1)::int
FROM orders
WHERE outlet_id = $1
`

func (q *Queries) GetNextOrderNumber(ctx context.Context, outletID uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, getNextOrderNumber, outletID)
	var column_1 int32
	err := row.Scan(&column_1)
	return column_1, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    outlet_id, user_id, order_number, items, gross_sales, subtotal,
    voucher_discount, tier_discount, bonus_discount, total_amount
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OutletID        uuid.UUID       `json:"outlet_id"`
	UserID          uuid.UUID       `json:"user_id"`
	OrderNumber     string          `json:"order_number"`
	Items           json.RawMessage `json:"items"`
	GrossSales      pgtype.Numeric  `json:"gross_sales"`
	Subtotal        pgtype.Numeric  `json:"subtotal"`
	VoucherDiscount pgtype.Numeric  `json:"voucher_discount"`
	TierDiscount    pgtype.Numeric  `json:"tier_discount"`
	BonusDiscount   pgtype.Numeric  `json:"bonus_discount"`
	TotalAmount     pgtype.Numeric  `json:"total_amount"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.OutletID,
		arg.UserID,
		arg.OrderNumber,
		arg.Items,
		arg.GrossSales,
		arg.Subtotal,
		arg.VoucherDiscount,
		arg.TierDiscount,
		arg.BonusDiscount,
		arg.TotalAmount,
	))
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1 AND outlet_id = $2
`

type GetOrderParams struct {
	ID       uuid.UUID `json:"id"`
	OutletID uuid.UUID `json:"outlet_id"`
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.OutletID))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1 AND outlet_id = $2
FOR NO KEY UPDATE
`

type GetOrderForUpdateParams struct {
	ID       uuid.UUID `json:"id"`
	OutletID uuid.UUID `json:"outlet_id"`
}

func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderForUpdateParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, arg.ID, arg.OutletID))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE outlet_id = $1
  AND ($2::text IS NULL OR payment_status = $2)
  AND ($3::text IS NULL OR status = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`

type ListOrdersParams struct {
	OutletID      uuid.UUID   `json:"outlet_id"`
	PaymentStatus pgtype.Text `json:"payment_status"`
	Status        pgtype.Text `json:"status"`
	Limit         int32       `json:"limit"`
	Offset        int32       `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listOrders,
		arg.OutletID,
		arg.PaymentStatus,
		arg.Status,
		arg.Limit,
		arg.Offset,
	))
}

const listRedeemableOrdersByUser = `-- name: ListRedeemableOrdersByUser :many
SELECT ` + orderColumns + `
FROM orders
WHERE user_id = $1
  AND payment_status = 'paid'
  AND status = 'ready'
  AND qr_code IS NOT NULL AND qr_code <> ''
ORDER BY created_at DESC
`

func (q *Queries) ListRedeemableOrdersByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listRedeemableOrdersByUser, userID))
}

const listKitchenOrders = `-- name: ListKitchenOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE outlet_id = $1
  AND payment_status = 'paid'
  AND status NOT IN ('cancelled', 'refunded')
  AND COALESCE(fnb_status, 'preparing') IN ('preparing', 'ready')
  AND jsonb_path_exists(items, '$[*] ? (@.product_id != "" && !(@.kind == "wallet_topup") && @.quantity > 0)')
ORDER BY created_at ASC
`

func (q *Queries) ListKitchenOrders(ctx context.Context, outletID uuid.UUID) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listKitchenOrders, outletID))
}

const confirmOrderPayment = `-- name: ConfirmOrderPayment :one
UPDATE orders
SET payment_status = 'paid',
    status = $2,
    qr_code = $3,
    paid_at = now(),
    completed_at = CASE WHEN $2 = 'completed' THEN now() ELSE completed_at END,
    updated_at = now()
WHERE id = $1 AND outlet_id = $4 AND payment_status = 'pending' AND status = 'waiting_payment'
RETURNING ` + orderColumns

type ConfirmOrderPaymentParams struct {
	ID       uuid.UUID   `json:"id"`
	Status   string      `json:"status"`
	QrCode   pgtype.Text `json:"qr_code"`
	OutletID uuid.UUID   `json:"outlet_id"`
}

func (q *Queries) ConfirmOrderPayment(ctx context.Context, arg ConfirmOrderPaymentParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, confirmOrderPayment,
		arg.ID,
		arg.Status,
		arg.QrCode,
		arg.OutletID,
	))
}

const failOrderPayment = `-- name: FailOrderPayment :one
UPDATE orders
SET payment_status = 'failed',
    updated_at = now()
WHERE id = $1 AND outlet_id = $2 AND payment_status = 'pending'
RETURNING ` + orderColumns

type FailOrderPaymentParams struct {
	ID       uuid.UUID `json:"id"`
	OutletID uuid.UUID `json:"outlet_id"`
}

func (q *Queries) FailOrderPayment(ctx context.Context, arg FailOrderPaymentParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, failOrderPayment, arg.ID, arg.OutletID))
}

const completeOrderRedemption = `-- name: CompleteOrderRedemption :one
UPDATE orders
SET status = 'completed',
    completed_at = now(),
    staff_name_last_action = $2,
    updated_at = now()
WHERE id = $1 AND status = 'ready'
RETURNING ` + orderColumns

type CompleteOrderRedemptionParams struct {
	ID        uuid.UUID   `json:"id"`
	StaffName pgtype.Text `json:"staff_name"`
}

func (q *Queries) CompleteOrderRedemption(ctx context.Context, arg CompleteOrderRedemptionParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, completeOrderRedemption, arg.ID, arg.StaffName))
}

const touchOrderStaffAction = `-- name: TouchOrderStaffAction :exec
UPDATE orders
SET staff_name_last_action = $2,
    updated_at = now()
WHERE id = $1
`

type TouchOrderStaffActionParams struct {
	ID        uuid.UUID   `json:"id"`
	StaffName pgtype.Text `json:"staff_name"`
}

func (q *Queries) TouchOrderStaffAction(ctx context.Context, arg TouchOrderStaffActionParams) error {
	_, err := q.db.Exec(ctx, touchOrderStaffAction, arg.ID, arg.StaffName)
	return err
}

const cancelOrder = `-- name: CancelOrder :one
UPDATE orders
SET status = 'cancelled',
    fnb_status = CASE WHEN fnb_status IS NULL OR fnb_status IN ('preparing', 'ready') THEN 'cancelled' ELSE fnb_status END,
    cancelled_at = now(),
    cancel_reason = $3,
    staff_name_last_action = $4,
    updated_at = now()
WHERE id = $1 AND outlet_id = $2 AND status IN ('waiting_payment', 'ready')
RETURNING ` + orderColumns

type CancelOrderParams struct {
	ID        uuid.UUID   `json:"id"`
	OutletID  uuid.UUID   `json:"outlet_id"`
	Reason    pgtype.Text `json:"reason"`
	StaffName pgtype.Text `json:"staff_name"`
}

func (q *Queries) CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, cancelOrder,
		arg.ID,
		arg.OutletID,
		arg.Reason,
		arg.StaffName,
	))
}

const refundOrder = `-- name: RefundOrder :one
UPDATE orders
SET status = 'refunded',
    refunded_at = now(),
    refund_reason = $3,
    staff_name_last_action = $4,
    updated_at = now()
WHERE id = $1 AND outlet_id = $2 AND payment_status = 'paid' AND status IN ('ready', 'completed')
RETURNING ` + orderColumns

type RefundOrderParams struct {
	ID        uuid.UUID   `json:"id"`
	OutletID  uuid.UUID   `json:"outlet_id"`
	Reason    pgtype.Text `json:"reason"`
	StaffName pgtype.Text `json:"staff_name"`
}

func (q *Queries) RefundOrder(ctx context.Context, arg RefundOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, refundOrder,
		arg.ID,
		arg.OutletID,
		arg.Reason,
		arg.StaffName,
	))
}

const deleteOrder = `-- name: DeleteOrder :execrows
DELETE FROM orders
WHERE id = $1 AND outlet_id = $2
`

type DeleteOrderParams struct {
	ID       uuid.UUID `json:"id"`
	OutletID uuid.UUID `json:"outlet_id"`
}

func (q *Queries) DeleteOrder(ctx context.Context, arg DeleteOrderParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteOrder, arg.ID, arg.OutletID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const updateKitchenStatus = `-- name: UpdateKitchenStatus :one
UPDATE orders
SET fnb_status = $3,
    kitchen_status_changed_at = now(),
    updated_at = now()
WHERE id = $1 AND outlet_id = $2 AND COALESCE(fnb_status, 'preparing') = $4
RETURNING ` + orderColumns

type UpdateKitchenStatusParams struct {
	ID         uuid.UUID `json:"id"`
	OutletID   uuid.UUID `json:"outlet_id"`
	Status     string    `json:"status"`
	FromStatus string    `json:"from_status"`
}

func (q *Queries) UpdateKitchenStatus(ctx context.Context, arg UpdateKitchenStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateKitchenStatus,
		arg.ID,
		arg.OutletID,
		arg.Status,
		arg.FromStatus,
	))
}

const markCustomerNotified = `-- name: MarkCustomerNotified :one
UPDATE orders
SET customer_notified_at = clock_timestamp(),
    updated_at = now()
WHERE id = $1 AND outlet_id = $2
  AND fnb_status = 'ready'
  AND (customer_notified_at IS NULL OR customer_notified_at < kitchen_status_changed_at)
RETURNING ` + orderColumns

type MarkCustomerNotifiedParams struct {
	ID       uuid.UUID `json:"id"`
	OutletID uuid.UUID `json:"outlet_id"`
}

func (q *Queries) MarkCustomerNotified(ctx context.Context, arg MarkCustomerNotifiedParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markCustomerNotified, arg.ID, arg.OutletID))
}
