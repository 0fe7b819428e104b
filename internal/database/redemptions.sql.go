package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const redemptionColumns = `id, order_id, item_index, product_name, quantity, redeemed_quantity, status,
    redeemed_at, redeemed_at_outlet_id, redemption_method, created_at`

const ensureRedemption = `-- name: EnsureRedemption :exec
INSERT INTO order_item_redemptions (order_id, item_index, product_name, quantity)
VALUES ($1, $2, $3, $4)
ON CONFLICT (order_id, item_index) DO NOTHING
`

type EnsureRedemptionParams struct {
	OrderID     uuid.UUID `json:"order_id"`
	ItemIndex   int32     `json:"item_index"`
	ProductName string    `json:"product_name"`
	Quantity    int32     `json:"quantity"`
}

func (q *Queries) EnsureRedemption(ctx context.Context, arg EnsureRedemptionParams) error {
	_, err := q.db.Exec(ctx, ensureRedemption,
		arg.OrderID,
		arg.ItemIndex,
		arg.ProductName,
		arg.Quantity,
	)
	return err
}

const listRedemptionsByOrder = `-- name: ListRedemptionsByOrder :many
SELECT ` + redemptionColumns + `
FROM order_item_redemptions
WHERE order_id = $1
ORDER BY item_index ASC
`

func (q *Queries) ListRedemptionsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItemRedemption, error) {
	rows, err := q.db.Query(ctx, listRedemptionsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItemRedemption{}
	for rows.Next() {
		var i OrderItemRedemption
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.ItemIndex,
			&i.ProductName,
			&i.Quantity,
			&i.RedeemedQuantity,
			&i.Status,
			&i.RedeemedAt,
			&i.RedeemedAtOutletID,
			&i.RedemptionMethod,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const redeemItem = `-- name: RedeemItem :one
UPDATE order_item_redemptions
SET status = 'completed',
    redeemed_quantity = quantity,
    redeemed_at = now(),
    redeemed_at_outlet_id = $3,
    redemption_method = $4
WHERE order_id = $1 AND item_index = $2 AND status = 'pending'
RETURNING ` + redemptionColumns

type RedeemItemParams struct {
	OrderID          uuid.UUID   `json:"order_id"`
	ItemIndex        int32       `json:"item_index"`
	OutletID         pgtype.UUID `json:"outlet_id"`
	RedemptionMethod pgtype.Text `json:"redemption_method"`
}

func (q *Queries) RedeemItem(ctx context.Context, arg RedeemItemParams) (OrderItemRedemption, error) {
	row := q.db.QueryRow(ctx, redeemItem,
		arg.OrderID,
		arg.ItemIndex,
		arg.OutletID,
		arg.RedemptionMethod,
	)
	var i OrderItemRedemption
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ItemIndex,
		&i.ProductName,
		&i.Quantity,
		&i.RedeemedQuantity,
		&i.Status,
		&i.RedeemedAt,
		&i.RedeemedAtOutletID,
		&i.RedemptionMethod,
		&i.CreatedAt,
	)
	return i, err
}

const countPendingRedemptions = `-- name: CountPendingRedemptions :one
SELECT count(*) FROM order_item_redemptions
WHERE order_id = $1 AND status = 'pending'
`

func (q *Queries) CountPendingRedemptions(ctx context.Context, orderID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countPendingRedemptions, orderID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteRedemptionsByOrder = `-- name: DeleteRedemptionsByOrder :exec
DELETE FROM order_item_redemptions
WHERE order_id = $1
`

func (q *Queries) DeleteRedemptionsByOrder(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteRedemptionsByOrder, orderID)
	return err
}
