package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const listKitchenTrackingByOrders = `-- name: ListKitchenTrackingByOrders :many
SELECT order_id, item_index, is_prepared, staff_id, created_at, updated_at
FROM kitchen_item_tracking
WHERE order_id = ANY($1::uuid[])
ORDER BY order_id, item_index
`

func (q *Queries) ListKitchenTrackingByOrders(ctx context.Context, orderIds []uuid.UUID) ([]KitchenItemTracking, error) {
	rows, err := q.db.Query(ctx, listKitchenTrackingByOrders, orderIds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []KitchenItemTracking{}
	for rows.Next() {
		var i KitchenItemTracking
		if err := rows.Scan(
			&i.OrderID,
			&i.ItemIndex,
			&i.IsPrepared,
			&i.StaffID,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const upsertKitchenItem = `-- name: UpsertKitchenItem :one
INSERT INTO kitchen_item_tracking (order_id, item_index, is_prepared, staff_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (order_id, item_index) DO UPDATE
SET is_prepared = EXCLUDED.is_prepared,
    staff_id = EXCLUDED.staff_id,
    updated_at = now()
RETURNING order_id, item_index, is_prepared, staff_id, created_at, updated_at
`

type UpsertKitchenItemParams struct {
	OrderID    uuid.UUID   `json:"order_id"`
	ItemIndex  int32       `json:"item_index"`
	IsPrepared bool        `json:"is_prepared"`
	StaffID    pgtype.UUID `json:"staff_id"`
}

func (q *Queries) UpsertKitchenItem(ctx context.Context, arg UpsertKitchenItemParams) (KitchenItemTracking, error) {
	row := q.db.QueryRow(ctx, upsertKitchenItem,
		arg.OrderID,
		arg.ItemIndex,
		arg.IsPrepared,
		arg.StaffID,
	)
	var i KitchenItemTracking
	err := row.Scan(
		&i.OrderID,
		&i.ItemIndex,
		&i.IsPrepared,
		&i.StaffID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteKitchenTrackingByOrder = `-- name: DeleteKitchenTrackingByOrder :exec
DELETE FROM kitchen_item_tracking
WHERE order_id = $1
`

func (q *Queries) DeleteKitchenTrackingByOrder(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteKitchenTrackingByOrder, orderID)
	return err
}
