package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const rewardColumns = `id, user_id, reward_type, reward_name, quantity, status, redeemed_at,
    redeemed_at_outlet_id, staff_name, created_at`

func scanCustomerReward(row pgx.Row) (CustomerReward, error) {
	var i CustomerReward
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.RewardType,
		&i.RewardName,
		&i.Quantity,
		&i.Status,
		&i.RedeemedAt,
		&i.RedeemedAtOutletID,
		&i.StaffName,
		&i.CreatedAt,
	)
	return i, err
}

const getCustomerReward = `-- name: GetCustomerReward :one
SELECT ` + rewardColumns + `
FROM customer_rewards
WHERE id = $1
`

func (q *Queries) GetCustomerReward(ctx context.Context, id uuid.UUID) (CustomerReward, error) {
	return scanCustomerReward(q.db.QueryRow(ctx, getCustomerReward, id))
}

const redeemCustomerReward = `-- name: RedeemCustomerReward :one
UPDATE customer_rewards
SET status = 'completed',
    redeemed_at = now(),
    redeemed_at_outlet_id = $2,
    staff_name = $3
WHERE id = $1 AND status = 'pending'
RETURNING ` + rewardColumns

type RedeemCustomerRewardParams struct {
	ID        uuid.UUID   `json:"id"`
	OutletID  pgtype.UUID `json:"outlet_id"`
	StaffName pgtype.Text `json:"staff_name"`
}

func (q *Queries) RedeemCustomerReward(ctx context.Context, arg RedeemCustomerRewardParams) (CustomerReward, error) {
	return scanCustomerReward(q.db.QueryRow(ctx, redeemCustomerReward, arg.ID, arg.OutletID, arg.StaffName))
}
