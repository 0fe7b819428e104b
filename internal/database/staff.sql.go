package database

import (
	"context"

	"github.com/google/uuid"
)

const listStaffPasscodesForOutlet = `-- name: ListStaffPasscodesForOutlet :many
SELECT id, outlet_id, staff_name, role, passcode_hash, is_active, last_used_at, created_at
FROM staff_passcodes
WHERE outlet_id = $1 OR outlet_id IS NULL
ORDER BY is_active DESC, created_at ASC
`

func (q *Queries) ListStaffPasscodesForOutlet(ctx context.Context, outletID uuid.UUID) ([]StaffPasscode, error) {
	rows, err := q.db.Query(ctx, listStaffPasscodesForOutlet, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StaffPasscode{}
	for rows.Next() {
		var i StaffPasscode
		if err := rows.Scan(
			&i.ID,
			&i.OutletID,
			&i.StaffName,
			&i.Role,
			&i.PasscodeHash,
			&i.IsActive,
			&i.LastUsedAt,
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

const touchStaffPasscode = `-- name: TouchStaffPasscode :exec
UPDATE staff_passcodes
SET last_used_at = now()
WHERE id = $1
`

func (q *Queries) TouchStaffPasscode(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, touchStaffPasscode, id)
	return err
}
