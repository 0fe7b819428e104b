package database

import (
	"context"

	"github.com/google/uuid"
)

const getAdminUserByEmail = `-- name: GetAdminUserByEmail :one
SELECT id, outlet_id, email, hashed_password, full_name, role, is_active, created_at
FROM admin_users
WHERE email = $1 AND is_active = true
`

func (q *Queries) GetAdminUserByEmail(ctx context.Context, email string) (AdminUser, error) {
	row := q.db.QueryRow(ctx, getAdminUserByEmail, email)
	var i AdminUser
	err := row.Scan(
		&i.ID,
		&i.OutletID,
		&i.Email,
		&i.HashedPassword,
		&i.FullName,
		&i.Role,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const getAdminUserByID = `-- name: GetAdminUserByID :one
SELECT id, outlet_id, email, hashed_password, full_name, role, is_active, created_at
FROM admin_users
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetAdminUserByID(ctx context.Context, id uuid.UUID) (AdminUser, error) {
	row := q.db.QueryRow(ctx, getAdminUserByID, id)
	var i AdminUser
	err := row.Scan(
		&i.ID,
		&i.OutletID,
		&i.Email,
		&i.HashedPassword,
		&i.FullName,
		&i.Role,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}
