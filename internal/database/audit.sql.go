package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createStaffRedemptionLog = `-- name: CreateStaffRedemptionLog :one
INSERT INTO log_staff_redemption (
    staff_passcode_id, outlet_id, redemption_type, reference_id, items, success, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, staff_passcode_id, outlet_id, redemption_type, reference_id, items, success, metadata, created_at
`

type CreateStaffRedemptionLogParams struct {
	StaffPasscodeID pgtype.UUID `json:"staff_passcode_id"`
	OutletID        pgtype.UUID `json:"outlet_id"`
	RedemptionType  string      `json:"redemption_type"`
	ReferenceID     pgtype.UUID `json:"reference_id"`
	Items           []byte      `json:"items"`
	Success         bool        `json:"success"`
	Metadata        []byte      `json:"metadata"`
}

func (q *Queries) CreateStaffRedemptionLog(ctx context.Context, arg CreateStaffRedemptionLogParams) (LogStaffRedemption, error) {
	row := q.db.QueryRow(ctx, createStaffRedemptionLog,
		arg.StaffPasscodeID,
		arg.OutletID,
		arg.RedemptionType,
		arg.ReferenceID,
		arg.Items,
		arg.Success,
		arg.Metadata,
	)
	var i LogStaffRedemption
	err := row.Scan(
		&i.ID,
		&i.StaffPasscodeID,
		&i.OutletID,
		&i.RedemptionType,
		&i.ReferenceID,
		&i.Items,
		&i.Success,
		&i.Metadata,
		&i.CreatedAt,
	)
	return i, err
}

const createStaffScanLog = `-- name: CreateStaffScanLog :one
INSERT INTO staff_scan_logs (
    outlet_id, staff_name, scan_type, reference_id, order_number, description, success, error_message
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, outlet_id, staff_name, scan_type, reference_id, order_number, description, success, error_message, created_at
`

type CreateStaffScanLogParams struct {
	OutletID     pgtype.UUID `json:"outlet_id"`
	StaffName    pgtype.Text `json:"staff_name"`
	ScanType     string      `json:"scan_type"`
	ReferenceID  pgtype.UUID `json:"reference_id"`
	OrderNumber  pgtype.Text `json:"order_number"`
	Description  string      `json:"description"`
	Success      bool        `json:"success"`
	ErrorMessage pgtype.Text `json:"error_message"`
}

func (q *Queries) CreateStaffScanLog(ctx context.Context, arg CreateStaffScanLogParams) (StaffScanLog, error) {
	row := q.db.QueryRow(ctx, createStaffScanLog,
		arg.OutletID,
		arg.StaffName,
		arg.ScanType,
		arg.ReferenceID,
		arg.OrderNumber,
		arg.Description,
		arg.Success,
		arg.ErrorMessage,
	)
	var i StaffScanLog
	err := row.Scan(
		&i.ID,
		&i.OutletID,
		&i.StaffName,
		&i.ScanType,
		&i.ReferenceID,
		&i.OrderNumber,
		&i.Description,
		&i.Success,
		&i.ErrorMessage,
		&i.CreatedAt,
	)
	return i, err
}
