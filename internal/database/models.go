package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type AdminUser struct {
	ID             uuid.UUID `json:"id"`
	OutletID       uuid.UUID `json:"outlet_id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashed_password"`
	FullName       string    `json:"full_name"`
	Role           string    `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

type Outlet struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Address   pgtype.Text `json:"address"`
	CreatedAt time.Time   `json:"created_at"`
}

type Order struct {
	ID                     uuid.UUID          `json:"id"`
	OutletID               uuid.UUID          `json:"outlet_id"`
	UserID                 uuid.UUID          `json:"user_id"`
	OrderNumber            string             `json:"order_number"`
	Items                  json.RawMessage    `json:"items"`
	PaymentStatus          string             `json:"payment_status"`
	Status                 string             `json:"status"`
	QrCode                 pgtype.Text        `json:"qr_code"`
	GrossSales             pgtype.Numeric     `json:"gross_sales"`
	Subtotal               pgtype.Numeric     `json:"subtotal"`
	VoucherDiscount        pgtype.Numeric     `json:"voucher_discount"`
	TierDiscount           pgtype.Numeric     `json:"tier_discount"`
	BonusDiscount          pgtype.Numeric     `json:"bonus_discount"`
	TotalAmount            pgtype.Numeric     `json:"total_amount"`
	FnbStatus              pgtype.Text        `json:"fnb_status"`
	KitchenStatusChangedAt pgtype.Timestamptz `json:"kitchen_status_changed_at"`
	CustomerNotifiedAt     pgtype.Timestamptz `json:"customer_notified_at"`
	StaffNameLastAction    pgtype.Text        `json:"staff_name_last_action"`
	PaidAt                 pgtype.Timestamptz `json:"paid_at"`
	CompletedAt            pgtype.Timestamptz `json:"completed_at"`
	CancelledAt            pgtype.Timestamptz `json:"cancelled_at"`
	CancelReason           pgtype.Text        `json:"cancel_reason"`
	RefundedAt             pgtype.Timestamptz `json:"refunded_at"`
	RefundReason           pgtype.Text        `json:"refund_reason"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

type OrderItemRedemption struct {
	ID                 uuid.UUID          `json:"id"`
	OrderID            uuid.UUID          `json:"order_id"`
	ItemIndex          int32              `json:"item_index"`
	ProductName        string             `json:"product_name"`
	Quantity           int32              `json:"quantity"`
	RedeemedQuantity   int32              `json:"redeemed_quantity"`
	Status             string             `json:"status"`
	RedeemedAt         pgtype.Timestamptz `json:"redeemed_at"`
	RedeemedAtOutletID pgtype.UUID        `json:"redeemed_at_outlet_id"`
	RedemptionMethod   pgtype.Text        `json:"redemption_method"`
	CreatedAt          time.Time          `json:"created_at"`
}

type KitchenItemTracking struct {
	OrderID    uuid.UUID   `json:"order_id"`
	ItemIndex  int32       `json:"item_index"`
	IsPrepared bool        `json:"is_prepared"`
	StaffID    pgtype.UUID `json:"staff_id"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type StaffPasscode struct {
	ID           uuid.UUID          `json:"id"`
	OutletID     pgtype.UUID        `json:"outlet_id"`
	StaffName    string             `json:"staff_name"`
	Role         string             `json:"role"`
	PasscodeHash string             `json:"passcode_hash"`
	IsActive     bool               `json:"is_active"`
	LastUsedAt   pgtype.Timestamptz `json:"last_used_at"`
	CreatedAt    time.Time          `json:"created_at"`
}

type CustomerReward struct {
	ID                 uuid.UUID          `json:"id"`
	UserID             uuid.UUID          `json:"user_id"`
	RewardType         string             `json:"reward_type"`
	RewardName         string             `json:"reward_name"`
	Quantity           int32              `json:"quantity"`
	Status             string             `json:"status"`
	RedeemedAt         pgtype.Timestamptz `json:"redeemed_at"`
	RedeemedAtOutletID pgtype.UUID        `json:"redeemed_at_outlet_id"`
	StaffName          pgtype.Text        `json:"staff_name"`
	CreatedAt          time.Time          `json:"created_at"`
}

type LogStaffRedemption struct {
	ID              uuid.UUID   `json:"id"`
	StaffPasscodeID pgtype.UUID `json:"staff_passcode_id"`
	OutletID        pgtype.UUID `json:"outlet_id"`
	RedemptionType  string      `json:"redemption_type"`
	ReferenceID     pgtype.UUID `json:"reference_id"`
	Items           []byte      `json:"items"`
	Success         bool        `json:"success"`
	Metadata        []byte      `json:"metadata"`
	CreatedAt       time.Time   `json:"created_at"`
}

type StaffScanLog struct {
	ID           uuid.UUID   `json:"id"`
	OutletID     pgtype.UUID `json:"outlet_id"`
	StaffName    pgtype.Text `json:"staff_name"`
	ScanType     string      `json:"scan_type"`
	ReferenceID  pgtype.UUID `json:"reference_id"`
	OrderNumber  pgtype.Text `json:"order_number"`
	Description  string      `json:"description"`
	Success      bool        `json:"success"`
	ErrorMessage pgtype.Text `json:"error_message"`
	CreatedAt    time.Time   `json:"created_at"`
}

type Notification struct {
	ID               uuid.UUID   `json:"id"`
	UserID           uuid.UUID   `json:"user_id"`
	OrderID          pgtype.UUID `json:"order_id"`
	NotificationType string      `json:"notification_type"`
	Title            string      `json:"title"`
	Message          string      `json:"message"`
	IsRead           bool        `json:"is_read"`
	CreatedAt        time.Time   `json:"created_at"`
}
