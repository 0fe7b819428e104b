package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Fulfillment status of an order. cancelled and refunded are terminal.
const (
	OrderStatusWaitingPayment = "waiting_payment"
	OrderStatusReady          = "ready"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
	OrderStatusRefunded       = "refunded"
)

const (
	LedgerStatusPending   = "pending"
	LedgerStatusCompleted = "completed"
)

// Kitchen (F&B) status. A NULL column reads as KitchenStatusPreparing.
const (
	KitchenStatusPreparing = "preparing"
	KitchenStatusReady     = "ready"
	KitchenStatusCollected = "collected"
	KitchenStatusCancelled = "cancelled"
)

const (
	RewardStatusPending   = "pending"
	RewardStatusCompleted = "completed"
)

// ── Group B: Derived / labels (no DB constraint) ──

const (
	RedemptionProgressActive    = "active"
	RedemptionProgressPartial   = "partial"
	RedemptionProgressCompleted = "completed"
)

const (
	RedemptionTypeOrder = "order"
	RedemptionTypeGift  = "gift"
	RedemptionTypeStamp = "stamp"
)

const (
	RedemptionMethodScan = "scan"
)

const (
	ItemKindProduct     = "product"
	ItemKindWalletTopUp = "wallet_topup"
)

const (
	NotificationOrderReady = "order_ready"
)

const (
	WaitingBandFresh    = "fresh"
	WaitingBandNormal   = "normal"
	WaitingBandWarning  = "warning"
	WaitingBandCritical = "critical"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	StaffRoleSuperadmin = "superadmin"
	StaffRoleManager    = "manager"
	StaffRoleCrew       = "crew"
)

const (
	UserRoleOwner    = "OWNER"
	UserRoleManager  = "MANAGER"
	UserRoleCashier  = "CASHIER"
	UserRoleKitchen  = "KITCHEN"
	UserRoleCustomer = "CUSTOMER"
)
