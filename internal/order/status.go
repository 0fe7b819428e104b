package order

import "github.com/brewloyal/api/internal/enum"

// KitchenStatus normalizes the nullable fnb_status column.
func KitchenStatus(s string, valid bool) string {
	if !valid || s == "" {
		return enum.KitchenStatusPreparing
	}
	return s
}

// IsTerminal reports whether the fulfillment status can no longer change.
func IsTerminal(status string) bool {
	return status == enum.OrderStatusCancelled || status == enum.OrderStatusRefunded
}

// IsRedeemable gates the customer's QR list and staff redemption: the
// order must be paid, carry a QR payload and still await redemption.
func IsRedeemable(paymentStatus, status, qrCode string) bool {
	return paymentStatus == enum.PaymentStatusPaid &&
		status == enum.OrderStatusReady &&
		qrCode != ""
}

// InitialStatus derives the fulfillment status set on payment success.
// Orders holding only non-redeemable items (wallet top-ups) complete
// immediately.
func InitialStatus(items []LineItem) string {
	if len(RedeemableIndices(items)) == 0 {
		return enum.OrderStatusCompleted
	}
	return enum.OrderStatusReady
}

// RedemptionProgress derives the order-level redemption state from the
// ledger: active (none completed), partial, or completed (all, total > 0).
func RedemptionProgress(total, completed int) string {
	switch {
	case total > 0 && completed >= total:
		return enum.RedemptionProgressCompleted
	case completed > 0:
		return enum.RedemptionProgressPartial
	default:
		return enum.RedemptionProgressActive
	}
}
