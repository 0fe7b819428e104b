package order

import (
	"fmt"
	"regexp"
	"time"

	"github.com/brewloyal/api/internal/enum"
)

// CollectionNumber is the last four digits of the order number, or "0000"
// when the order number holds fewer than four digits.
func CollectionNumber(orderNumber string) string {
	digits := make([]byte, 0, len(orderNumber))
	for i := 0; i < len(orderNumber); i++ {
		if c := orderNumber[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) < 4 {
		return "0000"
	}
	return string(digits[len(digits)-4:])
}

var readyMessagePattern = regexp.MustCompile(`#(\d{4}) at (.+?)\.?$`)

// ReadyMessage is the customer-facing text of an order_ready notification.
func ReadyMessage(orderNumber, outletName string) string {
	return fmt.Sprintf("Your order is ready! Show collection number #%s at %s.",
		CollectionNumber(orderNumber), outletName)
}

// ParseReadyMessage extracts the collection number and outlet name from a
// ReadyMessage. Only tests call it: it pins the message format so clients
// that scrape the number out of the text keep working.
func ParseReadyMessage(msg string) (collection, outlet string, ok bool) {
	m := readyMessagePattern.FindStringSubmatch(msg)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Waiting is the kitchen board's waiting-time indicator.
type Waiting struct {
	Minutes int    `json:"minutes"`
	Band    string `json:"band"`
	Frozen  bool   `json:"frozen"`
}

// WaitingTime measures now - createdAt. Once the kitchen status has left
// preparing the clock stops at the time of that change.
func WaitingTime(createdAt time.Time, kitchenStatus string, changedAt time.Time, now time.Time) Waiting {
	end := now
	frozen := false
	if kitchenStatus != enum.KitchenStatusPreparing {
		frozen = true
		if !changedAt.IsZero() {
			end = changedAt
		}
	}
	elapsed := end.Sub(createdAt)
	if elapsed < 0 {
		elapsed = 0
	}
	mins := int(elapsed / time.Minute)
	return Waiting{Minutes: mins, Band: waitingBand(elapsed), Frozen: frozen}
}

func waitingBand(d time.Duration) string {
	switch {
	case d < 5*time.Minute:
		return enum.WaitingBandFresh
	case d < 10*time.Minute:
		return enum.WaitingBandNormal
	case d < 15*time.Minute:
		return enum.WaitingBandWarning
	default:
		return enum.WaitingBandCritical
	}
}
