package order

import (
	"testing"
	"time"

	"github.com/brewloyal/api/internal/enum"
)

func TestCollectionNumber(t *testing.T) {
	tests := []struct {
		orderNumber string
		want        string
	}{
		{"ORD-0042", "0042"},
		{"ORD-20260412-5678", "5678"},
		{"12345678", "5678"},
		{"ORD-12", "0000"},
		{"", "0000"},
		{"A1B2C3D4", "1234"},
	}
	for _, tc := range tests {
		if got := CollectionNumber(tc.orderNumber); got != tc.want {
			t.Errorf("CollectionNumber(%q): got %q, want %q", tc.orderNumber, got, tc.want)
		}
		// Pure function: repeated calls agree.
		if CollectionNumber(tc.orderNumber) != CollectionNumber(tc.orderNumber) {
			t.Errorf("CollectionNumber(%q) is not deterministic", tc.orderNumber)
		}
	}
}

func TestReadyMessageRoundTrip(t *testing.T) {
	msg := ReadyMessage("ORD-5678", "Kopi Sudirman")
	collection, outlet, ok := ParseReadyMessage(msg)
	if !ok {
		t.Fatalf("ParseReadyMessage(%q) failed", msg)
	}
	if collection != "5678" {
		t.Errorf("collection: got %q, want 5678", collection)
	}
	if outlet != "Kopi Sudirman" {
		t.Errorf("outlet: got %q, want Kopi Sudirman", outlet)
	}

	if _, _, ok := ParseReadyMessage("Your points were credited"); ok {
		t.Error("unrelated message should not parse")
	}
}

func TestWaitingTime(t *testing.T) {
	created := time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		status    string
		changedAt time.Time
		now       time.Time
		wantMins  int
		wantBand  string
		wantFroze bool
	}{
		{"fresh", enum.KitchenStatusPreparing, time.Time{}, created.Add(4 * time.Minute), 4, enum.WaitingBandFresh, false},
		{"normal", enum.KitchenStatusPreparing, time.Time{}, created.Add(5 * time.Minute), 5, enum.WaitingBandNormal, false},
		{"warning", enum.KitchenStatusPreparing, time.Time{}, created.Add(14*time.Minute + 59*time.Second), 14, enum.WaitingBandWarning, false},
		{"critical", enum.KitchenStatusPreparing, time.Time{}, created.Add(15 * time.Minute), 15, enum.WaitingBandCritical, false},
		{"frozen at ready", enum.KitchenStatusReady, created.Add(7 * time.Minute), created.Add(2 * time.Hour), 7, enum.WaitingBandNormal, true},
		{"clock skew clamps to zero", enum.KitchenStatusPreparing, time.Time{}, created.Add(-time.Minute), 0, enum.WaitingBandFresh, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := WaitingTime(created, tc.status, tc.changedAt, tc.now)
			if w.Minutes != tc.wantMins || w.Band != tc.wantBand || w.Frozen != tc.wantFroze {
				t.Errorf("got %+v, want {%d %s %v}", w, tc.wantMins, tc.wantBand, tc.wantFroze)
			}
		})
	}
}

func TestRedemptionProgress(t *testing.T) {
	tests := []struct {
		total, completed int
		want             string
	}{
		{0, 0, enum.RedemptionProgressActive},
		{3, 0, enum.RedemptionProgressActive},
		{3, 2, enum.RedemptionProgressPartial},
		{3, 3, enum.RedemptionProgressCompleted},
	}
	for _, tc := range tests {
		if got := RedemptionProgress(tc.total, tc.completed); got != tc.want {
			t.Errorf("RedemptionProgress(%d, %d): got %s, want %s", tc.total, tc.completed, got, tc.want)
		}
	}
}

func TestIsRedeemable(t *testing.T) {
	if IsRedeemable(enum.PaymentStatusPending, enum.OrderStatusWaitingPayment, "") {
		t.Error("unpaid order without QR must not be redeemable")
	}
	if IsRedeemable(enum.PaymentStatusPaid, enum.OrderStatusReady, "") {
		t.Error("order without QR must not be redeemable")
	}
	if !IsRedeemable(enum.PaymentStatusPaid, enum.OrderStatusReady, "QR-abc") {
		t.Error("paid ready order with QR should be redeemable")
	}
	if IsRedeemable(enum.PaymentStatusPaid, enum.OrderStatusCancelled, "QR-abc") {
		t.Error("cancelled order must not be redeemable")
	}
}

func TestInitialStatus(t *testing.T) {
	topUpOnly := []LineItem{{Kind: enum.ItemKindWalletTopUp, Quantity: 1}}
	if got := InitialStatus(topUpOnly); got != enum.OrderStatusCompleted {
		t.Errorf("top-up only: got %s, want completed", got)
	}
	mixed := append(topUpOnly, LineItem{ProductID: "p1", Quantity: 1})
	if got := InitialStatus(mixed); got != enum.OrderStatusReady {
		t.Errorf("mixed: got %s, want ready", got)
	}
	if got := KitchenStatus("", false); got != enum.KitchenStatusPreparing {
		t.Errorf("NULL fnb_status: got %s, want preparing", got)
	}
}
