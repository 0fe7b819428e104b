// Package order holds the read-side rules of the Order Aggregate: line item
// totals, discount reconciliation, collection numbers, waiting-time bands
// and the redeemability gate shared by every consumer of an order row.
package order

import (
	"encoding/json"
	"fmt"

	"github.com/brewloyal/api/internal/enum"
	"github.com/shopspring/decimal"
)

// Modifier is an add-on priced per unit of the line item.
type Modifier struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Discounts is the per-item discount breakdown. Orders created before
// breakdown tracking existed store no breakdown at all (nil pointer).
type Discounts struct {
	Voucher decimal.Decimal `json:"voucher"`
	Tier    decimal.Decimal `json:"tier"`
	Bonus   decimal.Decimal `json:"bonus"`
}

// Total is the sum of the three buckets.
func (d Discounts) Total() decimal.Decimal {
	return d.Voucher.Add(d.Tier).Add(d.Bonus)
}

// IsNegative reports whether any bucket is below zero.
func (d Discounts) IsNegative() bool {
	return d.Voucher.IsNegative() || d.Tier.IsNegative() || d.Bonus.IsNegative()
}

// LineItem is one element of orders.items. Its position in the array is
// the item_index used by the redemption ledger and kitchen tracking.
type LineItem struct {
	ProductID   string           `json:"product_id"`
	ProductName string           `json:"product_name"`
	Kind        string           `json:"kind,omitempty"`
	Quantity    int32            `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	Modifiers   []Modifier       `json:"modifiers,omitempty"`
	Discounts   *Discounts       `json:"discounts,omitempty"`
	TotalPrice  *decimal.Decimal `json:"total_price,omitempty"`
}

// Redeemable reports whether the item has a redeemable identity. Wallet
// top-ups and items without a product id bypass the redemption ledger.
func (li LineItem) Redeemable() bool {
	return li.ProductID != "" && li.Kind != enum.ItemKindWalletTopUp && li.Quantity > 0
}

// Gross is (unit price + modifiers) x quantity, before discounts.
func (li LineItem) Gross() decimal.Decimal {
	unit := li.UnitPrice
	for _, m := range li.Modifiers {
		unit = unit.Add(m.Price)
	}
	return unit.Mul(decimal.NewFromInt32(li.Quantity))
}

// ItemTotal resolves the amount paid for a line item. Priority:
//  1. the stored total_price,
//  2. gross minus the recorded discount breakdown,
//  3. unit price x quantity (legacy rows without either).
func ItemTotal(li LineItem) decimal.Decimal {
	if li.TotalPrice != nil {
		return *li.TotalPrice
	}
	if li.Discounts != nil {
		total := li.Gross().Sub(li.Discounts.Total())
		if total.IsNegative() {
			return decimal.Zero
		}
		return total
	}
	return li.UnitPrice.Mul(decimal.NewFromInt32(li.Quantity))
}

// DecodeItems parses the orders.items JSON array.
func DecodeItems(raw []byte) ([]LineItem, error) {
	if len(raw) == 0 {
		return []LineItem{}, nil
	}
	var items []LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	if items == nil {
		items = []LineItem{}
	}
	return items, nil
}

// EncodeItems serializes line items for the orders.items column.
func EncodeItems(items []LineItem) ([]byte, error) {
	if items == nil {
		items = []LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}
	return b, nil
}

// RedeemableIndices returns the item indices that need ledger entries and
// kitchen tracking.
func RedeemableIndices(items []LineItem) []int {
	var idx []int
	for i, li := range items {
		if li.Redeemable() {
			idx = append(idx, i)
		}
	}
	return idx
}
