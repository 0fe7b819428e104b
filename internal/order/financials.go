package order

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Tolerance is the rounding tolerance applied to money identities.
var Tolerance = decimal.New(1, -2)

// Amounts are the monetary columns stored on an order row.
type Amounts struct {
	Gross   decimal.Decimal
	Voucher decimal.Decimal
	Tier    decimal.Decimal
	Bonus   decimal.Decimal
	Total   decimal.Decimal
}

// Breakdown is the reconciled financial view of an order.
//
// Gross - Voucher - Tier - Bonus - Unaccounted == Total always holds.
// Unaccounted is non-zero for orders that predate full discount tracking.
// ItemsDelta is Total minus the sum of item totals; Balanced is false when
// it exceeds Tolerance.
type Breakdown struct {
	Gross       decimal.Decimal
	Voucher     decimal.Decimal
	Tier        decimal.Decimal
	Bonus       decimal.Decimal
	Recorded    decimal.Decimal
	Unaccounted decimal.Decimal
	Total       decimal.Decimal
	ItemTotals  []decimal.Decimal
	ItemsSum    decimal.Decimal
	ItemsDelta  decimal.Decimal
	Balanced    bool
}

// Reconcile computes the discount reconciliation and item-sum check.
func Reconcile(a Amounts, items []LineItem) Breakdown {
	b := Breakdown{
		Gross:      a.Gross.Round(2),
		Voucher:    a.Voucher.Round(2),
		Tier:       a.Tier.Round(2),
		Bonus:      a.Bonus.Round(2),
		Total:      a.Total.Round(2),
		ItemTotals: make([]decimal.Decimal, len(items)),
		ItemsSum:   decimal.Zero,
	}
	b.Recorded = b.Voucher.Add(b.Tier).Add(b.Bonus)
	b.Unaccounted = b.Gross.Sub(b.Total).Sub(b.Recorded)
	if b.Unaccounted.Abs().LessThan(Tolerance) {
		b.Unaccounted = decimal.Zero
	}

	for i, li := range items {
		t := ItemTotal(li).Round(2)
		b.ItemTotals[i] = t
		b.ItemsSum = b.ItemsSum.Add(t)
	}
	b.ItemsDelta = b.Total.Sub(b.ItemsSum)
	b.Balanced = b.ItemsDelta.Abs().LessThanOrEqual(Tolerance)
	return b
}

// Totals aggregates freshly built line items into order-level amounts.
// Used at checkout, where every item carries a discount breakdown.
func Totals(items []LineItem) Amounts {
	var a Amounts
	for _, li := range items {
		a.Gross = a.Gross.Add(li.Gross())
		if li.Discounts != nil {
			a.Voucher = a.Voucher.Add(li.Discounts.Voucher)
			a.Tier = a.Tier.Add(li.Discounts.Tier)
			a.Bonus = a.Bonus.Add(li.Discounts.Bonus)
		}
		a.Total = a.Total.Add(ItemTotal(li))
	}
	return a
}

// NumericToDecimal converts a pgtype.Numeric column; NULL reads as zero.
func NumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	s, ok := val.(string)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalToNumeric converts a decimal to a 2dp pgtype.Numeric.
func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
