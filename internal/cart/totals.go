package cart

import (
	"encoding/json"

	"github.com/fjod/cartsync/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	TaxRate               = decimal.RequireFromString("0.08")
	FreeShippingThreshold = decimal.NewFromInt(50)
	FlatShipping          = decimal.NewFromInt(5)
)

// Totals are derived from a line item list and never stored.
type Totals struct {
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Shipping  decimal.Decimal
	Total     decimal.Decimal
	ItemCount int
}

// CalculateTotals prices items. A line item without product data
// contributes its quantity to ItemCount but nothing to the amounts.
func CalculateTotals(items []domain.LineItem) Totals {
	subtotal := decimal.Zero
	count := 0
	for _, item := range items {
		price := decimal.NewFromFloat(item.UnitPrice())
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}

	tax := subtotal.Mul(TaxRate)
	shipping := decimal.Zero
	if subtotal.LessThan(FreeShippingThreshold) {
		shipping = FlatShipping
	}

	return Totals{
		Subtotal:  subtotal,
		Tax:       tax,
		Shipping:  shipping,
		Total:     subtotal.Add(tax).Add(shipping),
		ItemCount: count,
	}
}

// Rounded returns the amounts rounded to cents for display.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:  t.Subtotal.Round(2),
		Tax:       t.Tax.Round(2),
		Shipping:  t.Shipping.Round(2),
		Total:     t.Total.Round(2),
		ItemCount: t.ItemCount,
	}
}

type totalsJSON struct {
	Subtotal  float64 `json:"subtotal"`
	Tax       float64 `json:"tax"`
	Shipping  float64 `json:"shipping"`
	Total     float64 `json:"total"`
	ItemCount int     `json:"itemCount"`
}

func (t Totals) MarshalJSON() ([]byte, error) {
	r := t.Rounded()
	return json.Marshal(totalsJSON{
		Subtotal:  r.Subtotal.InexactFloat64(),
		Tax:       r.Tax.InexactFloat64(),
		Shipping:  r.Shipping.InexactFloat64(),
		Total:     r.Total.InexactFloat64(),
		ItemCount: r.ItemCount,
	})
}
