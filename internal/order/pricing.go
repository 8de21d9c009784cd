package order

import (
	"ms-grouporder/internal/models"

	"github.com/shopspring/decimal"
)

// Pricing is pure decimal arithmetic over frozen line data. Intermediate
// results are never rounded; only display/export layers round.

// UnitPrice resolves the price for an item at the requested size. A large
// selection on an item without a large price is dropped rather than rejected;
// the normalized size is returned alongside the price.
func UnitPrice(item models.MenuItem, size string) (decimal.Decimal, string) {
	if size == models.SizeLarge && item.LargePrice.Valid {
		return item.LargePrice.Decimal, models.SizeLarge
	}
	return item.BasePrice, ""
}

// LineSubtotal computes (unit price + option deltas + topping prices) × quantity.
func LineSubtotal(line models.Line) decimal.Decimal {
	unit := line.UnitPrice
	for _, opt := range line.Options {
		unit = unit.Add(opt.PriceDelta)
	}
	for _, t := range line.Toppings {
		unit = unit.Add(t.Price)
	}
	return unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// OrderTotal sums the line subtotals. Defined for orders in any state; only
// submitted orders contribute to group aggregates.
func OrderTotal(lines []models.Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineSubtotal(line))
	}
	return total
}

// TotalQuantity sums line quantities, used by the export builder footer.
func TotalQuantity(lines []models.Line) int {
	n := 0
	for _, line := range lines {
		n += line.Quantity
	}
	return n
}
