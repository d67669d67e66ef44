package pricing

// Money represents a monetary value in rupiah.
type Money = int64

// Item describes a cart line used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// LineTotal returns the price of a single line. Non-positive quantities and
// negative prices count as zero.
func LineTotal(it Item) Money {
	if it.Qty <= 0 || it.UnitPrice <= 0 {
		return 0
	}
	return Money(it.Qty) * it.UnitPrice
}

// Subtotal sums the line totals of items.
func Subtotal(items []Item) Money {
	var subtotal Money
	for _, it := range items {
		subtotal += LineTotal(it)
	}
	return subtotal
}
