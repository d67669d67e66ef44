package voucher

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Savings is the estimated reduction produced by a set of vouchers. The
// numbers are a preview only; the backend recomputes them on order creation.
type Savings struct {
	DiscountAmount int64 `json:"discountAmount"`
	ShipDiscount   int64 `json:"shipDiscount"`
}

// Summary holds the derived totals rendered by the checkout summary.
type Summary struct {
	Subtotal         int64 `json:"subtotal"`
	ShippingFee      int64 `json:"shippingFee"`
	ShippingFeeFinal int64 `json:"shippingFeeFinal"`
	DiscountAmount   int64 `json:"discountAmount"`
	ShipDiscount     int64 `json:"shipDiscount"`
	Total            int64 `json:"total"`
}

// ComputeSavings estimates the discount and shipping reduction produced by
// vouchers for a cart subtotal and the fee of the chosen shipping method.
// Vouchers that do not meet their minimum order amount are skipped. The
// combined discount never exceeds the subtotal, and only the largest single
// shipping reduction applies. Inputs are never modified.
func ComputeSavings(vouchers []Voucher, subtotal, shippingFee int64) Savings {
	subtotal = max(subtotal, 0)
	shippingFee = max(shippingFee, 0)
	ceiling := decimal.NewFromInt(subtotal)

	// summed as decimals so oversized backend values cannot wrap int64
	discount := decimal.Zero
	var out Savings
	for _, v := range vouchers {
		if v.MinOrderAmount != nil && subtotal < *v.MinOrderAmount {
			continue
		}
		switch v.Type {
		case TypeAmount:
			discount = discount.Add(amountDiscount(v, ceiling))
		case TypePercent:
			discount = discount.Add(percentDiscount(v, ceiling))
		case TypeShippingFree:
			if candidate := shippingDiscount(v, shippingFee); candidate > out.ShipDiscount {
				out.ShipDiscount = candidate
			}
		}
		if discount.GreaterThan(ceiling) {
			discount = ceiling
		}
	}
	out.DiscountAmount = discount.IntPart()
	return out
}

// Totals derives the figures shown in the checkout summary.
func Totals(subtotal, baseShippingFee int64, s Savings) Summary {
	shippingFinal := baseShippingFee - s.ShipDiscount
	if shippingFinal < 0 {
		shippingFinal = 0
	}
	return Summary{
		Subtotal:         subtotal,
		ShippingFee:      baseShippingFee,
		ShippingFeeFinal: shippingFinal,
		DiscountAmount:   s.DiscountAmount,
		ShipDiscount:     s.ShipDiscount,
		Total:            subtotal + shippingFinal - s.DiscountAmount,
	}
}

// amountDiscount and percentDiscount return a contribution within
// [0, ceiling].
func amountDiscount(v Voucher, ceiling decimal.Decimal) decimal.Decimal {
	return clamp(v.Value.Floor(), ceiling)
}

func percentDiscount(v Voucher, subtotal decimal.Decimal) decimal.Decimal {
	raw := subtotal.Mul(v.Value).Div(hundred).Floor()
	if v.MaxDiscount != nil {
		raw = decimal.Min(raw, decimal.NewFromInt(*v.MaxDiscount))
	}
	return clamp(raw, subtotal)
}

func clamp(d, ceiling decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(d, ceiling)
}

func shippingDiscount(v Voucher, shippingFee int64) int64 {
	limit := DefaultShippingCap
	if v.MaxDiscount != nil {
		limit = *v.MaxDiscount
	}
	candidate := min(shippingFee, limit)
	if candidate < 0 {
		return 0
	}
	return candidate
}
