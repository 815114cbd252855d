// Package pricing is the shared amount calculator: the same pure functions
// back both the client-side preview and the authoritative server-side
// recomputation, so the two cannot diverge.
package pricing

import "math"

const (
	// DefaultTaxRate is applied to the item subtotal.
	DefaultTaxRate = 0.10
	// DefaultDeliveryFee is charged on delivery orders; pickup orders pay none.
	DefaultDeliveryFee int64 = 3000
)

// RoundAmount is the single canonical rounding primitive. Every monetary value
// entering persistence or display passes through it exactly once. Half-up to
// whole currency units; NaN and infinities yield 0.
func RoundAmount(x float64) int64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return int64(math.Floor(x + 0.5))
}

// ComputeFinalAmount combines the rounded components into the payable total,
// clamped at zero.
func ComputeFinalAmount(subtotal, taxAmount, deliveryFee, couponDiscount, pointsUsed float64) int64 {
	total := RoundAmount(subtotal) + RoundAmount(taxAmount) + RoundAmount(deliveryFee) -
		RoundAmount(couponDiscount) - RoundAmount(pointsUsed)
	if total < 0 {
		return 0
	}
	return total
}

// CartItem is one line of the cart snapshot being priced.
type CartItem struct {
	UnitPrice    int64
	Quantity     int
	DiscountRate float64
}

// Breakdown is the derived amount breakdown persisted on the order. All fields
// are whole currency units.
type Breakdown struct {
	Subtotal       int64
	TaxAmount      int64
	DeliveryFee    int64
	CouponDiscount int64
	PointsUsed     int64
	TotalAmount    int64
}

// ItemSubtotal prices one cart line with its per-item discount rate applied.
func ItemSubtotal(unitPrice int64, quantity int, discountRate float64) int64 {
	if quantity <= 0 || unitPrice <= 0 {
		return 0
	}
	gross := float64(unitPrice) * float64(quantity)
	return RoundAmount(gross * (1 - discountRate))
}

// ComputeBreakdown runs the full pipeline over a cart snapshot:
// subtotal -> tax -> delivery -> coupon -> points -> total.
func ComputeBreakdown(items []CartItem, taxRate float64, deliveryFee, couponDiscount, pointsUsed int64) Breakdown {
	var subtotal int64
	for _, it := range items {
		subtotal += ItemSubtotal(it.UnitPrice, it.Quantity, it.DiscountRate)
	}

	tax := RoundAmount(float64(subtotal) * taxRate)

	if deliveryFee < 0 {
		deliveryFee = 0
	}
	if couponDiscount < 0 {
		couponDiscount = 0
	}
	if pointsUsed < 0 {
		pointsUsed = 0
	}

	return Breakdown{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DeliveryFee:    deliveryFee,
		CouponDiscount: couponDiscount,
		PointsUsed:     pointsUsed,
		TotalAmount: ComputeFinalAmount(
			float64(subtotal), float64(tax), float64(deliveryFee),
			float64(couponDiscount), float64(pointsUsed),
		),
	}
}
