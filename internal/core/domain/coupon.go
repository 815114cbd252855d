package domain

import "time"

// UserCoupon is a user-held coupon instance. Consumption is conditioned on the
// coupon being currently unused, so a concurrent double-apply cannot consume
// it twice.
type UserCoupon struct {
	ID             string
	UserID         string
	CouponID       string
	DiscountAmount int64
	Used           bool
	UsedOrderID    *string
	UsedAt         *time.Time
	CreatedAt      time.Time
}
