package pricing

import (
	"fmt"
	"math"
)

const (
	// MinPointsUsage is the smallest number of points a single order may spend.
	MinPointsUsage int64 = 100
	// MaxPointsUsageRate caps points at this share of the post-coupon amount.
	MaxPointsUsageRate = 0.30
	// MinOrderAmountForPoints: the post-coupon amount must exceed this floor.
	MinOrderAmountForPoints int64 = 10000
)

// Points policy rules, in the order they are checked.
const (
	PointsRuleNonPositive      = "non_positive"
	PointsRuleBelowMinimum     = "below_minimum"
	PointsRuleExceedsBalance   = "exceeds_balance"
	PointsRuleExceedsMaxUsable = "exceeds_max_usable"
	PointsRuleOrderTooSmall    = "order_too_small"
)

// PointsPolicyViolation reports the first policy clause the request violated.
// It is a validation result, not an error: the user can correct the request.
type PointsPolicyViolation struct {
	Rule   string
	Reason string
	Limit  int64
}

// ValidatePointsUsage checks a points spend against the current balance and
// the order amount net of coupon discount. A nil return means the spend is
// allowed. Clauses are evaluated in fixed precedence so the reported reason is
// deterministic.
func ValidatePointsUsage(requested, balance, orderAmount, couponDiscount int64) *PointsPolicyViolation {
	net := orderAmount - couponDiscount
	maxUsable := int64(math.Floor(float64(net) * MaxPointsUsageRate))

	switch {
	case requested <= 0:
		return &PointsPolicyViolation{
			Rule:   PointsRuleNonPositive,
			Reason: "points amount must be positive",
		}
	case requested < MinPointsUsage:
		return &PointsPolicyViolation{
			Rule:   PointsRuleBelowMinimum,
			Reason: fmt.Sprintf("minimum points usage is %d", MinPointsUsage),
			Limit:  MinPointsUsage,
		}
	case requested > balance:
		return &PointsPolicyViolation{
			Rule:   PointsRuleExceedsBalance,
			Reason: fmt.Sprintf("requested points exceed balance of %d", balance),
			Limit:  balance,
		}
	case requested > maxUsable:
		return &PointsPolicyViolation{
			Rule:   PointsRuleExceedsMaxUsable,
			Reason: fmt.Sprintf("points may cover at most 30%% of the order amount (max %d)", maxUsable),
			Limit:  maxUsable,
		}
	case net <= MinOrderAmountForPoints:
		return &PointsPolicyViolation{
			Rule:   PointsRuleOrderTooSmall,
			Reason: fmt.Sprintf("orders of %d or less are not eligible for points", MinOrderAmountForPoints),
			Limit:  MinOrderAmountForPoints,
		}
	}
	return nil
}
