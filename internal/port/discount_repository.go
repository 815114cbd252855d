package port

import (
	"context"
	"errors"

	"github.com/okmart/ordercore/internal/core/domain"
)

// ErrDuplicateReference is returned by AppendEntry when an entry already
// exists for the (referenceType, referenceID) pair.
var ErrDuplicateReference = errors.New("points entry already exists for reference")

// CouponRepository owns user-coupon state.
type CouponRepository interface {
	GetUserCoupon(ctx context.Context, userCouponID string) (*domain.UserCoupon, error)

	// ConsumeCoupon marks the coupon used by the given order, conditioned on
	// it being currently unused. Returns false if it was already consumed.
	ConsumeCoupon(ctx context.Context, userCouponID, orderID string) (bool, error)

	// ReinstateCoupon marks a consumed coupon unused again, conditioned on it
	// being currently consumed. Returns false if there was nothing to reverse.
	ReinstateCoupon(ctx context.Context, userCouponID string) (bool, error)
}

// PointsRepository owns the append-only points ledger.
type PointsRepository interface {
	Balance(ctx context.Context, userID string) (int64, error)

	// AppendEntry appends one ledger row. At most one entry may exist per
	// (referenceType, referenceID); a second append for the same pair fails
	// with ErrDuplicateReference, which makes the pair an atomic guard.
	AppendEntry(ctx context.Context, entry domain.PointsEntry) error

	// HasEntry reports whether an entry already exists for the reference,
	// which is the idempotency guard for points reversal.
	HasEntry(ctx context.Context, refType domain.ReferenceType, referenceID string) (bool, error)
}
