package port

import (
	"context"

	"github.com/okmart/ordercore/internal/core/domain"
)

// RefundRepository owns RefundRequest persistence.
type RefundRepository interface {
	GetRefundRequest(ctx context.Context, id string) (*domain.RefundRequest, error)

	// UpdateRefundStatus applies the transition only if the request is still
	// in the expected status. approvedAmount, processedBy and adminNotes are
	// stamped alongside the new status; a nil approvedAmount leaves the
	// column untouched.
	UpdateRefundStatus(ctx context.Context, id string, from, to domain.RefundStatus, approvedAmount *int64, processedBy, adminNotes string) (bool, error)
}
