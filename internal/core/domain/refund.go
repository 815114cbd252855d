package domain

import "time"

type RefundStatus string

const (
	RefundStatusPending  RefundStatus = "pending"
	RefundStatusApproved RefundStatus = "approved"
	RefundStatusRejected RefundStatus = "rejected"
)

// RefundRequest is created by the customer-facing flow and consumed by the
// refund coordinator. Approval triggers inventory restoration and discount
// reinstatement exactly once.
type RefundRequest struct {
	ID              string
	OrderID         string
	StoreID         string
	RequestedAmount int64
	ApprovedAmount  *int64
	Reason          string
	Status          RefundStatus
	AdminNotes      string
	ProcessedBy     string
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
