package domain

import "time"

// PointsEntry is one append-only row of the points ledger. Usage appends a
// negative delta, reversal on refund a positive one of the same magnitude.
type PointsEntry struct {
	ID            string
	UserID        string
	Delta         int64
	ReferenceType ReferenceType
	ReferenceID   string
	CreatedAt     time.Time
}
