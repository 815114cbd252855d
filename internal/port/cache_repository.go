package port

import "context"

// CacheRepository is the fast-path layer in front of the authoritative store:
// idempotency keys for checkout requests and a best-effort stock mirror used
// to shed doomed requests before they reach the database.
type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReserveStock decrements the stock mirror if it tracks the product and
	// has enough; an untracked product passes through. Returns false only when
	// the mirror knows the stock is insufficient.
	ReserveStock(ctx context.Context, storeID, productID string, quantity int) (bool, error)

	// ReleaseStock credits the mirror back after a downstream failure or a
	// stock restoration.
	ReleaseStock(ctx context.Context, storeID, productID string, quantity int) error
}
