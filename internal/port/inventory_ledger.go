package port

import "context"

type InventoryLedger interface {
	// Reserve atomically checks available >= quantity and decrements,
	// returns false if insufficient. Linearizable per product.
	Reserve(ctx context.Context, productRef string, quantity int) (bool, error)

	// Release increments available unconditionally (rollback and
	// cancellation). Idempotency is the caller's responsibility.
	Release(ctx context.Context, productRef string, quantity int) error

	// GetStock reads the current available quantity; 0 for unknown products.
	GetStock(ctx context.Context, productRef string) (int, error)

	// SetStock seeds the available quantity for a product.
	SetStock(ctx context.Context, productRef string, quantity int) error
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
