package domain

import "time"

// InventoryRecord is the durable stock row for one product. Available
// never goes negative; it is mutated only through reserve and release.
type InventoryRecord struct {
	ProductRef string
	Available  int
	Version    int // optimistic locking on the database-backed ledger
	UpdatedAt  time.Time
}
