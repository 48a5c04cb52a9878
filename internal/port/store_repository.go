package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/trgiang/fulfillment/internal/core/domain"
)

type CartRepository interface {
	// GetCart loads the owner's active cart; domain.ErrNotFound if none exists yet
	GetCart(ctx context.Context, owner string) (*domain.Cart, error)

	// SaveCart upserts the cart and its lines
	SaveCart(ctx context.Context, cart *domain.Cart) error

	// ClearCart empties the cart without deleting it
	ClearCart(ctx context.Context, owner string) error
}

type OrderRepository interface {
	// InsertOrder persists a new order with its frozen lines
	InsertOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves an order by id; domain.ErrNotFound if absent
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// UpdateOrderStatus transitions the persisted status
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error

	// RecordCompensation persists compensation progress and the refund id
	RecordCompensation(ctx context.Context, id string, comp domain.Compensation, refundID string) error
}

// PriceReader is the catalog's consumed interface; the catalog itself is
// outside this core.
type PriceReader interface {
	// UnitPrice returns the live price for a product; domain.ErrNotFound for unknown refs
	UnitPrice(ctx context.Context, productRef string) (decimal.Decimal, error)
}
