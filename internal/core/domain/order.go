package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// OrderLine freezes quantity and unit price at the moment of purchase.
// Later catalog price changes never affect a persisted order.
type OrderLine struct {
	ProductRef string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// Extension is quantity times unit price.
func (l OrderLine) Extension() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Address is the shipping snapshot stored with the order.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Compensation records which cancellation sub-steps have completed, so a
// rerun finishes the remainder without double-applying.
type Compensation struct {
	RefundDone    bool
	StockReleased bool
}

// Actor identifies the requester of an order operation. Admin comes from
// the authentication middleware, which is outside this core.
type Actor struct {
	ID    string
	Admin bool
}

// Order is the immutable record of a completed purchase. Total is
// computed once at construction and never recomputed; only the status
// and the compensation record change afterwards.
type Order struct {
	ID              string
	Owner           string
	Lines           []OrderLine
	Total           decimal.Decimal
	Currency        string
	ShippingAddress Address
	ChargeID        string
	RefundID        string
	Status          OrderStatus
	Compensation    Compensation
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewOrder builds a processing order from frozen checkout lines. The
// charge must already be confirmed; an order is never created without a
// backing payment.
func NewOrder(id, owner string, lines []OrderLine, currency string, addr Address, chargeID string) (*Order, error) {
	if id == "" || owner == "" || chargeID == "" {
		return nil, errors.New("order: id, owner, and charge id are required")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	total := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		total = total.Add(l.Extension())
	}

	now := time.Now().UTC()
	frozen := make([]OrderLine, len(lines))
	copy(frozen, lines)
	return &Order{
		ID:              id,
		Owner:           owner,
		Lines:           frozen,
		Total:           total,
		Currency:        currency,
		ShippingAddress: addr,
		ChargeID:        chargeID,
		Status:          OrderStatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// allowedTransitions is the monotonic status machine. Identity moves are
// always legal; delivered accepts nothing else.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {OrderStatusRefunded},
	OrderStatusRefunded:   {},
}

// adminOnly marks transitions driven by fulfillment operations rather
// than the customer.
var adminOnly = map[OrderStatus]bool{
	OrderStatusShipped:   true,
	OrderStatusDelivered: true,
	OrderStatusRefunded:  true,
}

// Transition applies a status change after authorization and legality
// checks. It mutates only the in-memory aggregate; persistence and any
// cross-resource compensation are the caller's job.
func (o *Order) Transition(requester Actor, next OrderStatus) error {
	if !requester.Admin && requester.ID != o.Owner {
		return ErrForbidden
	}
	if adminOnly[next] && !requester.Admin {
		return ErrForbidden
	}
	if !next.Valid() {
		return ErrInvalidTransition
	}
	if next == o.Status {
		return nil
	}
	for _, allowed := range allowedTransitions[o.Status] {
		if next == allowed {
			o.Status = next
			o.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrInvalidTransition
}

func (o *Order) Clone() *Order {
	clone := *o
	clone.Lines = make([]OrderLine, len(o.Lines))
	copy(clone.Lines, o.Lines)
	return &clone
}
