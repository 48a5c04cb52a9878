package port

import (
	"context"

	"github.com/shopspring/decimal"
)

type ChargeRequest struct {
	Amount           decimal.Decimal
	Currency         string
	PaymentMethodRef string
	// IdempotencyKey ties one checkout attempt to at most one charge;
	// the gateway must not double-charge a retried key.
	IdempotencyKey string
}

type Charge struct {
	ID     string
	Status string
}

type Refund struct {
	ID     string
	Status string
}

// PaymentGateway is the contract the core requires from the external
// processor. Every failure surfaces as domain.PaymentError; nothing is
// swallowed.
type PaymentGateway interface {
	// ChargeAndConfirm creates and confirms a charge synchronously
	ChargeAndConfirm(ctx context.Context, req ChargeRequest) (Charge, error)

	// Refund returns money against a prior charge
	Refund(ctx context.Context, chargeID string, amount decimal.Decimal, currency string) (Refund, error)
}
