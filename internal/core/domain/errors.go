package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
	ErrInvalidQuantity   = errors.New("quantity must be between 1 and 100")
)

// InsufficientStockError reports which product ran out. It matches
// ErrInsufficientStock under errors.Is so callers can branch without
// unpacking the product.
type InsufficientStockError struct {
	ProductRef string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductRef)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// PaymentError is the typed outcome for any gateway failure: decline,
// timeout, or transport error. Matches ErrPaymentFailed under errors.Is.
type PaymentError struct {
	Reason string
	Err    error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("payment failed: %s", e.Reason)
}

func (e *PaymentError) Unwrap() error { return e.Err }

func (e *PaymentError) Is(target error) bool {
	return target == ErrPaymentFailed
}

// CompensationStep names one sub-step of the compensation sequence.
type CompensationStep string

const (
	StepRefund  CompensationStep = "refund"
	StepRelease CompensationStep = "stock_release"
	StepStatus  CompensationStep = "status_transition"
)

// CompensationError reports a partially applied compensation: some of
// {refund, stock release, status transition} failed while the rest were
// still attempted. The order keeps a durable record of the completed
// steps, so rerunning the cancellation finishes only the remainder.
type CompensationError struct {
	OrderID string
	Failed  []CompensationStep
	Errs    []error
}

func (e *CompensationError) Error() string {
	steps := make([]string, len(e.Failed))
	for i, s := range e.Failed {
		steps[i] = string(s)
	}
	return fmt.Sprintf("compensation for order %s incomplete, failed steps: %s: %v",
		e.OrderID, strings.Join(steps, ", "), errors.Join(e.Errs...))
}

func (e *CompensationError) Unwrap() []error { return e.Errs }
