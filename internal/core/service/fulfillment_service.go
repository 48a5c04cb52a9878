package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trgiang/fulfillment/internal/core/domain"
	"github.com/trgiang/fulfillment/internal/metrics"
	"github.com/trgiang/fulfillment/internal/port"
)

const defaultCurrency = "USD"

// FulfillmentService drives the cart -> payment -> order -> inventory
// sequence as one logical transaction, and the reverse sequence on
// cancellation. It is the only component that coordinates more than one
// resource; the aggregates it calls are transaction-unaware.
type FulfillmentService struct {
	carts    port.CartRepository
	orders   port.OrderRepository
	ledger   port.InventoryLedger
	prices   port.PriceReader
	gateway  port.PaymentGateway
	idem     port.IdempotencyStore
	currency string
	log      *zap.Logger
	metrics  *metrics.FulfillmentMetrics
}

// NewFulfillmentService wires the orchestrator. idem and m may be nil:
// a nil idem disables the duplicate-request guard, a nil m disables
// instrumentation.
func NewFulfillmentService(
	carts port.CartRepository,
	orders port.OrderRepository,
	ledger port.InventoryLedger,
	prices port.PriceReader,
	gateway port.PaymentGateway,
	idem port.IdempotencyStore,
	currency string,
	log *zap.Logger,
	m *metrics.FulfillmentMetrics,
) *FulfillmentService {
	if currency == "" {
		currency = defaultCurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FulfillmentService{
		carts:    carts,
		orders:   orders,
		ledger:   ledger,
		prices:   prices,
		gateway:  gateway,
		idem:     idem,
		currency: currency,
		log:      log,
		metrics:  m,
	}
}

type PlaceOrderInput struct {
	Owner            string
	PaymentMethodRef string
	ShippingAddress  domain.Address
	// RequestID, when set, guards against transport-level resubmission
	// of the same checkout. Distinct from the per-attempt charge
	// idempotency key, which the orchestrator generates itself.
	RequestID string
}

// PlaceOrder converts the owner's cart into a paid order, all or
// nothing. Payment precedes persistence precedes stock reservation;
// any failure after the charge rolls back everything already applied,
// in reverse order, within this call.
func (s *FulfillmentService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*domain.Order, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if s.metrics != nil {
			s.metrics.Checkouts.WithLabelValues(outcome).Inc()
			s.metrics.CheckoutDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		}
	}()

	if in.Owner == "" {
		outcome = "invalid"
		return nil, errors.New("checkout: owner is required")
	}
	if in.PaymentMethodRef == "" {
		outcome = "invalid"
		return nil, errors.New("checkout: payment method is required")
	}

	if in.RequestID != "" && s.idem != nil {
		key := fmt.Sprintf("checkout:%s:%s", in.Owner, in.RequestID)
		ok, err := s.idem.SetIdempotency(ctx, key)
		if err != nil {
			outcome = "error"
			return nil, fmt.Errorf("checkout: idempotency check failed: %w", err)
		}
		if !ok {
			outcome = "duplicate"
			return nil, domain.ErrDuplicateRequest
		}
	}

	// Step 1: stable cart snapshot. A missing cart is an empty cart.
	cart, err := s.carts.GetCart(ctx, in.Owner)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && cart.IsEmpty()) {
		outcome = "empty_cart"
		return nil, domain.ErrEmptyCart
	}
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("checkout: load cart: %w", err)
	}
	lines := cart.Snapshot()

	// Step 2: availability pre-check before any money moves.
	for _, line := range lines {
		available, err := s.ledger.GetStock(ctx, line.ProductRef)
		if err != nil {
			outcome = "error"
			return nil, fmt.Errorf("checkout: read stock for %s: %w", line.ProductRef, err)
		}
		if available < line.Quantity {
			outcome = "insufficient_stock"
			return nil, &domain.InsufficientStockError{ProductRef: line.ProductRef}
		}
	}

	// Step 3: freeze prices at this instant.
	orderLines := make([]domain.OrderLine, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		price, err := s.prices.UnitPrice(ctx, line.ProductRef)
		if err != nil {
			outcome = "error"
			return nil, fmt.Errorf("checkout: price for %s: %w", line.ProductRef, err)
		}
		ol := domain.OrderLine{ProductRef: line.ProductRef, Quantity: line.Quantity, UnitPrice: price}
		orderLines = append(orderLines, ol)
		total = total.Add(ol.Extension())
	}

	// Step 4: charge. Nothing durable has been written yet, so a
	// failure here needs no rollback.
	attemptKey := uuid.NewString()
	charge, err := s.gateway.ChargeAndConfirm(ctx, port.ChargeRequest{
		Amount:           total,
		Currency:         s.currency,
		PaymentMethodRef: in.PaymentMethodRef,
		IdempotencyKey:   attemptKey,
	})
	if err != nil {
		outcome = "payment_failed"
		if !errors.Is(err, domain.ErrPaymentFailed) {
			err = &domain.PaymentError{Reason: "gateway error", Err: err}
		}
		s.log.Warn("checkout charge failed",
			zap.String("owner", in.Owner),
			zap.Error(err))
		return nil, err
	}

	// Step 5: persist the order, status processing.
	order, err := domain.NewOrder(uuid.NewString(), in.Owner, orderLines, s.currency, in.ShippingAddress, charge.ID)
	if err != nil {
		outcome = "error"
		return nil, s.abortAfterCharge(ctx, nil, charge.ID, total, nil, fmt.Errorf("checkout: construct order: %w", err))
	}
	if err := s.orders.InsertOrder(ctx, order); err != nil {
		outcome = "error"
		return nil, s.abortAfterCharge(ctx, nil, charge.ID, total, nil, fmt.Errorf("checkout: persist order: %w", err))
	}

	// Step 6: reserve stock per line. A race with a concurrent checkout
	// can still deplete stock between the pre-check and here.
	reserved := make([]domain.OrderLine, 0, len(orderLines))
	for _, line := range orderLines {
		ok, err := s.ledger.Reserve(ctx, line.ProductRef, line.Quantity)
		if err != nil {
			outcome = "error"
			return nil, s.abortAfterCharge(ctx, order, charge.ID, total, reserved,
				fmt.Errorf("checkout: reserve %s: %w", line.ProductRef, err))
		}
		if !ok {
			outcome = "insufficient_stock"
			return nil, s.abortAfterCharge(ctx, order, charge.ID, total, reserved,
				&domain.InsufficientStockError{ProductRef: line.ProductRef})
		}
		reserved = append(reserved, line)
	}

	// Step 7: empty the cart. The checkout is not committed until the
	// cart no longer holds the purchased lines.
	if err := s.carts.ClearCart(ctx, in.Owner); err != nil {
		outcome = "error"
		return nil, s.abortAfterCharge(ctx, order, charge.ID, total, reserved,
			fmt.Errorf("checkout: clear cart: %w", err))
	}

	s.log.Info("checkout committed",
		zap.String("order_id", order.ID),
		zap.String("owner", in.Owner),
		zap.String("charge_id", charge.ID),
		zap.String("total", total.StringFixed(2)),
		zap.Int("line_count", len(orderLines)))
	return order, nil
}

// abortAfterCharge undoes a partially applied checkout: refund the
// charge, release reservations already taken, and mark the order
// cancelled if one was persisted. Returns cause when the rollback is
// clean, or a CompensationError naming the sub-steps that also failed.
func (s *FulfillmentService) abortAfterCharge(
	ctx context.Context,
	order *domain.Order,
	chargeID string,
	total decimal.Decimal,
	reserved []domain.OrderLine,
	cause error,
) error {
	var failed []domain.CompensationStep
	var errs []error
	comp := domain.Compensation{}
	refundID := ""

	refund, err := s.gateway.Refund(ctx, chargeID, total, s.currency)
	if err != nil {
		failed = append(failed, domain.StepRefund)
		errs = append(errs, fmt.Errorf("refund charge %s: %w", chargeID, err))
		s.countCompensationFailure(domain.StepRefund)
	} else {
		comp.RefundDone = true
		refundID = refund.ID
	}

	released := true
	for _, line := range reserved {
		if err := s.ledger.Release(ctx, line.ProductRef, line.Quantity); err != nil {
			released = false
			errs = append(errs, fmt.Errorf("release %d x %s: %w", line.Quantity, line.ProductRef, err))
			s.log.Error("rollback release failed, stock not restored",
				zap.String("product_ref", line.ProductRef),
				zap.Int("quantity", line.Quantity),
				zap.Error(err))
		}
	}
	if !released {
		failed = append(failed, domain.StepRelease)
		s.countCompensationFailure(domain.StepRelease)
	}
	comp.StockReleased = released

	if order != nil {
		if err := s.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled); err != nil {
			failed = append(failed, domain.StepStatus)
			errs = append(errs, fmt.Errorf("mark order %s cancelled: %w", order.ID, err))
			s.countCompensationFailure(domain.StepStatus)
		}
		if err := s.orders.RecordCompensation(ctx, order.ID, comp, refundID); err != nil {
			errs = append(errs, fmt.Errorf("record compensation for %s: %w", order.ID, err))
		}
	}

	orderID := ""
	if order != nil {
		orderID = order.ID
	}
	if len(failed) > 0 {
		return &domain.CompensationError{
			OrderID: orderID,
			Failed:  failed,
			Errs:    append([]error{cause}, errs...),
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{cause}, errs...)...)
	}
	s.log.Info("checkout rolled back",
		zap.String("order_id", orderID),
		zap.String("charge_id", chargeID),
		zap.NamedError("cause", cause))
	return cause
}

// CancelOrder runs the compensation sequence for an existing order:
// refund, release stock for every line, transition to cancelled. Each
// step is attempted regardless of prior failures; completed steps are
// recorded on the order so a rerun finishes only the remainder.
func (s *FulfillmentService) CancelOrder(ctx context.Context, orderID string, requester domain.Actor) (*domain.Order, error) {
	outcome := "success"
	defer func() {
		if s.metrics != nil {
			s.metrics.Cancellations.WithLabelValues(outcome).Inc()
		}
	}()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		outcome = "error"
		if errors.Is(err, domain.ErrNotFound) {
			outcome = "not_found"
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("cancel: load order: %w", err)
	}

	// Authorization and legality first; an illegal cancel performs no
	// side effects at all.
	if err := order.Transition(requester, domain.OrderStatusCancelled); err != nil {
		outcome = "rejected"
		return nil, err
	}

	comp := order.Compensation
	var failed []domain.CompensationStep
	var errs []error

	if !comp.RefundDone {
		refund, err := s.gateway.Refund(ctx, order.ChargeID, order.Total, order.Currency)
		if err != nil {
			failed = append(failed, domain.StepRefund)
			errs = append(errs, fmt.Errorf("refund charge %s: %w", order.ChargeID, err))
			s.countCompensationFailure(domain.StepRefund)
		} else {
			comp.RefundDone = true
			order.RefundID = refund.ID
		}
	}

	if !comp.StockReleased {
		released := true
		for _, line := range order.Lines {
			if err := s.ledger.Release(ctx, line.ProductRef, line.Quantity); err != nil {
				released = false
				errs = append(errs, fmt.Errorf("release %d x %s: %w", line.Quantity, line.ProductRef, err))
			}
		}
		if !released {
			failed = append(failed, domain.StepRelease)
			s.countCompensationFailure(domain.StepRelease)
		}
		comp.StockReleased = released
	}

	if err := s.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled); err != nil {
		failed = append(failed, domain.StepStatus)
		errs = append(errs, fmt.Errorf("mark order %s cancelled: %w", order.ID, err))
		s.countCompensationFailure(domain.StepStatus)
	}
	if err := s.orders.RecordCompensation(ctx, order.ID, comp, order.RefundID); err != nil {
		errs = append(errs, fmt.Errorf("record compensation for %s: %w", order.ID, err))
	}
	order.Compensation = comp

	if len(failed) > 0 {
		outcome = "partial"
		s.log.Error("cancellation incomplete",
			zap.String("order_id", order.ID),
			zap.Any("failed_steps", failed))
		return nil, &domain.CompensationError{OrderID: order.ID, Failed: failed, Errs: errs}
	}
	if len(errs) > 0 {
		outcome = "partial"
		return nil, errors.Join(errs...)
	}

	s.log.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("charge_id", order.ChargeID),
		zap.String("refund_id", order.RefundID))
	return order, nil
}

// GetOrder returns the order if the requester owns it or is an
// administrator.
func (s *FulfillmentService) GetOrder(ctx context.Context, orderID string, requester domain.Actor) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !requester.Admin && requester.ID != order.Owner {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

// TransitionStatus applies a plain status change (shipped, delivered,
// refunded). Cancellation is routed through CancelOrder because it
// carries the compensation side effects.
func (s *FulfillmentService) TransitionStatus(ctx context.Context, orderID string, requester domain.Actor, next domain.OrderStatus) (*domain.Order, error) {
	if next == domain.OrderStatusCancelled {
		return s.CancelOrder(ctx, orderID, requester)
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.Transition(requester, next); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateOrderStatus(ctx, order.ID, next); err != nil {
		return nil, fmt.Errorf("transition order %s: %w", order.ID, err)
	}
	return order, nil
}

func (s *FulfillmentService) countCompensationFailure(step domain.CompensationStep) {
	if s.metrics != nil {
		s.metrics.CompensationFailures.WithLabelValues(string(step)).Inc()
	}
}
