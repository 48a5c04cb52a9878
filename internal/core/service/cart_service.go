package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/trgiang/fulfillment/internal/core/domain"
	"github.com/trgiang/fulfillment/internal/port"
)

// CartService owns cart mutations. It never touches inventory or
// payment; that coordination belongs to the fulfillment service.
type CartService struct {
	carts port.CartRepository
	log   *zap.Logger
}

func NewCartService(carts port.CartRepository, log *zap.Logger) *CartService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartService{carts: carts, log: log}
}

// GetOrCreate returns the owner's active cart, creating an empty one
// lazily on first use.
func (s *CartService) GetOrCreate(ctx context.Context, owner string) (*domain.Cart, error) {
	if owner == "" {
		return nil, errors.New("cart: owner is required")
	}
	cart, err := s.carts.GetCart(ctx, owner)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewCart(owner), nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// AddLine merges quantity into the owner's cart (re-adds sum).
func (s *CartService) AddLine(ctx context.Context, owner, productRef string, quantity int) (*domain.Cart, error) {
	if productRef == "" {
		return nil, errors.New("cart: product ref is required")
	}
	cart, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := cart.AddLine(productRef, quantity); err != nil {
		return nil, err
	}
	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return nil, err
	}
	s.log.Debug("cart line added",
		zap.String("owner", owner),
		zap.String("product_ref", productRef),
		zap.Int("quantity", quantity))
	return cart, nil
}

// SetLineQuantity overwrites a line's quantity with the supplied total.
func (s *CartService) SetLineQuantity(ctx context.Context, owner, productRef string, quantity int) (*domain.Cart, error) {
	if productRef == "" {
		return nil, errors.New("cart: product ref is required")
	}
	cart, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := cart.SetLineQuantity(productRef, quantity); err != nil {
		return nil, err
	}
	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) RemoveLine(ctx context.Context, owner, productRef string) (*domain.Cart, error) {
	cart, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	cart.RemoveLine(productRef)
	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) Clear(ctx context.Context, owner string) error {
	if owner == "" {
		return errors.New("cart: owner is required")
	}
	return s.carts.ClearCart(ctx, owner)
}

// Snapshot returns a stable, read-consistent view of the cart lines for
// checkout.
func (s *CartService) Snapshot(ctx context.Context, owner string) ([]domain.CartLine, error) {
	cart, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	return cart.Snapshot(), nil
}
