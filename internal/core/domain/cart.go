package domain

import "time"

// MaxLineQuantity caps a single cart line to keep pathological carts out
// of the checkout path.
const MaxLineQuantity = 100

type CartLine struct {
	ProductRef string
	Quantity   int
}

// Cart holds one owner's pending line items. A cart is created lazily on
// the first add and emptied, not deleted, when an order commits.
type Cart struct {
	Owner     string
	Lines     []CartLine
	UpdatedAt time.Time
}

func NewCart(owner string) *Cart {
	return &Cart{
		Owner:     owner,
		UpdatedAt: time.Now().UTC(),
	}
}

// AddLine merges quantity into an existing line for the same product, or
// appends a new line. Re-adds sum rather than overwrite; SetLineQuantity
// is the explicit overwrite.
func (c *Cart) AddLine(productRef string, quantity int) error {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return ErrInvalidQuantity
	}
	for i, line := range c.Lines {
		if line.ProductRef == productRef {
			merged := line.Quantity + quantity
			if merged > MaxLineQuantity {
				return ErrInvalidQuantity
			}
			c.Lines[i].Quantity = merged
			c.touch()
			return nil
		}
	}
	c.Lines = append(c.Lines, CartLine{ProductRef: productRef, Quantity: quantity})
	c.touch()
	return nil
}

// SetLineQuantity replaces the quantity of a line, creating the line if
// it does not exist yet.
func (c *Cart) SetLineQuantity(productRef string, quantity int) error {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return ErrInvalidQuantity
	}
	for i, line := range c.Lines {
		if line.ProductRef == productRef {
			c.Lines[i].Quantity = quantity
			c.touch()
			return nil
		}
	}
	c.Lines = append(c.Lines, CartLine{ProductRef: productRef, Quantity: quantity})
	c.touch()
	return nil
}

func (c *Cart) RemoveLine(productRef string) {
	for i, line := range c.Lines {
		if line.ProductRef == productRef {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.touch()
			return
		}
	}
}

func (c *Cart) Clear() {
	c.Lines = nil
	c.touch()
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Snapshot returns a stable copy of the lines for checkout; mutations of
// the cart after the snapshot do not affect an in-flight checkout.
func (c *Cart) Snapshot() []CartLine {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return lines
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
