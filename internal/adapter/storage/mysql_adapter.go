package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trgiang/fulfillment/internal/core/domain"
)

// MySQLAdapter is the transactional document store: carts, orders with
// frozen lines, products, and the durable inventory rows. It also
// implements the inventory ledger with a conditional UPDATE, for
// deployments that want reservations backed by the database instead of
// Redis.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// --- carts ---

func (m *MySQLAdapter) GetCart(ctx context.Context, owner string) (*domain.Cart, error) {
	cart := &domain.Cart{Owner: owner}
	err := m.db.QueryRowContext(ctx,
		`SELECT updated_at FROM carts WHERE owner = ?`, owner,
	).Scan(&cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT product_ref, quantity FROM cart_items
		WHERE owner = ? ORDER BY position`, owner)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductRef, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Lines = append(cart.Lines, line)
	}
	return cart, rows.Err()
}

func (m *MySQLAdapter) SaveCart(ctx context.Context, cart *domain.Cart) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO carts (owner, updated_at) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE updated_at = VALUES(updated_at)`,
		cart.Owner, cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE owner = ?`, cart.Owner); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	for i, line := range cart.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (owner, product_ref, quantity, position)
			VALUES (?, ?, ?, ?)`,
			cart.Owner, line.ProductRef, line.Quantity, i,
		)
		if err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) ClearCart(ctx context.Context, owner string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}

	return tx.Commit()
}

// --- orders ---

func (m *MySQLAdapter) InsertOrder(ctx context.Context, order *domain.Order) error {
	addr, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders
			(id, owner, total, currency, shipping_address, charge_id, refund_id,
			 status, refund_done, stock_released, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Owner, order.Total, order.Currency, addr,
		order.ChargeID, order.RefundID, order.Status,
		order.Compensation.RefundDone, order.Compensation.StockReleased,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_ref, quantity, unit_price, position)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, line.ProductRef, line.Quantity, line.UnitPrice, i,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}
	var addr []byte
	err := m.db.QueryRowContext(ctx, `
		SELECT id, owner, total, currency, shipping_address, charge_id, refund_id,
		       status, refund_done, stock_released, created_at, updated_at
		FROM orders WHERE id = ?`, id,
	).Scan(
		&order.ID, &order.Owner, &order.Total, &order.Currency, &addr,
		&order.ChargeID, &order.RefundID, &order.Status,
		&order.Compensation.RefundDone, &order.Compensation.StockReleased,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	if err := json.Unmarshal(addr, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT product_ref, quantity, unit_price FROM order_items
		WHERE order_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductRef, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) RecordCompensation(ctx context.Context, id string, comp domain.Compensation, refundID string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET refund_done = ?, stock_released = ?, refund_id = ?, updated_at = NOW()
		WHERE id = ?`,
		comp.RefundDone, comp.StockReleased, refundID, id,
	)
	if err != nil {
		return fmt.Errorf("record compensation: %w", err)
	}
	return nil
}

// --- products ---

func (m *MySQLAdapter) UnitPrice(ctx context.Context, productRef string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := m.db.QueryRowContext(ctx,
		`SELECT unit_price FROM products WHERE product_ref = ?`, productRef,
	).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, domain.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query price: %w", err)
	}
	return price, nil
}

// --- inventory ledger (database-backed) ---

// Reserve uses a conditional UPDATE so the check and the decrement are
// one statement; the database serializes concurrent reserves on the row.
func (m *MySQLAdapter) Reserve(ctx context.Context, productRef string, quantity int) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory
		SET available = available - ?, version = version + 1, updated_at = NOW()
		WHERE product_ref = ? AND available >= ?`,
		quantity, productRef, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("reserve stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLAdapter) Release(ctx context.Context, productRef string, quantity int) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (product_ref, available, version)
		VALUES (?, ?, 0)
		ON DUPLICATE KEY UPDATE
			available = available + VALUES(available),
			version = version + 1,
			updated_at = NOW()`,
		productRef, quantity,
	)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetStock(ctx context.Context, productRef string) (int, error) {
	var available int
	err := m.db.QueryRowContext(ctx,
		`SELECT available FROM inventory WHERE product_ref = ?`, productRef,
	).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return available, nil
}

func (m *MySQLAdapter) SetStock(ctx context.Context, productRef string, quantity int) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (product_ref, available, version)
		VALUES (?, ?, 0)
		ON DUPLICATE KEY UPDATE available = VALUES(available), version = 0`,
		productRef, quantity,
	)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}

// GetInventory reads the full durable row, mainly for ops tooling and tests.
func (m *MySQLAdapter) GetInventory(ctx context.Context, productRef string) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := m.db.QueryRowContext(ctx, `
		SELECT product_ref, available, version, updated_at
		FROM inventory WHERE product_ref = ?`, productRef,
	).Scan(&rec.ProductRef, &rec.Available, &rec.Version, &rec.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &rec, nil
}
