package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trgiang/fulfillment/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/fulfillment?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	ensureSchema(t, db)
	return db
}

func ensureSchema(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS carts (
			owner VARCHAR(64) PRIMARY KEY,
			updated_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			owner VARCHAR(64) NOT NULL,
			product_ref VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			position INT NOT NULL,
			PRIMARY KEY (owner, product_ref)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id CHAR(36) PRIMARY KEY,
			owner VARCHAR(64) NOT NULL,
			total DECIMAL(12,2) NOT NULL,
			currency CHAR(3) NOT NULL,
			shipping_address TEXT NOT NULL,
			charge_id VARCHAR(64) NOT NULL,
			refund_id VARCHAR(64) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL,
			refund_done TINYINT(1) NOT NULL DEFAULT 0,
			stock_released TINYINT(1) NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id CHAR(36) NOT NULL,
			product_ref VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			unit_price DECIMAL(12,2) NOT NULL,
			position INT NOT NULL,
			PRIMARY KEY (order_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			product_ref VARCHAR(64) PRIMARY KEY,
			available INT NOT NULL,
			version INT NOT NULL DEFAULT 0,
			updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			product_ref VARCHAR(64) PRIMARY KEY,
			unit_price DECIMAL(12,2) NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("schema setup failed: %v", err)
		}
	}
}

func TestSaveAndGetCart(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	owner := "cart-test-" + uuid.NewString()

	cart := domain.NewCart(owner)
	cart.AddLine("widget", 2)
	cart.AddLine("gadget", 5)

	if err := adapter.SaveCart(ctx, cart); err != nil {
		t.Fatalf("SaveCart failed: %v", err)
	}

	loaded, err := adapter.GetCart(ctx, owner)
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if len(loaded.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(loaded.Lines))
	}
	if loaded.Lines[0].ProductRef != "widget" || loaded.Lines[0].Quantity != 2 {
		t.Errorf("expected widget x2 first, got %v", loaded.Lines[0])
	}
	if loaded.Lines[1].ProductRef != "gadget" || loaded.Lines[1].Quantity != 5 {
		t.Errorf("expected gadget x5 second, got %v", loaded.Lines[1])
	}

	// Cleanup
	db.ExecContext(ctx, `DELETE FROM cart_items WHERE owner = ?`, owner)
	db.ExecContext(ctx, `DELETE FROM carts WHERE owner = ?`, owner)
}

func TestGetCart_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	_, err := adapter.GetCart(context.Background(), "no-such-owner-"+uuid.NewString())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestClearCart(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	owner := "clear-test-" + uuid.NewString()

	cart := domain.NewCart(owner)
	cart.AddLine("widget", 1)
	if err := adapter.SaveCart(ctx, cart); err != nil {
		t.Fatalf("SaveCart failed: %v", err)
	}

	if err := adapter.ClearCart(ctx, owner); err != nil {
		t.Fatalf("ClearCart failed: %v", err)
	}

	loaded, err := adapter.GetCart(ctx, owner)
	if err != nil {
		t.Fatalf("GetCart after clear failed: %v", err)
	}
	if !loaded.IsEmpty() {
		t.Errorf("expected empty cart, got %v", loaded.Lines)
	}

	// Cleanup
	db.ExecContext(ctx, `DELETE FROM carts WHERE owner = ?`, owner)
}

func TestInsertAndGetOrder(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	lines := []domain.OrderLine{
		{ProductRef: "widget", Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
		{ProductRef: "gadget", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
	}
	addr := domain.Address{
		Name: "Test User", Line1: "1 Main St", City: "Springfield",
		PostalCode: "12345", Country: "US",
	}
	order, err := domain.NewOrder(uuid.NewString(), "order-test-user", lines, "USD", addr, "charge-test-1")
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}

	if err := adapter.InsertOrder(ctx, order); err != nil {
		t.Fatalf("InsertOrder failed: %v", err)
	}

	loaded, err := adapter.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if !loaded.Total.Equal(decimal.RequireFromString("45.48")) {
		t.Errorf("expected total 45.48, got %s", loaded.Total)
	}
	if loaded.Status != domain.OrderStatusProcessing {
		t.Errorf("expected processing, got %s", loaded.Status)
	}
	if loaded.ShippingAddress.City != "Springfield" {
		t.Errorf("expected address roundtrip, got %+v", loaded.ShippingAddress)
	}
	if len(loaded.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(loaded.Lines))
	}
	if !loaded.Lines[0].UnitPrice.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("expected frozen unit price 19.99, got %s", loaded.Lines[0].UnitPrice)
	}

	// Cleanup
	db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, order.ID)
	db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, order.ID)
}

func TestGetOrder_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	_, err := adapter.GetOrder(context.Background(), uuid.NewString())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestUpdateStatusAndCompensation(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	lines := []domain.OrderLine{{ProductRef: "widget", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}}
	order, err := domain.NewOrder(uuid.NewString(), "status-test-user", lines, "USD", domain.Address{}, "charge-test-2")
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if err := adapter.InsertOrder(ctx, order); err != nil {
		t.Fatalf("InsertOrder failed: %v", err)
	}

	if err := adapter.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("UpdateOrderStatus failed: %v", err)
	}
	comp := domain.Compensation{RefundDone: true, StockReleased: true}
	if err := adapter.RecordCompensation(ctx, order.ID, comp, "refund-test-1"); err != nil {
		t.Fatalf("RecordCompensation failed: %v", err)
	}

	loaded, err := adapter.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if loaded.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", loaded.Status)
	}
	if !loaded.Compensation.RefundDone || !loaded.Compensation.StockReleased {
		t.Errorf("expected compensation recorded, got %+v", loaded.Compensation)
	}
	if loaded.RefundID != "refund-test-1" {
		t.Errorf("expected refund id recorded, got %s", loaded.RefundID)
	}

	// Cleanup
	db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, order.ID)
	db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, order.ID)
}

func TestReserve_ConditionalUpdate(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	if err := adapter.SetStock(ctx, "db-reserve-item", 5); err != nil {
		t.Fatalf("SetStock failed: %v", err)
	}

	ok, err := adapter.Reserve(ctx, "db-reserve-item", 3)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if !ok {
		t.Error("expected reservation to succeed")
	}

	ok, err = adapter.Reserve(ctx, "db-reserve-item", 3)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if ok {
		t.Error("expected reservation to fail with 2 remaining")
	}

	available, err := adapter.GetStock(ctx, "db-reserve-item")
	if err != nil {
		t.Fatalf("GetStock failed: %v", err)
	}
	if available != 2 {
		t.Errorf("expected stock 2, got %d", available)
	}

	rec, err := adapter.GetInventory(ctx, "db-reserve-item")
	if err != nil {
		t.Fatalf("GetInventory failed: %v", err)
	}
	if rec.Version != 1 {
		t.Errorf("expected version 1 after one write, got %d", rec.Version)
	}
}

func TestRelease_UpsertsRow(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	ref := "db-release-" + uuid.NewString()[:8]
	if err := adapter.Release(ctx, ref, 4); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	available, err := adapter.GetStock(ctx, ref)
	if err != nil {
		t.Fatalf("GetStock failed: %v", err)
	}
	if available != 4 {
		t.Errorf("expected stock 4, got %d", available)
	}

	// Cleanup
	db.ExecContext(ctx, `DELETE FROM inventory WHERE product_ref = ?`, ref)
}

func TestUnitPrice(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	_, err := db.ExecContext(ctx, `
		INSERT INTO products (product_ref, unit_price) VALUES ('price-test-item', 19.99)
		ON DUPLICATE KEY UPDATE unit_price = 19.99`)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	price, err := adapter.UnitPrice(ctx, "price-test-item")
	if err != nil {
		t.Fatalf("UnitPrice failed: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("expected 19.99, got %s", price)
	}

	_, err = adapter.UnitPrice(ctx, "no-such-product")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}
