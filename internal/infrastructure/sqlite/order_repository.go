// Package sqlite stores orders in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/shopspring/decimal"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                TEXT    PRIMARY KEY,
    customer_id       TEXT    NOT NULL,
    idempotency_key   TEXT,
    items             TEXT    NOT NULL,
    delivery_fee      TEXT    NOT NULL,
    amount            TEXT    NOT NULL,
    address           TEXT    NOT NULL,
    status            TEXT    NOT NULL,
    payment_confirmed INTEGER NOT NULL DEFAULT 0,
    created_at        TEXT    NOT NULL,
    updated_at        TEXT    NOT NULL
);

-- NULL keys never collide, so orders placed without a key are unconstrained.
CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_idempotency ON orders(customer_id, idempotency_key);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, created_at);

CREATE TABLE IF NOT EXISTS order_tombstones (
    order_id     TEXT PRIMARY KEY,
    cancelled_at TEXT NOT NULL
);
`

// Timestamps are stored fixed width so TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const selectColumns = `
	SELECT id, customer_id, COALESCE(idempotency_key, ''), items, delivery_fee, amount,
	       address, status, payment_confirmed, created_at, updated_at
	FROM   orders`

type OrderRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
//
//	repo, err := sqlite.Open("./data/orders.db")
func Open(path string) (*OrderRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// One connection serializes writers; it also keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &OrderRepository{db: db, now: time.Now}, nil
}

func (r *OrderRepository) Close() error {
	return r.db.Close()
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("sqlite: order id is required")
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("sqlite: encode items: %w", err)
	}
	address, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("sqlite: encode address: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var tombstoned int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM order_tombstones WHERE order_id = ?`, o.ID,
	).Scan(&tombstoned); err != nil {
		return fmt.Errorf("sqlite: check tombstone %q: %w", o.ID, err)
	}
	if tombstoned > 0 {
		return domain.ErrConflict
	}

	const q = `
		INSERT INTO orders
			(id, customer_id, idempotency_key, items, delivery_fee, amount, address,
			 status, payment_confirmed, created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		o.ID,
		o.CustomerID,
		nullableString(o.IdempotencyKey),
		string(items),
		o.DeliveryFee.String(),
		o.Amount.String(),
		string(address),
		string(o.Status),
		o.PaymentConfirmed,
		formatTime(o.CreatedAt),
		formatTime(o.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("sqlite: insert order %q: %w", o.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit insert %q: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get order %q: %w", id, err)
	}
	return o, nil
}

func (r *OrderRepository) CompareAndSwapStatus(ctx context.Context, id string, from, to domain.Status, paymentConfirmed bool) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, payment_confirmed = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), paymentConfirmed, formatTime(r.now()), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: swap status %q: %w", id, err)
	}
	return r.applied(ctx, r.db, res, id)
}

func (r *OrderRepository) Cancel(ctx context.Context, id string, expected domain.Status) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ? AND status = ?`, id, string(expected))
	if err != nil {
		return false, fmt.Errorf("sqlite: cancel order %q: %w", id, err)
	}
	ok, err := r.applied(ctx, tx, res, id)
	if err != nil || !ok {
		return ok, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO order_tombstones (order_id, cancelled_at) VALUES (?, ?)`,
		id, formatTime(r.now()),
	); err != nil {
		return false, fmt.Errorf("sqlite: tombstone %q: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: commit cancel %q: %w", id, err)
	}
	return true, nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, customerID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		selectColumns+` WHERE customer_id = ? AND idempotency_key = ?`, customerID, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find by idempotency key: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) IsCancelled(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM order_tombstones WHERE order_id = ?`, id,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlite: check tombstone %q: %w", id, err)
	}
	return n > 0, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return r.list(ctx, selectColumns+` WHERE customer_id = ? ORDER BY created_at DESC, id DESC`, customerID)
}

func (r *OrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	return r.list(ctx, selectColumns+` ORDER BY created_at DESC, id DESC`)
}

func (r *OrderRepository) list(ctx context.Context, q string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	return out, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// applied turns a conditional write's result into the CAS answer: true when a
// row changed, false when the row exists in another status, ErrNotFound otherwise.
func (r *OrderRepository) applied(ctx context.Context, q querier, res sql.Result, id string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	var exists int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM orders WHERE id = ?`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("sqlite: check order %q: %w", id, err)
	}
	if exists == 0 {
		return false, domain.ErrNotFound
	}
	return false, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		o                            domain.Order
		items, address               string
		fee, amount                  string
		status, createdAt, updatedAt string
	)
	if err := s.Scan(
		&o.ID,
		&o.CustomerID,
		&o.IdempotencyKey,
		&items,
		&fee,
		&amount,
		&address,
		&status,
		&o.PaymentConfirmed,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(address), &o.Address); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	var err error
	if o.DeliveryFee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("decode delivery fee: %w", err)
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("decode amount: %w", err)
	}
	o.Status = domain.Status(status)
	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &o, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
