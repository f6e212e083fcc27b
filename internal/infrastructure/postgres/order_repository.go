// Package postgres stores orders in PostgreSQL through gorm.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/shopspring/decimal"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type orderRecord struct {
	ID               string          `gorm:"primaryKey;type:text"`
	CustomerID       string          `gorm:"type:text;not null;index:idx_orders_customer,priority:1;uniqueIndex:idx_orders_idempotency,priority:1"`
	IdempotencyKey   *string         `gorm:"type:text;uniqueIndex:idx_orders_idempotency,priority:2"`
	Items            string          `gorm:"type:text;not null"`
	DeliveryFee      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Address          string          `gorm:"type:text;not null"`
	Status           string          `gorm:"type:text;not null"`
	PaymentConfirmed bool            `gorm:"not null;default:false"`
	CreatedAt        time.Time       `gorm:"not null;index:idx_orders_customer,priority:2"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

func (orderRecord) TableName() string { return "orders" }

type tombstoneRecord struct {
	OrderID     string    `gorm:"primaryKey;type:text"`
	CancelledAt time.Time `gorm:"not null"`
}

func (tombstoneRecord) TableName() string { return "order_tombstones" }

type OrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to dsn and migrates the order tables.
func Open(dsn string) (*OrderRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the order tables.
func New(db *gorm.DB) (*OrderRepository, error) {
	if err := db.AutoMigrate(&orderRecord{}, &tombstoneRecord{}); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &OrderRepository{db: db, now: time.Now}, nil
}

func (r *OrderRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("postgres: order id is required")
	}
	rec, err := toRecord(o)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tombstoned int64
		if err := tx.Model(&tombstoneRecord{}).Where("order_id = ?", o.ID).Count(&tombstoned).Error; err != nil {
			return err
		}
		if tombstoned > 0 {
			return domain.ErrConflict
		}
		return tx.Create(rec).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrConflict), errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrConflict
	default:
		return fmt.Errorf("postgres: insert order %q: %w", o.ID, err)
	}
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *OrderRepository) CompareAndSwapStatus(ctx context.Context, id string, from, to domain.Status, paymentConfirmed bool) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&orderRecord{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":            string(to),
			"payment_confirmed": paymentConfirmed,
			"updated_at":        r.now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("postgres: swap status %q: %w", id, res.Error)
	}
	return applied(db, res.RowsAffected, id)
}

func (r *OrderRepository) Cancel(ctx context.Context, id string, expected domain.Status) (bool, error) {
	var ok bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status = ?", id, string(expected)).Delete(&orderRecord{})
		if res.Error != nil {
			return res.Error
		}
		var err error
		if ok, err = applied(tx, res.RowsAffected, id); err != nil || !ok {
			return err
		}
		return tx.Save(&tombstoneRecord{OrderID: id, CancelledAt: r.now().UTC()}).Error
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("postgres: cancel order %q: %w", id, err)
	}
	return ok, nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, customerID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	return r.first(ctx, "customer_id = ? AND idempotency_key = ?", customerID, key)
}

func (r *OrderRepository) IsCancelled(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&tombstoneRecord{}).Where("order_id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("postgres: check tombstone %q: %w", id, err)
	}
	return n > 0, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return r.list(r.db.WithContext(ctx).Where("customer_id = ?", customerID))
}

func (r *OrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	return r.list(r.db.WithContext(ctx))
}

func (r *OrderRepository) first(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	var rec orderRecord
	err := r.db.WithContext(ctx).Where(query, args...).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order: %w", err)
	}
	return rec.toDomain()
}

func (r *OrderRepository) list(q *gorm.DB) ([]*domain.Order, error) {
	var recs []orderRecord
	if err := q.Order("created_at DESC, id DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	out := make([]*domain.Order, 0, len(recs))
	for _, rec := range recs {
		o, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// applied reports a conditional write's CAS result, distinguishing a status
// mismatch (false) from a missing order (ErrNotFound).
func applied(db *gorm.DB, rowsAffected int64, id string) (bool, error) {
	if rowsAffected > 0 {
		return true, nil
	}
	var n int64
	if err := db.Model(&orderRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	if n == 0 {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func toRecord(o *domain.Order) (*orderRecord, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode items: %w", err)
	}
	address, err := json.Marshal(o.Address)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode address: %w", err)
	}
	rec := &orderRecord{
		ID:               o.ID,
		CustomerID:       o.CustomerID,
		Items:            string(items),
		DeliveryFee:      o.DeliveryFee,
		Amount:           o.Amount,
		Address:          string(address),
		Status:           string(o.Status),
		PaymentConfirmed: o.PaymentConfirmed,
		CreatedAt:        o.CreatedAt.UTC(),
		UpdatedAt:        o.UpdatedAt.UTC(),
	}
	if o.IdempotencyKey != "" {
		key := o.IdempotencyKey
		rec.IdempotencyKey = &key
	}
	return rec, nil
}

func (rec orderRecord) toDomain() (*domain.Order, error) {
	o := &domain.Order{
		ID:               rec.ID,
		CustomerID:       rec.CustomerID,
		DeliveryFee:      rec.DeliveryFee,
		Amount:           rec.Amount,
		Status:           domain.Status(rec.Status),
		PaymentConfirmed: rec.PaymentConfirmed,
		CreatedAt:        rec.CreatedAt.UTC(),
		UpdatedAt:        rec.UpdatedAt.UTC(),
	}
	if rec.IdempotencyKey != nil {
		o.IdempotencyKey = *rec.IdempotencyKey
	}
	if err := json.Unmarshal([]byte(rec.Items), &o.Items); err != nil {
		return nil, fmt.Errorf("postgres: decode items for %q: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(rec.Address), &o.Address); err != nil {
		return nil, fmt.Errorf("postgres: decode address for %q: %w", rec.ID, err)
	}
	return o, nil
}
