package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
)

type OrderRepository struct {
	mu          sync.RWMutex
	orders      map[string]*domain.Order
	idempotency map[string]string // customerID + "\x00" + key -> order id
	tombstones  map[string]time.Time
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:      make(map[string]*domain.Order),
		idempotency: make(map[string]string),
		tombstones:  make(map[string]time.Time),
	}
}

func idempotencyIndex(customerID, key string) string {
	return customerID + "\x00" + key
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrConflict
	}
	if _, cancelled := r.tombstones[order.ID]; cancelled {
		return domain.ErrConflict
	}

	if key := order.IdempotencyKey; key != "" {
		if existingID, exists := r.idempotency[idempotencyIndex(order.CustomerID, key)]; exists {
			if _, ok := r.orders[existingID]; ok {
				return domain.ErrConflict
			}
		}
	}

	r.orders[order.ID] = order.Clone()
	if key := order.IdempotencyKey; key != "" {
		r.idempotency[idempotencyIndex(order.CustomerID, key)] = order.ID
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) CompareAndSwapStatus(ctx context.Context, id string, from, to domain.Status, paymentConfirmed bool) (bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if order.Status != from {
		return false, nil
	}
	order.Status = to
	order.PaymentConfirmed = paymentConfirmed
	order.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *OrderRepository) Cancel(ctx context.Context, id string, expected domain.Status) (bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if order.Status != expected {
		return false, nil
	}
	delete(r.orders, id)
	if order.IdempotencyKey != "" {
		delete(r.idempotency, idempotencyIndex(order.CustomerID, order.IdempotencyKey))
	}
	r.tombstones[id] = time.Now().UTC()
	return true, nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, customerID, key string) (*domain.Order, error) {
	_ = ctx
	if key == "" {
		return nil, domain.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	orderID, ok := r.idempotency[idempotencyIndex(customerID, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order, found := r.orders[orderID]
	if !found {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) IsCancelled(ctx context.Context, id string) (bool, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tombstones[id]
	return ok, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return r.list(ctx, func(o *domain.Order) bool { return o.CustomerID == customerID })
}

func (r *OrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	return r.list(ctx, func(*domain.Order) bool { return true })
}

func (r *OrderRepository) list(ctx context.Context, keep func(*domain.Order) bool) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
