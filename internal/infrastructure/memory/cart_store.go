package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
)

// CartStore keeps carts in process. Mutations on one customer's cart are serialized;
// different customers never contend on the same lock. A bucket exists only while
// its cart holds entries.
type CartStore struct {
	mu      sync.Mutex
	buckets map[string]*cartBucket
}

// Lock order is CartStore.mu then cartBucket.mu. A dropped bucket is marked dead
// so a writer that raced the drop retries against a fresh one.
type cartBucket struct {
	mu      sync.Mutex
	dead    bool
	entries map[domain.Key]domain.Entry
}

func NewCartStore() *CartStore {
	return &CartStore{buckets: make(map[string]*cartBucket)}
}

// lockedBucket returns the customer's bucket locked, creating it when create is set.
// It returns nil when the bucket is absent and create is false.
func (s *CartStore) lockedBucket(customerID string, create bool) *cartBucket {
	for {
		s.mu.Lock()
		b, ok := s.buckets[customerID]
		if !ok {
			if !create {
				s.mu.Unlock()
				return nil
			}
			b = &cartBucket{entries: make(map[domain.Key]domain.Entry)}
			s.buckets[customerID] = b
		}
		s.mu.Unlock()

		b.mu.Lock()
		if !b.dead {
			return b
		}
		b.mu.Unlock()
	}
}

// drop removes b when it is still the customer's bucket and holds no entries.
func (s *CartStore) drop(customerID string, b *cartBucket, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buckets[customerID] != b {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if force || len(b.entries) == 0 {
		b.dead = true
		b.entries = nil
		delete(s.buckets, customerID)
	}
}

func (s *CartStore) Increment(ctx context.Context, customerID string, entry domain.Entry, delta int) (domain.Entry, error) {
	_ = ctx
	if delta < 1 {
		return domain.Entry{}, domain.ErrInvalidQuantity
	}

	b := s.lockedBucket(customerID, true)
	defer b.mu.Unlock()

	current, ok := b.entries[entry.Key]
	if !ok {
		current = entry
		current.Options = append([]string(nil), entry.Options...)
		current.Quantity = 0
	}
	current.Quantity += delta
	b.entries[entry.Key] = current

	out := current
	out.Options = append([]string(nil), current.Options...)
	return out, nil
}

func (s *CartStore) Decrement(ctx context.Context, customerID string, key domain.Key, delta int) (int, error) {
	_ = ctx
	if delta < 1 {
		return 0, domain.ErrInvalidQuantity
	}

	b := s.lockedBucket(customerID, false)
	if b == nil {
		return 0, nil
	}
	current, ok := b.entries[key]
	if !ok {
		b.mu.Unlock()
		return 0, nil
	}
	if current.Quantity > delta {
		current.Quantity -= delta
		b.entries[key] = current
		b.mu.Unlock()
		return current.Quantity, nil
	}
	delete(b.entries, key)
	empty := len(b.entries) == 0
	b.mu.Unlock()

	if empty {
		s.drop(customerID, b, false)
	}
	return 0, nil
}

func (s *CartStore) Get(ctx context.Context, customerID string) (*domain.Cart, error) {
	_ = ctx

	c := domain.New(customerID)
	b := s.lockedBucket(customerID, false)
	if b == nil {
		return c, nil
	}
	defer b.mu.Unlock()

	for k, e := range b.entries {
		e.Options = append([]string(nil), e.Options...)
		c.Entries[k] = e
	}
	return c, nil
}

func (s *CartStore) Deduct(ctx context.Context, customerID string, lines map[domain.Key]int) error {
	_ = ctx
	if len(lines) == 0 {
		return nil
	}

	b := s.lockedBucket(customerID, false)
	if b == nil {
		return nil
	}
	for k, qty := range lines {
		if qty < 1 {
			continue
		}
		current, ok := b.entries[k]
		if !ok {
			continue
		}
		if current.Quantity <= qty {
			delete(b.entries, k)
			continue
		}
		current.Quantity -= qty
		b.entries[k] = current
	}
	empty := len(b.entries) == 0
	b.mu.Unlock()

	if empty {
		s.drop(customerID, b, false)
	}
	return nil
}

func (s *CartStore) Clear(ctx context.Context, customerID string) error {
	_ = ctx

	s.mu.Lock()
	b, ok := s.buckets[customerID]
	s.mu.Unlock()
	if ok {
		s.drop(customerID, b, true)
	}
	return nil
}

// size reports how many customers currently hold a bucket.
func (s *CartStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
