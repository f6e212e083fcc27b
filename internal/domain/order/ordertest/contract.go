// Package ordertest holds the behaviour every order.Repository adapter must share.
package ordertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewOrder builds a valid Processing order created at the given time.
func NewOrder(t testing.TB, id, customerID string, createdAt time.Time) *order.Order {
	t.Helper()
	o, err := order.New(id, customerID, []order.LineItem{{
		Key:                "pizza-extra cheese",
		ProductID:          "pizza",
		DisplayName:        "Margherita",
		Options:            []string{"extra cheese"},
		RequiredSelections: map[string]string{"size": "large"},
		Quantity:           2,
		UnitPrice:          decimal.RequireFromString("9.50"),
	}}, decimal.RequireFromString("2.00"), order.Address{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Street:    "Main St",
		City:      "Turin",
	}, createdAt)
	require.NoError(t, err)
	return o
}

// RunRepositoryContract exercises repo factories against the shared semantics.
func RunRepositoryContract(t *testing.T, newRepo func(t *testing.T) order.Repository) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("insert and get", func(t *testing.T) {
		repo := newRepo(t)
		o := NewOrder(t, "o-1", "c-1", base)
		require.NoError(t, repo.Insert(ctx, o))

		got, err := repo.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, "c-1", got.CustomerID)
		assert.Equal(t, order.StatusProcessing, got.Status)
		assert.True(t, got.Amount.Equal(decimal.RequireFromString("21.00")), got.Amount.String())
		assert.True(t, got.DeliveryFee.Equal(decimal.RequireFromString("2.00")))
		require.Len(t, got.Items, 1)
		assert.Equal(t, "large", got.Items[0].RequiredSelections["size"])
		assert.Equal(t, []string{"extra cheese"}, got.Items[0].Options)
		assert.Equal(t, "ada@example.com", got.Address.Email)
	})

	t.Run("insert duplicate id conflicts", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-1", "c-1", base)))
		require.ErrorIs(t, repo.Insert(ctx, NewOrder(t, "o-1", "c-2", base)), order.ErrConflict)
	})

	t.Run("idempotency key is unique per customer", func(t *testing.T) {
		repo := newRepo(t)
		first := NewOrder(t, "o-1", "c-1", base)
		first.IdempotencyKey = "k-1"
		require.NoError(t, repo.Insert(ctx, first))

		dup := NewOrder(t, "o-2", "c-1", base)
		dup.IdempotencyKey = "k-1"
		require.ErrorIs(t, repo.Insert(ctx, dup), order.ErrConflict)

		other := NewOrder(t, "o-3", "c-2", base)
		other.IdempotencyKey = "k-1"
		require.NoError(t, repo.Insert(ctx, other))

		got, err := repo.FindByIdempotency(ctx, "c-1", "k-1")
		require.NoError(t, err)
		assert.Equal(t, "o-1", got.ID)

		_, err = repo.FindByIdempotency(ctx, "c-1", "unknown")
		require.ErrorIs(t, err, order.ErrNotFound)
		_, err = repo.FindByIdempotency(ctx, "c-1", "")
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("get unknown", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, "missing")
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("compare and swap", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-1", "c-1", base)))

		ok, err := repo.CompareAndSwapStatus(ctx, "o-1", order.StatusProcessing, order.StatusPaid, true)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.CompareAndSwapStatus(ctx, "o-1", order.StatusProcessing, order.StatusPaid, true)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, order.StatusPaid, got.Status)
		assert.True(t, got.PaymentConfirmed)

		_, err = repo.CompareAndSwapStatus(ctx, "missing", order.StatusProcessing, order.StatusPaid, true)
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("concurrent compare and swap has one winner", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-1", "c-1", base)))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.CompareAndSwapStatus(ctx, "o-1", order.StatusProcessing, order.StatusPaid, true)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("cancel deletes and tombstones", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-1", "c-1", base)))

		ok, err := repo.Cancel(ctx, "o-1", order.StatusProcessing)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = repo.Get(ctx, "o-1")
		require.ErrorIs(t, err, order.ErrNotFound)

		cancelled, err := repo.IsCancelled(ctx, "o-1")
		require.NoError(t, err)
		assert.True(t, cancelled)

		cancelled, err = repo.IsCancelled(ctx, "never")
		require.NoError(t, err)
		assert.False(t, cancelled)
	})

	t.Run("cancel respects expected status", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-1", "c-1", base)))
		_, err := repo.CompareAndSwapStatus(ctx, "o-1", order.StatusProcessing, order.StatusPaid, true)
		require.NoError(t, err)

		ok, err := repo.Cancel(ctx, "o-1", order.StatusProcessing)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, order.StatusPaid, got.Status)

		_, err = repo.Cancel(ctx, "missing", order.StatusProcessing)
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("lists newest first", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-1", "c-1", base)))
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-2", "c-2", base.Add(time.Minute))))
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-3", "c-1", base.Add(2*time.Minute))))

		mine, err := repo.ListByCustomer(ctx, "c-1")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, "o-3", mine[0].ID)
		assert.Equal(t, "o-1", mine[1].ID)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"o-3", "o-2", "o-1"}, []string{all[0].ID, all[1].ID, all[2].ID})

		none, err := repo.ListByCustomer(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("orders within one second list newest first", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-b", "c-1", base)))
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-a", "c-1", base.Add(500*time.Millisecond))))
		require.NoError(t, repo.Insert(ctx, NewOrder(t, "o-c", "c-1", base.Add(time.Millisecond))))

		mine, err := repo.ListByCustomer(ctx, "c-1")
		require.NoError(t, err)
		require.Len(t, mine, 3)
		assert.Equal(t, []string{"o-a", "o-c", "o-b"}, []string{mine[0].ID, mine[1].ID, mine[2].ID})
		assert.True(t, mine[0].CreatedAt.Equal(base.Add(500*time.Millisecond)), mine[0].CreatedAt)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "o-a", all[0].ID)
	})
}
