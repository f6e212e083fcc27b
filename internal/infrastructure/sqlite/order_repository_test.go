package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order/ordertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepositoryContract(t *testing.T) {
	ordertest.RunRepositoryContract(t, func(t *testing.T) order.Repository {
		repo, err := Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	})
}

func TestOrderRepositoryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "orders.db")

	repo, err := Open(path)
	require.NoError(t, err)
	o := ordertest.NewOrder(t, "o-1", "c-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Insert(ctx, o))
	require.NoError(t, repo.Close())

	repo, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	got, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(o.Amount))
	assert.True(t, got.CreatedAt.Equal(o.CreatedAt))
	assert.Equal(t, "Margherita", got.Items[0].DisplayName)
}

func TestOrderRepositoryRejectsTombstonedID(t *testing.T) {
	ctx := context.Background()
	repo, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, ordertest.NewOrder(t, "o-1", "c-1", base)))
	ok, err := repo.Cancel(ctx, "o-1", order.StatusProcessing)
	require.NoError(t, err)
	require.True(t, ok)

	err = repo.Insert(ctx, ordertest.NewOrder(t, "o-1", "c-1", base))
	require.ErrorIs(t, err, order.ErrConflict)
}
