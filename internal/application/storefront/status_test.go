package storefront

import (
	"context"
	"errors"
	"testing"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	value   *bool
	saveErr error
}

func (m *memPersister) Load(context.Context) (bool, bool, error) {
	if m.value == nil {
		return false, false, nil
	}
	return *m.value, true, nil
}

func (m *memPersister) Save(_ context.Context, open bool) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.value = &open
	return nil
}

func TestStatusDefaultsAndToggles(t *testing.T) {
	ctx := context.Background()
	s, err := NewStatus(ctx, true, nil, nil)
	require.NoError(t, err)
	assert.True(t, s.IsOpen())

	require.NoError(t, s.SetOpen(ctx, false))
	assert.False(t, s.IsOpen())
}

func TestStatusLoadsPersistedValue(t *testing.T) {
	closed := false
	s, err := NewStatus(context.Background(), true, &memPersister{value: &closed}, nil)
	require.NoError(t, err)
	assert.False(t, s.IsOpen())
}

func TestStatusKeepsFlagWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{saveErr: errors.New("redis down")}
	s, err := NewStatus(ctx, true, p, nil)
	require.NoError(t, err)

	err = s.SetOpen(ctx, false)
	require.ErrorIs(t, err, application.ErrPersistence)
	assert.True(t, s.IsOpen())
}

func TestStatusWritesThrough(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	s, err := NewStatus(ctx, true, p, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetOpen(ctx, false))
	require.NotNil(t, p.value)
	assert.False(t, *p.value)
}
