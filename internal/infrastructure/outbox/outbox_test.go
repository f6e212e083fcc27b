package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBusFansOutToAllSubscribers(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil)
	var hits atomic.Int32
	for i := 0; i < 3; i++ {
		bus.Subscribe("order.placed", func(context.Context, domoutbox.Event) error {
			hits.Add(1)
			return nil
		})
	}
	bus.Start(ctx)

	require.NoError(t, bus.Publish(ctx, testEvent{"order.placed"}))
	require.NoError(t, bus.Publish(ctx, testEvent{"unrelated"}))
	bus.Stop(ctx)

	assert.Equal(t, int32(3), hits.Load())
}

func TestBusRecoversFromPanicsAndErrors(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil)
	var after atomic.Bool
	bus.Subscribe("boom", func(context.Context, domoutbox.Event) error { panic("handler bug") })
	bus.Subscribe("boom", func(context.Context, domoutbox.Event) error { return errors.New("nope") })
	bus.Subscribe("next", func(context.Context, domoutbox.Event) error {
		after.Store(true)
		return nil
	})
	bus.Start(ctx)

	require.NoError(t, bus.Publish(ctx, testEvent{"boom"}))
	require.NoError(t, bus.Publish(ctx, testEvent{"next"}))
	bus.Stop(ctx)

	assert.True(t, after.Load())
}

func TestBusHandlerTimeout(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil, WithHandlerTimeout(10*time.Millisecond))
	var deadlineHit atomic.Bool
	bus.Subscribe("slow", func(ctx context.Context, _ domoutbox.Event) error {
		<-ctx.Done()
		deadlineHit.Store(true)
		return ctx.Err()
	})
	bus.Start(ctx)

	require.NoError(t, bus.Publish(ctx, testEvent{"slow"}))
	bus.Stop(ctx)
	assert.True(t, deadlineHit.Load())
}

func TestPublishAfterStop(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil)
	bus.Start(ctx)
	bus.Stop(ctx)

	require.ErrorIs(t, bus.Publish(ctx, testEvent{"late"}), ErrBusClosed)
}

func TestBusCarriesPublisherTrace(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{7},
		SpanID:     trace.SpanID{9},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	bus := NewBus(nil)
	got := make(chan trace.SpanContext, 1)
	bus.Subscribe("order.paid", func(hctx context.Context, _ domoutbox.Event) error {
		got <- trace.SpanContextFromContext(hctx)
		return nil
	})
	bus.Start(context.Background())
	require.NoError(t, bus.Publish(ctx, testEvent{"order.paid"}))
	bus.Stop(context.Background())

	select {
	case linked := <-got:
		assert.Equal(t, sc.TraceID(), linked.TraceID())
		assert.True(t, linked.IsRemote())
	default:
		t.Fatal("handler did not run")
	}
}
