package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order/ordertest"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSubscriber struct {
	handlers map[string]domoutbox.Handler
}

func (c *captureSubscriber) Subscribe(name string, h domoutbox.Handler) {
	if c.handlers == nil {
		c.handlers = make(map[string]domoutbox.Handler)
	}
	c.handlers[name] = h
}

type fakeDispatcher struct {
	err        error
	recipients []string
	orders     []*domorder.Order
}

func (f *fakeDispatcher) Send(_ context.Context, recipient string, o *domorder.Order) error {
	f.recipients = append(f.recipients, recipient)
	f.orders = append(f.orders, o)
	return f.err
}

func placed(t *testing.T) domorder.PlacedEvent {
	o := ordertest.NewOrder(t, "o-1", "c-1", time.Now())
	return domorder.NewPlacedEvent(o, time.Now())
}

func TestWorkerSendsConfirmation(t *testing.T) {
	sub := &captureSubscriber{}
	disp := &fakeDispatcher{}
	NewWorker(sub, disp, observability.Nop()).Start()

	h, ok := sub.handlers["order.placed"]
	require.True(t, ok)
	require.NoError(t, h(context.Background(), placed(t)))

	assert.Equal(t, []string{"ada@example.com"}, disp.recipients)
	assert.Equal(t, "o-1", disp.orders[0].ID)
}

func TestWorkerSwallowsDispatcherFailure(t *testing.T) {
	sub := &captureSubscriber{}
	disp := &fakeDispatcher{err: errors.New("sendgrid: 500")}
	NewWorker(sub, disp, nil).Start()

	err := sub.handlers["order.placed"](context.Background(), placed(t))
	require.NoError(t, err)
	assert.Len(t, disp.recipients, 1)
}

func TestWorkerSkipsMissingRecipient(t *testing.T) {
	sub := &captureSubscriber{}
	disp := &fakeDispatcher{}
	NewWorker(sub, disp, nil).Start()

	evt := placed(t)
	evt.Recipient = ""
	require.NoError(t, sub.handlers["order.placed"](context.Background(), evt))
	assert.Empty(t, disp.recipients)
}
