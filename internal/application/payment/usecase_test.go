package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/order/ordertest"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBus struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (b *recordingBus) Publish(_ context.Context, e domoutbox.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

func setup(t *testing.T) (*memory.OrderRepository, *recordingBus, *VerifyPaymentUseCase) {
	t.Helper()
	repo := memory.NewOrderRepository()
	require.NoError(t, repo.Insert(context.Background(),
		ordertest.NewOrder(t, "o-1", "c-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))))
	bus := &recordingBus{}
	return repo, bus, NewVerifyPaymentUseCase(repo, bus, observability.Nop())
}

func verify(uc *VerifyPaymentUseCase, id string, o dompayment.Outcome) (*VerifyPaymentResult, error) {
	return uc.Execute(context.Background(), VerifyPaymentInput{OrderID: id, Outcome: o, Source: "webhook", Trusted: true})
}

func TestVerifyUntrustedSuccessLeavesOrderProcessing(t *testing.T) {
	repo, bus, uc := setup(t)

	res, err := uc.Execute(context.Background(), VerifyPaymentInput{
		OrderID: "o-1", CustomerID: "c-1", Outcome: dompayment.OutcomeSuccess, Source: "redirect",
	})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, domorder.StatusProcessing, res.Status)

	stored, err := repo.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusProcessing, stored.Status)
	assert.False(t, stored.PaymentConfirmed)
	assert.Equal(t, 0, bus.count("order.paid"))
}

func TestVerifyUntrustedFailureCancels(t *testing.T) {
	_, bus, uc := setup(t)

	res, err := uc.Execute(context.Background(), VerifyPaymentInput{
		OrderID: "o-1", CustomerID: "c-1", Outcome: dompayment.OutcomeFailure, Source: "redirect",
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domorder.StatusCancelled, res.Status)
	assert.Equal(t, 1, bus.count("order.cancelled"))
}

func TestVerifyRejectsOtherCustomersOrder(t *testing.T) {
	repo, _, uc := setup(t)

	for _, o := range []dompayment.Outcome{dompayment.OutcomeSuccess, dompayment.OutcomeFailure} {
		_, err := uc.Execute(context.Background(), VerifyPaymentInput{
			OrderID: "o-1", CustomerID: "intruder", Outcome: o, Source: "redirect", Trusted: true,
		})
		require.ErrorIs(t, err, application.ErrNotFound)
	}

	stored, err := repo.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusProcessing, stored.Status)

	_, err = verify(uc, "o-1", dompayment.OutcomeFailure)
	require.NoError(t, err)
	_, err = uc.Execute(context.Background(), VerifyPaymentInput{
		OrderID: "o-1", CustomerID: "c-1", Outcome: dompayment.OutcomeFailure, Source: "redirect",
	})
	require.ErrorIs(t, err, application.ErrNotFound)
}

func TestVerifySuccessIsIdempotent(t *testing.T) {
	repo, bus, uc := setup(t)

	res, err := verify(uc, "o-1", dompayment.OutcomeSuccess)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domorder.StatusPaid, res.Status)

	res, err = verify(uc, "o-1", dompayment.OutcomeSuccess)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, domorder.StatusPaid, res.Status)

	stored, err := repo.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusPaid, stored.Status)
	assert.True(t, stored.PaymentConfirmed)
	assert.Equal(t, 1, bus.count("order.paid"))
}

func TestVerifyFailureDeletesAndIsIdempotent(t *testing.T) {
	repo, bus, uc := setup(t)

	res, err := verify(uc, "o-1", dompayment.OutcomeFailure)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domorder.StatusCancelled, res.Status)

	_, err = repo.Get(context.Background(), "o-1")
	require.ErrorIs(t, err, domorder.ErrNotFound)

	res, err = verify(uc, "o-1", dompayment.OutcomeFailure)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, bus.count("order.cancelled"))
}

func TestVerifyFailureAfterPaidConflicts(t *testing.T) {
	repo, _, uc := setup(t)
	_, err := verify(uc, "o-1", dompayment.OutcomeSuccess)
	require.NoError(t, err)

	_, err = verify(uc, "o-1", dompayment.OutcomeFailure)
	require.ErrorIs(t, err, application.ErrConflict)
	require.ErrorIs(t, err, domorder.ErrInvalidStateTransition)

	stored, err := repo.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusPaid, stored.Status)
}

func TestVerifySuccessAfterCancelConflicts(t *testing.T) {
	_, _, uc := setup(t)
	_, err := verify(uc, "o-1", dompayment.OutcomeFailure)
	require.NoError(t, err)

	_, err = verify(uc, "o-1", dompayment.OutcomeSuccess)
	require.ErrorIs(t, err, application.ErrConflict)
}

func TestVerifyUnknownOrder(t *testing.T) {
	_, _, uc := setup(t)
	for _, o := range []dompayment.Outcome{dompayment.OutcomeSuccess, dompayment.OutcomeFailure} {
		_, err := verify(uc, "nope", o)
		require.ErrorIs(t, err, application.ErrNotFound)
	}
}

func TestVerifyRejectsBadInput(t *testing.T) {
	_, _, uc := setup(t)
	_, err := verify(uc, "", dompayment.OutcomeSuccess)
	require.ErrorIs(t, err, application.ErrInvalidInput)
	_, err = verify(uc, "o-1", dompayment.Outcome("refunded"))
	require.ErrorIs(t, err, application.ErrInvalidInput)
}

func TestVerifyConcurrentSuccessPublishesOnce(t *testing.T) {
	_, bus, uc := setup(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := verify(uc, "o-1", dompayment.OutcomeSuccess)
			assert.NoError(t, err)
			assert.Equal(t, domorder.StatusPaid, res.Status)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, bus.count("order.paid"))
}

// racingRepo reports a lost CAS once, after which the order is observed as Paid.
type racingRepo struct {
	*memory.OrderRepository
	once sync.Once
}

func (r *racingRepo) CompareAndSwapStatus(ctx context.Context, id string, from, to domorder.Status, confirmed bool) (bool, error) {
	lost := false
	r.once.Do(func() {
		_, _ = r.OrderRepository.CompareAndSwapStatus(ctx, id, from, to, confirmed)
		lost = true
	})
	if lost {
		return false, nil
	}
	return r.OrderRepository.CompareAndSwapStatus(ctx, id, from, to, confirmed)
}

func TestVerifyReevaluatesAfterLostRace(t *testing.T) {
	repo, bus, _ := setup(t)
	uc := NewVerifyPaymentUseCase(&racingRepo{OrderRepository: repo}, bus, nil)

	res, err := verify(uc, "o-1", dompayment.OutcomeSuccess)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, domorder.StatusPaid, res.Status)
	assert.Equal(t, 0, bus.count("order.paid"))
}
