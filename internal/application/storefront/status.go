package storefront

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	storefrontService = "storefront-service"
	useCaseSetStatus  = "storefront.set_status"
)

// Persister stores the open flag outside the process so restarts keep the admin's choice.
type Persister interface {
	Load(ctx context.Context) (open bool, found bool, err error)
	Save(ctx context.Context, open bool) error
}

// Status is the shared "accepting orders" flag. Reads are lock-free; only SetOpen mutates it.
type Status struct {
	open      atomic.Bool
	persister Persister
	ins       *application.Instruments
}

// NewStatus starts from initial, then from the persisted value when one exists.
func NewStatus(ctx context.Context, initial bool, persister Persister, obs observability.Observability) (*Status, error) {
	s := &Status{persister: persister, ins: application.NewInstruments(obs, storefrontService)}
	s.open.Store(initial)
	if persister == nil {
		return s, nil
	}
	open, found, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("storefront: load status: %w", err)
	}
	if found {
		s.open.Store(open)
	}
	return s, nil
}

func (s *Status) IsOpen() bool {
	return s.open.Load()
}

// SetOpen changes the flag. With a persister the new value is written first so a
// failed write leaves the in-memory flag unchanged.
func (s *Status) SetOpen(ctx context.Context, open bool) (err error) {
	ctx, run := s.ins.Start(ctx, useCaseSetStatus, "SetStoreStatus",
		attribute.Bool("storefront.open", open),
	)
	defer func() { run.End(err) }()
	run.With(
		observability.F("previous", s.open.Load()),
		observability.F("open", open),
	)

	if s.persister != nil {
		if err := s.persister.Save(ctx, open); err != nil {
			return run.Fail("PERSIST_FAILED", fmt.Errorf("%w: %w", application.ErrPersistence, err))
		}
	}
	s.open.Store(open)
	return nil
}
