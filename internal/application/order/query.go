package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseListMine = "order.list_mine"
	useCaseListAll  = "order.list_all"
)

// QueryService serves the read models: a customer's own orders and the admin list.
type QueryService struct {
	repo domain.Repository
	ins  *application.Instruments
}

func NewQueryService(repo domain.Repository, obs observability.Observability) *QueryService {
	return &QueryService{repo: repo, ins: application.NewInstruments(obs, orderService)}
}

// ListCustomerOrders returns the customer's orders newest first.
func (q *QueryService) ListCustomerOrders(ctx context.Context, customerID string) (_ []*domain.Order, err error) {
	ctx, run := q.ins.Start(ctx, useCaseListMine, "ListCustomerOrders",
		attribute.String("order.customer_id", customerID),
	)
	defer func() { run.End(err) }()

	if customerID == "" {
		return nil, run.Fail("CUSTOMER_ID_REQUIRED", application.Invalid(domain.ErrMissingCustomer))
	}
	orders, err := q.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, run.Fail("REPO_LIST_FAILED", wrapRepositoryError(err))
	}
	run.With(observability.F("orders", len(orders)))
	return orders, nil
}

// ListOrders returns every live order newest first.
func (q *QueryService) ListOrders(ctx context.Context) (_ []*domain.Order, err error) {
	ctx, run := q.ins.Start(ctx, useCaseListAll, "ListOrders")
	defer func() { run.End(err) }()

	orders, err := q.repo.List(ctx)
	if err != nil {
		return nil, run.Fail("REPO_LIST_FAILED", wrapRepositoryError(err))
	}
	run.With(observability.F("orders", len(orders)))
	return orders, nil
}
