package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/vegbox-admin/api/internal/platform/firestore"
	"github.com/vegbox-admin/api/internal/repositories"
)

// Registry is the Firestore implementation of repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider

	customers *CustomerRepository
	orders    *OrderRepository
	details   *OrderDetailRepository
	counters  *CounterRepository
	logs      *PaymentLogRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on top of provider. health may be nil.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("repository registry requires firestore provider")
	}
	reg := &Registry{provider: provider, health: health}

	var err error
	if reg.customers, err = NewCustomerRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.details, err = NewOrderDetailRepository(provider); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}
	if reg.logs, err = NewPaymentLogRepository(provider); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) Customers() repositories.CustomerRepository       { return r.customers }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) OrderDetails() repositories.OrderDetailRepository { return r.details }
func (r *Registry) Counters() repositories.CounterRepository         { return r.counters }
func (r *Registry) PaymentLogs() repositories.PaymentLogRepository   { return r.logs }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }

// RunInTx runs fn in a Firestore transaction. Repositories called with the ctx
// given to fn join it; a ctx that already carries a transaction is reused.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
