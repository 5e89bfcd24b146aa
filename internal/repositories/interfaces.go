package repositories

import (
	"context"
	"time"

	domain "github.com/vegbox-admin/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Customers() CustomerRepository
	Orders() OrderRepository
	OrderDetails() OrderDetailRepository
	Counters() CounterRepository
	PaymentLogs() PaymentLogRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	// IsAlreadyExists reports a create that hit an existing document. It
	// implies IsConflict.
	IsAlreadyExists() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction. Repositories
// called with the ctx handed to fn join that transaction; nested calls join
// the outer one. All reads must precede the first write.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CustomerRepository reads customers owned by customer management.
type CustomerRepository interface {
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
}

// OrderRepository persists order headers.
type OrderRepository interface {
	// Insert creates the order together with its (customer, business day)
	// slot. A taken slot fails with a conflict error.
	Insert(ctx context.Context, order domain.Order, slotKey string) error
	Update(ctx context.Context, order domain.Order) error
	// MoveSlot releases fromKey and claims toKey for the order.
	MoveSlot(ctx context.Context, order domain.Order, fromKey, toKey string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByIDs returns the orders that exist, in the requested order.
	FindByIDs(ctx context.Context, orderIDs []string) ([]domain.Order, error)
	// FindByCustomerAndDeliveryRange returns orders of the customer whose
	// delivery date falls in [from, to).
	FindByCustomerAndDeliveryRange(ctx context.Context, customerID string, from, to time.Time) ([]domain.Order, error)
	ExistsDocumentNumber(ctx context.Context, number string) (bool, error)
	UpdatePaymentStates(ctx context.Context, states []domain.PaymentStateSnapshot, updatedAt time.Time) error
}

// OrderDetailRepository persists order line items.
type OrderDetailRepository interface {
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderDetail, error)
	FindByID(ctx context.Context, detailID string) (domain.OrderDetail, error)
	Save(ctx context.Context, detail domain.OrderDetail) error
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// PaymentLogRepository persists ledger audit entries.
type PaymentLogRepository interface {
	Insert(ctx context.Context, entry domain.PaymentLogEntry) error
	FindByID(ctx context.Context, logID string) (domain.PaymentLogEntry, error)
	// MarkUndone sets the undo-tracking fields. It fails with a conflict
	// error when the entry is already undone.
	MarkUndone(ctx context.Context, logID string, mark domain.UndoMark) error
	List(ctx context.Context, filter PaymentLogFilter) (domain.CursorPage[domain.PaymentLogEntry], error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// PaymentLogFilter narrows payment log listings. Empty fields match everything.
type PaymentLogFilter struct {
	CustomerID string
	Action     domain.PaymentAction
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
