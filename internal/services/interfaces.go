package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/vegbox-admin/api/internal/domain"
	"github.com/vegbox-admin/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	Customer             = domain.Customer
	Order                = domain.Order
	OrderDetail          = domain.OrderDetail
	PaymentAction        = domain.PaymentAction
	ActionScope          = domain.ActionScope
	PaymentStateSnapshot = domain.PaymentStateSnapshot
	PaymentLogEntry      = domain.PaymentLogEntry
	SystemHealthReport   = domain.SystemHealthReport
)

// CounterService provides atomic sequence values formatted for display.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
}

// DocumentNumberGenerator allocates printed-document numbers for orders.
type DocumentNumberGenerator interface {
	Generate(ctx context.Context, order Order, customer Customer) (string, error)
}

// OrderService maintains order headers, their details and derived totals.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error)
	RecalculateOrderTotal(ctx context.Context, orderID string) (Order, error)
	SaveOrderDetail(ctx context.Context, cmd SaveOrderDetailCommand) (OrderDetail, error)
}

// PaymentLedgerService changes order payment states and keeps the audit log
// that makes those changes undoable.
type PaymentLedgerService interface {
	MarkPaid(ctx context.Context, cmd PaymentCommand) (PaymentResult, error)
	RevertPayment(ctx context.Context, cmd PaymentCommand) (PaymentResult, error)
	Undo(ctx context.Context, cmd UndoCommand) (UndoResult, error)
	ListPaymentLog(ctx context.Context, filter repositories.PaymentLogFilter) (domain.CursorPage[PaymentLogEntry], error)
	GetPaymentLog(ctx context.Context, logID string) (PaymentLogEntry, error)
}

// SystemService reports service health for readiness checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
	Prefix       string
	Suffix       string
	PadLength    int
	Formatter    func(now time.Time, value int64) string
}

// CounterValue is an allocated sequence value and its formatted rendition.
type CounterValue struct {
	Value     int64
	Formatted string
}

// CreateOrderCommand creates one order for a customer and delivery date.
type CreateOrderCommand struct {
	CustomerID   string
	DeliveryDate time.Time
	User         string
	Actor        string
}

// UpdateOrderCommand patches an order. Nil fields are left unchanged; a nil
// Total recomputes the total from the order details.
type UpdateOrderCommand struct {
	OrderID      string
	DeliveryDate *time.Time
	User         *string
	Total        *decimal.Decimal
	Actor        string
}

// SaveOrderDetailCommand creates a detail when DetailID is empty and replaces it otherwise.
type SaveOrderDetailCommand struct {
	OrderID     string
	DetailID    string
	VegetableID string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
}

// RequestInfo is caller metadata recorded with ledger entries. The remote IP
// is stored only as a salted hash.
type RequestInfo struct {
	UserAgent string
	RemoteIP  string
}

// PaymentCommand selects the orders of a mark-paid or revert action.
type PaymentCommand struct {
	OrderIDs []string
	Scope    ActionScope
	Actor    string
	Request  RequestInfo
}

// PaymentResult reports the log entry written by a ledger action.
type PaymentResult struct {
	LogID         string
	ModifiedCount int
}

// UndoCommand reverses a previous ledger entry.
type UndoCommand struct {
	LogID   string
	Reason  string
	Actor   string
	Request RequestInfo
}

// UndoResult reports the inverse entry and how many orders were restored.
type UndoResult struct {
	UndoLogID     string
	RestoredCount int
}

// LedgerEvent is published after a ledger mutation commits.
type LedgerEvent struct {
	EventID       string        `json:"eventId"`
	Type          string        `json:"type"`
	LogID         string        `json:"logId"`
	Action        PaymentAction `json:"action"`
	CustomerID    string        `json:"customerId"`
	OrderIDs      []string      `json:"orderIds"`
	Actor         string        `json:"actor"`
	OriginalLogID string        `json:"originalLogId,omitempty"`
	OccurredAt    time.Time     `json:"occurredAt"`
}

// LedgerEventPublisher delivers ledger events to downstream consumers.
type LedgerEventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event LedgerEvent) error
}
