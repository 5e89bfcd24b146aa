package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination captures cursor-based pagination input.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// PayMethod is the customer's settlement method.
type PayMethod string

const (
	PayMethodCash     PayMethod = "cash"
	PayMethodTransfer PayMethod = "transfer"
	PayMethodCredit   PayMethod = "credit"
)

// Valid reports whether m is a known payment method.
func (m PayMethod) Valid() bool {
	switch m {
	case PayMethodCash, PayMethodTransfer, PayMethodCredit:
		return true
	default:
		return false
	}
}

// Customer is maintained by customer management and only read here.
type Customer struct {
	ID                       string
	Name                     string
	PayMethod                PayMethod
	RequiresPrintedDocuments bool
}

// Order is one delivery for one customer on one business day.
type Order struct {
	ID             string
	CustomerID     string
	DeliveryDate   time.Time
	Total          *decimal.Decimal
	PaidStatus     bool
	PaidDate       *time.Time
	User           string
	CreatedBy      string
	DocumentNumber string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Details        []OrderDetail
}

// PaymentSnapshot captures the payment fields of the order.
func (o Order) PaymentSnapshot() PaymentStateSnapshot {
	snapshot := PaymentStateSnapshot{OrderID: o.ID, PaidStatus: o.PaidStatus}
	if o.PaidDate != nil {
		paid := *o.PaidDate
		snapshot.PaidDate = &paid
	}
	return snapshot
}

// TotalOrZero returns the order total, treating an uncomputed total as zero.
func (o Order) TotalOrZero() decimal.Decimal {
	if o.Total == nil {
		return decimal.Zero
	}
	return *o.Total
}

// OrderDetail is a line item of an order. Subtotal equals Quantity * Price at rest.
type OrderDetail struct {
	ID          string
	OrderID     string
	VegetableID string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Subtotal    decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PaymentAction enumerates ledger actions.
type PaymentAction string

const (
	PaymentActionMarkPaid      PaymentAction = "mark_paid"
	PaymentActionMarkUnpaid    PaymentAction = "mark_unpaid"
	PaymentActionRevertPayment PaymentAction = "revert_payment"
)

// Valid reports whether a is a known ledger action.
func (a PaymentAction) Valid() bool {
	switch a {
	case PaymentActionMarkPaid, PaymentActionMarkUnpaid, PaymentActionRevertPayment:
		return true
	default:
		return false
	}
}

// Inverse returns the action recorded when an entry with action a is undone.
func (a PaymentAction) Inverse() PaymentAction {
	switch a {
	case PaymentActionMarkPaid:
		return PaymentActionMarkUnpaid
	default:
		return PaymentActionMarkPaid
	}
}

// ActionScope records how the caller selected the orders of a ledger action.
type ActionScope string

const (
	ActionScopeAll      ActionScope = "all"
	ActionScopeCycle    ActionScope = "cycle"
	ActionScopeSelected ActionScope = "selected"
)

// Valid reports whether s is a known scope.
func (s ActionScope) Valid() bool {
	switch s {
	case ActionScopeAll, ActionScopeCycle, ActionScopeSelected:
		return true
	default:
		return false
	}
}

// PaymentStateSnapshot is the payment state of one order at a point in time.
type PaymentStateSnapshot struct {
	OrderID    string
	PaidStatus bool
	PaidDate   *time.Time
}

// RequestMeta is optional caller metadata stored with a ledger entry.
type RequestMeta struct {
	UserAgent string
	IPHash    string
}

// PaymentLogEntry is the audit record of one ledger action.
type PaymentLogEntry struct {
	ID            string
	Action        PaymentAction
	Scope         ActionScope
	OrderIDs      []string
	CustomerID    string
	PreviousState []PaymentStateSnapshot
	NewState      []PaymentStateSnapshot
	TotalAmount   decimal.Decimal
	Actor         string
	Request       RequestMeta
	IsUndone      bool
	UndoneAt      *time.Time
	UndoneBy      string
	UndoReason    string
	OriginalLogID string
	CreatedAt     time.Time
}

// UndoMark carries the undo-tracking fields set when an entry is undone.
type UndoMark struct {
	UndoneAt time.Time
	UndoneBy string
	Reason   string
}

// HealthStatus enumerates dependency health levels.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck is the outcome of probing one dependency.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency checks for readiness.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
