package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/vegbox-admin/api/internal/repositories"
)

// ErrorKind classifies service failures so transports can map them without
// knowing individual sentinels.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindConflict           ErrorKind = "conflict"
	KindNotFound           ErrorKind = "not_found"
	KindStateInconsistency ErrorKind = "state_inconsistency"
	KindWindowExpired      ErrorKind = "window_expired"
	KindStorage            ErrorKind = "storage"
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrCustomerNotFound        = errors.New("customer not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderDetailNotFound     = errors.New("order detail not found")
	ErrDuplicateOrder          = errors.New("duplicate order")
	ErrDocumentNumberExhausted = errors.New("document number generation exhausted")
	ErrCounterInvalidInput     = errors.New("counter: invalid input")
	ErrCounterExhausted        = errors.New("counter: exhausted")
	ErrNoEligibleOrders        = errors.New("no eligible orders")
	ErrMixedCustomers          = errors.New("orders belong to more than one customer")
	ErrPaymentLogNotFound      = errors.New("payment log not found")
	ErrAlreadyUndone           = errors.New("payment log already undone")
	ErrUndoWindowExpired       = errors.New("undo window expired")
	ErrStateChanged            = errors.New("state changed, cannot undo")
	ErrStorage                 = errors.New("storage failure")
)

type errorSpec struct {
	kind ErrorKind
	key  string
}

var errorCatalog = map[error]errorSpec{
	ErrInvalidInput:            {KindValidation, "error.invalid_input"},
	ErrCustomerNotFound:        {KindNotFound, "error.customer_not_found"},
	ErrOrderNotFound:           {KindNotFound, "error.order_not_found"},
	ErrOrderDetailNotFound:     {KindNotFound, "error.order_detail_not_found"},
	ErrDuplicateOrder:          {KindConflict, "error.duplicate_order"},
	ErrDocumentNumberExhausted: {KindConflict, "error.document_number_exhausted"},
	ErrCounterInvalidInput:     {KindValidation, "error.invalid_input"},
	ErrCounterExhausted:        {KindConflict, "error.counter_exhausted"},
	ErrNoEligibleOrders:        {KindStateInconsistency, "error.no_eligible_orders"},
	ErrMixedCustomers:          {KindValidation, "error.mixed_customers"},
	ErrPaymentLogNotFound:      {KindNotFound, "error.payment_log_not_found"},
	ErrAlreadyUndone:           {KindStateInconsistency, "error.already_undone"},
	ErrUndoWindowExpired:       {KindWindowExpired, "error.undo_window_expired"},
	ErrStateChanged:            {KindStateInconsistency, "error.state_changed"},
	ErrStorage:                 {KindStorage, "error.storage"},
}

// Error is the structured failure returned by every service operation. Key
// and Params feed the localized message; Unwrap reaches the sentinel.
type Error struct {
	Kind   ErrorKind
	Key    string
	Params map[string]any
	Err    error
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// newError builds an Error for sentinel. detail, when non-empty, is appended to
// the internal message only.
func newError(sentinel error, params map[string]any, detail string, args ...any) *Error {
	spec, ok := errorCatalog[sentinel]
	if !ok {
		spec = errorSpec{KindStorage, "error.storage"}
	}
	err := sentinel
	if detail != "" {
		err = fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(detail, args...))
	}
	return &Error{Kind: spec.kind, Key: spec.key, Params: params, Err: err}
}

func invalidInput(field, detail string, args ...any) *Error {
	return newError(ErrInvalidInput, map[string]any{"field": field}, field+": "+detail, args...)
}

func storageError(op string, cause error) *Error {
	return &Error{
		Kind: KindStorage,
		Key:  errorCatalog[ErrStorage].key,
		Err:  fmt.Errorf("%w: %s: %w", ErrStorage, op, cause),
	}
}

// KindOf returns the kind of the service error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind, true
	}
	return "", false
}

// DuplicateOrderDate returns the conflicting delivery date carried by a duplicate order error.
func DuplicateOrderDate(err error) (time.Time, bool) {
	var svcErr *Error
	if !errors.As(err, &svcErr) || !errors.Is(svcErr, ErrDuplicateOrder) {
		return time.Time{}, false
	}
	date, ok := svcErr.Params["deliveryDate"].(time.Time)
	return date, ok
}

// mapRepositoryError converts repository failures into service errors. A
// service error returned from inside a transaction callback comes back
// wrapped by the storage layer and is passed through unchanged. notFound is
// the sentinel reported for missing documents.
func mapRepositoryError(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	if code, ok := repositories.CounterErrorCodeOf(err); ok {
		switch code {
		case repositories.CounterErrorExhausted:
			return newError(ErrCounterExhausted, nil, "%s: %v", op, err)
		case repositories.CounterErrorInvalidInput:
			return newError(ErrCounterInvalidInput, nil, "%s: %v", op, err)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() && notFound != nil {
		return newError(notFound, nil, "%s: %v", op, err)
	}
	return storageError(op, err)
}
