package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/vegbox-admin/api/internal/domain"
	"github.com/vegbox-admin/api/internal/platform/pagination"
	"github.com/vegbox-admin/api/internal/platform/textutil"
	"github.com/vegbox-admin/api/internal/repositories"
)

const (
	ledgerEventMarkPaid      = "payment.ledger.mark_paid"
	ledgerEventRevertPayment = "payment.ledger.revert_payment"
	ledgerEventUndo          = "payment.ledger.undo"

	paymentLogIDPrefix = "plog_"
	ledgerEventPrefix  = "evt_"

	defaultUndoWindow     = 24 * time.Hour
	defaultStateTolerance = time.Second

	maxActorRunes     = 128
	maxReasonRunes    = 500
	maxUserAgentRunes = 512

	ledgerInstrumentation = "github.com/vegbox-admin/api/internal/services"
)

var ledgerTracer = otel.Tracer(ledgerInstrumentation)

// PaymentLedgerServiceDeps bundles collaborators required to construct the payment ledger.
type PaymentLedgerServiceDeps struct {
	Orders      repositories.OrderRepository
	PaymentLogs repositories.PaymentLogRepository
	UnitOfWork  repositories.UnitOfWork
	Events      LedgerEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	// UndoWindow bounds undo of mark_paid entries. Other actions never expire.
	UndoWindow time.Duration
	// StateTolerance is the allowed paid date drift when verifying an undo.
	StateTolerance time.Duration
	IPHashSalt     string
	Meter          metric.Meter
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type paymentLedgerService struct {
	orders     repositories.OrderRepository
	logs       repositories.PaymentLogRepository
	unitOfWork repositories.UnitOfWork
	events     LedgerEventPublisher
	clock      func() time.Time
	newID      func() string
	undoWindow time.Duration
	tolerance  time.Duration
	ipSalt     []byte
	operations metric.Int64Counter
	modified   metric.Int64Counter
	logger     func(context.Context, string, map[string]any)
}

var _ PaymentLedgerService = (*paymentLedgerService)(nil)

// NewPaymentLedgerService wires the ledger over the order and payment log repositories.
func NewPaymentLedgerService(deps PaymentLedgerServiceDeps) (PaymentLedgerService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment ledger: order repository is required")
	}
	if deps.PaymentLogs == nil {
		return nil, errors.New("payment ledger: payment log repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	window := deps.UndoWindow
	if window <= 0 {
		window = defaultUndoWindow
	}
	tolerance := deps.StateTolerance
	if tolerance <= 0 {
		tolerance = defaultStateTolerance
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(ledgerInstrumentation)
	}
	operations, err := meter.Int64Counter("ledger.operations",
		metric.WithDescription("Payment ledger operations by action and outcome"),
	)
	if err != nil {
		return nil, err
	}
	modified, err := meter.Int64Counter("ledger.orders_modified",
		metric.WithDescription("Orders whose payment state changed through the ledger"),
	)
	if err != nil {
		return nil, err
	}

	return &paymentLedgerService{
		orders:     deps.Orders,
		logs:       deps.PaymentLogs,
		unitOfWork: unit,
		events:     deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:      idGen,
		undoWindow: window,
		tolerance:  tolerance,
		ipSalt:     []byte(deps.IPHashSalt),
		operations: operations,
		modified:   modified,
		logger:     logger,
	}, nil
}

// MarkPaid settles the currently unpaid orders among cmd.OrderIDs.
func (s *paymentLedgerService) MarkPaid(ctx context.Context, cmd PaymentCommand) (PaymentResult, error) {
	return s.apply(ctx, domain.PaymentActionMarkPaid, cmd,
		func(o Order) bool { return !o.PaidStatus },
		func(o Order, now time.Time) PaymentStateSnapshot {
			paid := now
			return PaymentStateSnapshot{OrderID: o.ID, PaidStatus: true, PaidDate: &paid}
		})
}

// RevertPayment returns the currently paid orders among cmd.OrderIDs to unpaid.
func (s *paymentLedgerService) RevertPayment(ctx context.Context, cmd PaymentCommand) (PaymentResult, error) {
	return s.apply(ctx, domain.PaymentActionRevertPayment, cmd,
		func(o Order) bool { return o.PaidStatus },
		func(o Order, _ time.Time) PaymentStateSnapshot {
			return PaymentStateSnapshot{OrderID: o.ID, PaidStatus: false}
		})
}

func (s *paymentLedgerService) apply(
	ctx context.Context,
	action PaymentAction,
	cmd PaymentCommand,
	eligible func(Order) bool,
	transition func(Order, time.Time) PaymentStateSnapshot,
) (result PaymentResult, err error) {
	ctx, span := ledgerTracer.Start(ctx, "PaymentLedger."+string(action))
	defer func() { s.finish(ctx, span, action, err) }()

	orderIDs := normalizeOrderIDs(cmd.OrderIDs)
	if len(orderIDs) == 0 {
		return PaymentResult{}, invalidInput("orderIds", "at least one order id is required")
	}
	actor := textutil.PlainText(cmd.Actor, maxActorRunes)
	if actor == "" {
		return PaymentResult{}, invalidInput("actor", "actor is required")
	}
	scope := cmd.Scope
	if scope == "" {
		scope = domain.ActionScopeSelected
	}
	if !scope.Valid() {
		return PaymentResult{}, invalidInput("scope", "unknown scope %q", scope)
	}
	span.SetAttributes(attribute.Int("ledger.requested_orders", len(orderIDs)))

	now := s.now()
	entry := PaymentLogEntry{
		ID:        s.nextLogID(),
		Action:    action,
		Scope:     scope,
		Actor:     actor,
		Request:   s.requestMeta(cmd.Request),
		CreatedAt: now,
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		orders, err := s.orders.FindByIDs(txCtx, orderIDs)
		if err != nil {
			return mapRepositoryError("orders.find_many", err, nil)
		}
		if len(orders) == 0 {
			return newError(ErrNoEligibleOrders, nil, "none of %d orders exist", len(orderIDs))
		}
		customerID, err := singleCustomer(orders)
		if err != nil {
			return err
		}

		previous := make([]PaymentStateSnapshot, 0, len(orders))
		next := make([]PaymentStateSnapshot, 0, len(orders))
		affected := make([]string, 0, len(orders))
		total := decimal.Zero
		for _, order := range orders {
			if !eligible(order) {
				continue
			}
			previous = append(previous, order.PaymentSnapshot())
			next = append(next, transition(order, now))
			affected = append(affected, order.ID)
			total = total.Add(order.TotalOrZero())
		}
		if len(affected) == 0 {
			return newError(ErrNoEligibleOrders, nil, "no order in %s state for %s", action, customerID)
		}

		if err := s.orders.UpdatePaymentStates(txCtx, next, now); err != nil {
			return mapRepositoryError("orders.update_payment_states", err, ErrOrderNotFound)
		}

		entry.OrderIDs = affected
		entry.CustomerID = customerID
		entry.PreviousState = previous
		entry.NewState = next
		entry.TotalAmount = total
		if err := s.logs.Insert(txCtx, entry); err != nil {
			return mapRepositoryError("payment_logs.insert", err, nil)
		}
		return nil
	})
	if err != nil {
		return PaymentResult{}, mapRepositoryError("ledger."+string(action), err, nil)
	}

	s.modified.Add(ctx, int64(len(entry.OrderIDs)), metric.WithAttributes(attribute.String("action", string(action))))
	s.logger(ctx, "ledger."+string(action), map[string]any{
		"logId":      entry.ID,
		"customerId": entry.CustomerID,
		"orders":     len(entry.OrderIDs),
		"total":      entry.TotalAmount.String(),
		"actor":      entry.Actor,
	})
	s.publish(ctx, eventTypeFor(action), entry)

	return PaymentResult{LogID: entry.ID, ModifiedCount: len(entry.OrderIDs)}, nil
}

// Undo restores the orders of a log entry to their previous state. The entry
// is verified, marked undone and answered with an inverse entry inside one
// transaction, so concurrent undos of one entry cannot both succeed.
func (s *paymentLedgerService) Undo(ctx context.Context, cmd UndoCommand) (result UndoResult, err error) {
	ctx, span := ledgerTracer.Start(ctx, "PaymentLedger.undo")
	defer func() { s.finish(ctx, span, "undo", err) }()

	logID := strings.TrimSpace(cmd.LogID)
	if logID == "" {
		return UndoResult{}, invalidInput("logId", "log id is required")
	}
	actor := textutil.PlainText(cmd.Actor, maxActorRunes)
	if actor == "" {
		return UndoResult{}, invalidInput("actor", "actor is required")
	}
	reason := textutil.PlainText(cmd.Reason, maxReasonRunes)
	span.SetAttributes(attribute.String("ledger.log_id", logID))

	now := s.now()
	inverse := PaymentLogEntry{
		ID:            s.nextLogID(),
		Actor:         actor,
		CreatedAt:     now,
		OriginalLogID: logID,
		Request:       s.requestMeta(cmd.Request),
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		original, err := s.logs.FindByID(txCtx, logID)
		if err != nil {
			return mapRepositoryError("payment_logs.find", err, ErrPaymentLogNotFound)
		}
		if original.IsUndone {
			return newError(ErrAlreadyUndone, nil, "log %s", logID)
		}
		if original.Action == domain.PaymentActionMarkPaid && now.After(original.CreatedAt.Add(s.undoWindow)) {
			return newError(ErrUndoWindowExpired, map[string]any{"hours": int(s.undoWindow / time.Hour)},
				"log %s created %s", logID, original.CreatedAt.Format(time.RFC3339))
		}
		if err := s.verifyState(txCtx, original.NewState); err != nil {
			return err
		}

		if err := s.orders.UpdatePaymentStates(txCtx, original.PreviousState, now); err != nil {
			return mapRepositoryError("orders.update_payment_states", err, ErrOrderNotFound)
		}
		if err := s.logs.MarkUndone(txCtx, logID, domain.UndoMark{UndoneAt: now, UndoneBy: actor, Reason: reason}); err != nil {
			return mapUndoConflict(logID, err)
		}

		inverse.Action = original.Action.Inverse()
		inverse.Scope = original.Scope
		inverse.OrderIDs = append([]string(nil), original.OrderIDs...)
		inverse.CustomerID = original.CustomerID
		inverse.PreviousState = original.NewState
		inverse.NewState = original.PreviousState
		inverse.TotalAmount = original.TotalAmount
		if err := s.logs.Insert(txCtx, inverse); err != nil {
			return mapRepositoryError("payment_logs.insert", err, nil)
		}
		return nil
	})
	if err != nil {
		return UndoResult{}, mapRepositoryError("ledger.undo", err, nil)
	}

	s.modified.Add(ctx, int64(len(inverse.NewState)), metric.WithAttributes(attribute.String("action", string(inverse.Action))))
	s.logger(ctx, "ledger.undo", map[string]any{
		"logId":         inverse.ID,
		"originalLogId": logID,
		"orders":        len(inverse.NewState),
		"actor":         actor,
	})
	s.publish(ctx, ledgerEventUndo, inverse)

	return UndoResult{UndoLogID: inverse.ID, RestoredCount: len(inverse.NewState)}, nil
}

// ListPaymentLog returns log entries newest first.
func (s *paymentLedgerService) ListPaymentLog(ctx context.Context, filter repositories.PaymentLogFilter) (domain.CursorPage[PaymentLogEntry], error) {
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	if filter.Action != "" && !filter.Action.Valid() {
		return domain.CursorPage[PaymentLogEntry]{}, invalidInput("action", "unknown action %q", filter.Action)
	}
	if filter.Pagination.PageSize < 0 {
		return domain.CursorPage[PaymentLogEntry]{}, invalidInput("pageSize", "page size must not be negative")
	}
	page, err := s.logs.List(ctx, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[PaymentLogEntry]{}, invalidInput("pageToken", "invalid page token")
		}
		return domain.CursorPage[PaymentLogEntry]{}, mapRepositoryError("payment_logs.list", err, nil)
	}
	return page, nil
}

// GetPaymentLog returns one log entry.
func (s *paymentLedgerService) GetPaymentLog(ctx context.Context, logID string) (PaymentLogEntry, error) {
	logID = strings.TrimSpace(logID)
	if logID == "" {
		return PaymentLogEntry{}, invalidInput("logId", "log id is required")
	}
	entry, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return PaymentLogEntry{}, mapRepositoryError("payment_logs.find", err, ErrPaymentLogNotFound)
	}
	return entry, nil
}

// verifyState checks that every order still has the state the entry left it in.
func (s *paymentLedgerService) verifyState(ctx context.Context, expected []PaymentStateSnapshot) error {
	ids := make([]string, 0, len(expected))
	for _, state := range expected {
		ids = append(ids, state.OrderID)
	}
	orders, err := s.orders.FindByIDs(ctx, ids)
	if err != nil {
		return mapRepositoryError("orders.find_many", err, nil)
	}
	current := make(map[string]Order, len(orders))
	for _, order := range orders {
		current[order.ID] = order
	}
	for _, want := range expected {
		order, ok := current[want.OrderID]
		if !ok {
			return newError(ErrStateChanged, map[string]any{"orderId": want.OrderID}, "order %s no longer exists", want.OrderID)
		}
		if !sameState(want, order.PaymentSnapshot(), s.tolerance) {
			return newError(ErrStateChanged, map[string]any{"orderId": want.OrderID}, "order %s changed", want.OrderID)
		}
	}
	return nil
}

func sameState(want, got PaymentStateSnapshot, tolerance time.Duration) bool {
	if want.PaidStatus != got.PaidStatus {
		return false
	}
	switch {
	case want.PaidDate == nil && got.PaidDate == nil:
		return true
	case want.PaidDate == nil || got.PaidDate == nil:
		return false
	}
	drift := want.PaidDate.Sub(*got.PaidDate)
	if drift < 0 {
		drift = -drift
	}
	return drift <= tolerance
}

func singleCustomer(orders []Order) (string, error) {
	customerID := orders[0].CustomerID
	for _, order := range orders[1:] {
		if order.CustomerID != customerID {
			return "", newError(ErrMixedCustomers, nil, "orders of %s and %s", customerID, order.CustomerID)
		}
	}
	return customerID, nil
}

// mapUndoConflict reports a lost check-and-set on the undo mark as already undone.
func mapUndoConflict(logID string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return newError(ErrAlreadyUndone, nil, "log %s", logID)
	}
	return mapRepositoryError("payment_logs.mark_undone", err, ErrPaymentLogNotFound)
}

func (s *paymentLedgerService) requestMeta(info RequestInfo) domain.RequestMeta {
	meta := domain.RequestMeta{UserAgent: textutil.PlainText(info.UserAgent, maxUserAgentRunes)}
	ip := strings.TrimSpace(info.RemoteIP)
	if ip == "" {
		return meta
	}
	mac := hmac.New(sha256.New, s.ipSalt)
	mac.Write([]byte(ip))
	meta.IPHash = hex.EncodeToString(mac.Sum(nil))
	return meta
}

func (s *paymentLedgerService) publish(ctx context.Context, eventType string, entry PaymentLogEntry) {
	if s.events == nil {
		return
	}
	event := LedgerEvent{
		EventID:       ledgerEventPrefix + strings.ToLower(s.newID()),
		Type:          eventType,
		LogID:         entry.ID,
		Action:        entry.Action,
		CustomerID:    entry.CustomerID,
		OrderIDs:      entry.OrderIDs,
		Actor:         entry.Actor,
		OriginalLogID: entry.OriginalLogID,
		OccurredAt:    entry.CreatedAt,
	}
	if err := s.events.PublishLedgerEvent(ctx, event); err != nil {
		s.logger(ctx, "ledger.publish_failed", map[string]any{
			"logId": entry.ID,
			"type":  eventType,
			"error": err.Error(),
		})
	}
}

func (s *paymentLedgerService) finish(ctx context.Context, span trace.Span, action PaymentAction, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		if kind, ok := KindOf(err); ok {
			outcome = string(kind)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(action)),
		attribute.String("outcome", outcome),
	))
	span.End()
}

func (s *paymentLedgerService) now() time.Time {
	return s.clock()
}

func (s *paymentLedgerService) nextLogID() string {
	return paymentLogIDPrefix + strings.ToLower(strings.TrimSpace(s.newID()))
}

func eventTypeFor(action PaymentAction) string {
	if action == domain.PaymentActionRevertPayment {
		return ledgerEventRevertPayment
	}
	return ledgerEventMarkPaid
}

// normalizeOrderIDs trims ids and drops blanks and repeats, keeping first-seen order.
func normalizeOrderIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
