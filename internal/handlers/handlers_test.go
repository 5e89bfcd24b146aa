package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/vegbox-admin/api/internal/domain"
	"github.com/vegbox-admin/api/internal/platform/i18n"
	"github.com/vegbox-admin/api/internal/repositories"
	"github.com/vegbox-admin/api/internal/services"
)

var testLocation = time.FixedZone("JST", 9*60*60)

type stubOrderService struct {
	createFn      func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn         func(context.Context, string) (services.Order, error)
	updateFn      func(context.Context, services.UpdateOrderCommand) (services.Order, error)
	recalculateFn func(context.Context, string) (services.Order, error)
	saveDetailFn  func(context.Context, services.SaveOrderDetailCommand) (services.OrderDetail, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateOrder(ctx context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) RecalculateOrderTotal(ctx context.Context, orderID string) (services.Order, error) {
	if s.recalculateFn != nil {
		return s.recalculateFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) SaveOrderDetail(ctx context.Context, cmd services.SaveOrderDetailCommand) (services.OrderDetail, error) {
	if s.saveDetailFn != nil {
		return s.saveDetailFn(ctx, cmd)
	}
	return services.OrderDetail{}, errors.New("not implemented")
}

type stubLedgerService struct {
	markPaidFn func(context.Context, services.PaymentCommand) (services.PaymentResult, error)
	revertFn   func(context.Context, services.PaymentCommand) (services.PaymentResult, error)
	undoFn     func(context.Context, services.UndoCommand) (services.UndoResult, error)
	listFn     func(context.Context, repositories.PaymentLogFilter) (domain.CursorPage[services.PaymentLogEntry], error)
	getFn      func(context.Context, string) (services.PaymentLogEntry, error)
}

func (s *stubLedgerService) MarkPaid(ctx context.Context, cmd services.PaymentCommand) (services.PaymentResult, error) {
	if s.markPaidFn != nil {
		return s.markPaidFn(ctx, cmd)
	}
	return services.PaymentResult{}, errors.New("not implemented")
}

func (s *stubLedgerService) RevertPayment(ctx context.Context, cmd services.PaymentCommand) (services.PaymentResult, error) {
	if s.revertFn != nil {
		return s.revertFn(ctx, cmd)
	}
	return services.PaymentResult{}, errors.New("not implemented")
}

func (s *stubLedgerService) Undo(ctx context.Context, cmd services.UndoCommand) (services.UndoResult, error) {
	if s.undoFn != nil {
		return s.undoFn(ctx, cmd)
	}
	return services.UndoResult{}, errors.New("not implemented")
}

func (s *stubLedgerService) ListPaymentLog(ctx context.Context, filter repositories.PaymentLogFilter) (domain.CursorPage[services.PaymentLogEntry], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.PaymentLogEntry]{}, nil
}

func (s *stubLedgerService) GetPaymentLog(ctx context.Context, logID string) (services.PaymentLogEntry, error) {
	if s.getFn != nil {
		return s.getFn(ctx, logID)
	}
	return services.PaymentLogEntry{}, errors.New("not implemented")
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func newTestResponder(t *testing.T) *ErrorResponder {
	t.Helper()
	translator, err := i18n.NewTranslator("en", testLocation)
	require.NoError(t, err)
	return NewErrorResponder(translator)
}

// newTestAPI mounts the handlers behind the same API middleware the server uses.
func newTestAPI(t *testing.T, orders services.OrderService, ledger services.PaymentLedgerService, opts ...LedgerOption) http.Handler {
	t.Helper()
	responder := newTestResponder(t)
	return NewRouter(
		WithAPIMiddlewares(
			LocaleMiddleware(responder.Translator()),
			ActorMiddleware(responder, "X-Actor", ""),
		),
		WithOrderRoutes(NewOrderHandlers(orders, responder, testLocation).Routes),
		WithLedgerRoutes(NewLedgerHandlers(ledger, responder, opts...).Routes),
	)
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return payload
}

var actorHeaders = map[string]string{"X-Actor": "hanako"}
