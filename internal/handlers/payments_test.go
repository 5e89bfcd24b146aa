package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domain "github.com/vegbox-admin/api/internal/domain"
	"github.com/vegbox-admin/api/internal/platform/idempotency"
	"github.com/vegbox-admin/api/internal/repositories"
	"github.com/vegbox-admin/api/internal/services"
)

func TestLedgerHandlersMarkPaid(t *testing.T) {
	var captured services.PaymentCommand
	ledger := &stubLedgerService{
		markPaidFn: func(_ context.Context, cmd services.PaymentCommand) (services.PaymentResult, error) {
			captured = cmd
			return services.PaymentResult{LogID: "plog_1", ModifiedCount: 2}, nil
		},
	}
	api := newTestAPI(t, nil, ledger)

	headers := map[string]string{"X-Actor": "hanako", "User-Agent": "admin-console/2.1"}
	rec := doRequest(t, api, http.MethodPost, "/api/v1/payments:mark-paid", `{"orderIds":["ord_1","ord_2"],"scope":"cycle"}`, headers)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, "plog_1", body["logId"])
	require.Equal(t, float64(2), body["modifiedCount"])

	require.Equal(t, []string{"ord_1", "ord_2"}, captured.OrderIDs)
	require.Equal(t, domain.ActionScopeCycle, captured.Scope)
	require.Equal(t, "hanako", captured.Actor)
	require.Equal(t, "admin-console/2.1", captured.Request.UserAgent)
	require.Equal(t, "192.0.2.1", captured.Request.RemoteIP)
}

func TestLedgerHandlersRevertMapsStateErrors(t *testing.T) {
	ledger := &stubLedgerService{
		revertFn: func(context.Context, services.PaymentCommand) (services.PaymentResult, error) {
			return services.PaymentResult{}, &services.Error{
				Kind: services.KindStateInconsistency,
				Key:  "error.no_eligible_orders",
				Err:  services.ErrNoEligibleOrders,
			}
		},
	}
	api := newTestAPI(t, nil, ledger)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/payments:revert", `{"orderIds":["ord_1"]}`, actorHeaders)

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "no_eligible_orders", body["error"])
	require.Equal(t, "None of the selected orders can be changed by this action.", body["message"])
}

func TestLedgerHandlersUndo(t *testing.T) {
	var captured services.UndoCommand
	ledger := &stubLedgerService{
		undoFn: func(_ context.Context, cmd services.UndoCommand) (services.UndoResult, error) {
			captured = cmd
			return services.UndoResult{UndoLogID: "plog_2", RestoredCount: 3}, nil
		},
	}
	api := newTestAPI(t, nil, ledger)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/payment-logs/plog_1:undo", `{"reason":"wrong customer"}`, actorHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, "plog_2", body["undoLogId"])
	require.Equal(t, float64(3), body["restoredCount"])
	require.Equal(t, "plog_1", captured.LogID)
	require.Equal(t, "wrong customer", captured.Reason)
	require.Equal(t, "hanako", captured.Actor)
	require.Equal(t, "192.0.2.1", captured.Request.RemoteIP)

	withAgent := map[string]string{"X-Actor": "hanako", "User-Agent": "ledger-cli/1.0"}
	rec = doRequest(t, api, http.MethodPost, "/api/v1/payment-logs/plog_1:undo", "", withAgent)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "ledger-cli/1.0", captured.Request.UserAgent)

	rec = doRequest(t, api, http.MethodPost, "/api/v1/payment-logs/plog_9:undo", "", actorHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "plog_9", captured.LogID)
	require.Empty(t, captured.Reason)
}

func TestLedgerHandlersUndoErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    *services.Error
		status int
		code   string
	}{
		{
			name:   "window expired",
			err:    &services.Error{Kind: services.KindWindowExpired, Key: "error.undo_window_expired", Params: map[string]any{"hours": 24}, Err: services.ErrUndoWindowExpired},
			status: http.StatusGone,
			code:   "undo_window_expired",
		},
		{
			name:   "already undone",
			err:    &services.Error{Kind: services.KindStateInconsistency, Key: "error.already_undone", Err: services.ErrAlreadyUndone},
			status: http.StatusConflict,
			code:   "already_undone",
		},
		{
			name:   "state changed",
			err:    &services.Error{Kind: services.KindStateInconsistency, Key: "error.state_changed", Params: map[string]any{"orderId": "ord_1"}, Err: services.ErrStateChanged},
			status: http.StatusConflict,
			code:   "state_changed",
		},
		{
			name:   "not found",
			err:    &services.Error{Kind: services.KindNotFound, Key: "error.payment_log_not_found", Err: services.ErrPaymentLogNotFound},
			status: http.StatusNotFound,
			code:   "payment_log_not_found",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := &stubLedgerService{
				undoFn: func(context.Context, services.UndoCommand) (services.UndoResult, error) {
					return services.UndoResult{}, tc.err
				},
			}
			api := newTestAPI(t, nil, ledger)

			rec := doRequest(t, api, http.MethodPost, "/api/v1/payment-logs/plog_1:undo", `{}`, actorHeaders)

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.code, decodeBody(t, rec)["error"])
		})
	}
}

func TestLedgerHandlersUndoWindowMessage(t *testing.T) {
	ledger := &stubLedgerService{
		undoFn: func(context.Context, services.UndoCommand) (services.UndoResult, error) {
			return services.UndoResult{}, &services.Error{
				Kind:   services.KindWindowExpired,
				Key:    "error.undo_window_expired",
				Params: map[string]any{"hours": 24},
				Err:    services.ErrUndoWindowExpired,
			}
		},
	}
	api := newTestAPI(t, nil, ledger)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/payment-logs/plog_1:undo", `{}`, actorHeaders)

	body := decodeBody(t, rec)
	require.Equal(t, "This action can only be undone within 24 hours.", body["message"])
	require.Equal(t, map[string]any{"hours": float64(24)}, body["details"])
}

func TestLedgerHandlersListPaymentLogs(t *testing.T) {
	created := time.Date(2024, time.March, 15, 0, 30, 0, 0, time.UTC)
	paid := created
	var captured repositories.PaymentLogFilter
	ledger := &stubLedgerService{
		listFn: func(_ context.Context, filter repositories.PaymentLogFilter) (domain.CursorPage[services.PaymentLogEntry], error) {
			captured = filter
			return domain.CursorPage[services.PaymentLogEntry]{
				Items: []services.PaymentLogEntry{{
					ID:            "plog_1",
					Action:        domain.PaymentActionMarkPaid,
					Scope:         domain.ActionScopeSelected,
					OrderIDs:      []string{"ord_1"},
					CustomerID:    "cus_1",
					PreviousState: []services.PaymentStateSnapshot{{OrderID: "ord_1"}},
					NewState:      []services.PaymentStateSnapshot{{OrderID: "ord_1", PaidStatus: true, PaidDate: &paid}},
					TotalAmount:   decimal.NewFromInt(1200),
					Actor:         "hanako",
					CreatedAt:     created,
				}},
				NextPageToken: "next-token",
			}, nil
		},
	}
	api := newTestAPI(t, nil, ledger)

	rec := doRequest(t, api, http.MethodGet, "/api/v1/payment-logs?customerId=cus_1&action=mark_paid&pageSize=500&pageToken=abc", "", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "cus_1", captured.CustomerID)
	require.Equal(t, domain.PaymentActionMarkPaid, captured.Action)
	require.Equal(t, maxPaymentLogPageSize, captured.Pagination.PageSize)
	require.Equal(t, "abc", captured.Pagination.PageToken)

	body := decodeBody(t, rec)
	require.Equal(t, "next-token", body["nextPageToken"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	require.Equal(t, "1200.00", item["totalAmount"])
	require.Equal(t, "mark_paid", item["action"])
	newState := item["newState"].([]any)[0].(map[string]any)
	require.Equal(t, true, newState["paidStatus"])
	require.Equal(t, "2024-03-15T00:30:00Z", newState["paidDate"])
	previous := item["previousState"].([]any)[0].(map[string]any)
	require.Nil(t, previous["paidDate"])
}

func TestLedgerHandlersListRejectsBadPagination(t *testing.T) {
	api := newTestAPI(t, nil, &stubLedgerService{})

	rec := doRequest(t, api, http.MethodGet, "/api/v1/payment-logs?pageSize=-3", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, map[string]any{"field": "pageSize"}, decodeBody(t, rec)["details"])

	rec = doRequest(t, api, http.MethodGet, "/api/v1/payment-logs?pageToken="+strings.Repeat("x", 2000), "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, map[string]any{"field": "pageToken"}, decodeBody(t, rec)["details"])
}

func TestLedgerHandlersGetPaymentLog(t *testing.T) {
	undoneAt := time.Date(2024, time.March, 15, 2, 0, 0, 0, time.UTC)
	ledger := &stubLedgerService{
		getFn: func(_ context.Context, logID string) (services.PaymentLogEntry, error) {
			return services.PaymentLogEntry{
				ID:         logID,
				Action:     domain.PaymentActionRevertPayment,
				IsUndone:   true,
				UndoneAt:   &undoneAt,
				UndoneBy:   "taro",
				UndoReason: "mistake",
			}, nil
		},
	}
	api := newTestAPI(t, nil, ledger)

	rec := doRequest(t, api, http.MethodGet, "/api/v1/payment-logs/plog_5", "", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entry := decodeBody(t, rec)["paymentLog"].(map[string]any)
	require.Equal(t, "plog_5", entry["id"])
	require.Equal(t, true, entry["isUndone"])
	require.Equal(t, "2024-03-15T02:00:00Z", entry["undoneAt"])
	require.Equal(t, []any{}, entry["orderIds"])
}

func TestLedgerHandlersReplayIdempotentMutation(t *testing.T) {
	calls := 0
	ledger := &stubLedgerService{
		markPaidFn: func(context.Context, services.PaymentCommand) (services.PaymentResult, error) {
			calls++
			return services.PaymentResult{LogID: "plog_1", ModifiedCount: 1}, nil
		},
	}
	store := idempotency.NewMemoryStore()
	api := newTestAPI(t, nil, ledger, WithLedgerMutationMiddleware(idempotency.Middleware(store)))

	headers := map[string]string{"X-Actor": "hanako", "Idempotency-Key": "key-1"}
	first := doRequest(t, api, http.MethodPost, "/api/v1/payments:mark-paid", `{"orderIds":["ord_1"]}`, headers)
	second := doRequest(t, api, http.MethodPost, "/api/v1/payments:mark-paid", `{"orderIds":["ord_1"]}`, headers)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, calls)

	conflict := doRequest(t, api, http.MethodPost, "/api/v1/payments:mark-paid", `{"orderIds":["ord_2"]}`, headers)
	require.Equal(t, http.StatusConflict, conflict.Code)
	require.Equal(t, 1, calls)
}

func TestLedgerHandlersRateLimitPerActor(t *testing.T) {
	now := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	ledger := &stubLedgerService{
		markPaidFn: func(context.Context, services.PaymentCommand) (services.PaymentResult, error) {
			return services.PaymentResult{LogID: "plog_1", ModifiedCount: 1}, nil
		},
	}
	api := newTestAPI(t, nil, ledger, WithLedgerMutationMiddleware(ActorRateLimit(newTestResponder(t), 2, time.Minute, func() time.Time { return now })))

	for i := 0; i < 2; i++ {
		rec := doRequest(t, api, http.MethodPost, "/api/v1/payments:mark-paid", `{"orderIds":["ord_1"]}`, actorHeaders)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	limited := doRequest(t, api, http.MethodPost, "/api/v1/payments:mark-paid", `{"orderIds":["ord_1"]}`, actorHeaders)
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "60", limited.Header().Get("Retry-After"))
	body := decodeBody(t, limited)
	require.Equal(t, "rate_limited", body["error"])
	require.Equal(t, "Too many ledger operations. Retry in 60 seconds.", body["message"])

	headers := map[string]string{"X-Actor": "hanako", "Accept-Language": "ja"}
	limited = doRequest(t, api, http.MethodPost, "/api/v1/payments:mark-paid", `{"orderIds":["ord_1"]}`, headers)
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "台帳の操作が多すぎます。60秒後に再度お試しください。", decodeBody(t, limited)["message"])

	other := doRequest(t, api, http.MethodPost, "/api/v1/payments:mark-paid", `{"orderIds":["ord_1"]}`, map[string]string{"X-Actor": "taro"})
	require.Equal(t, http.StatusOK, other.Code)

	reads := doRequest(t, api, http.MethodGet, "/api/v1/payment-logs", "", actorHeaders)
	require.Equal(t, http.StatusOK, reads.Code)
}
