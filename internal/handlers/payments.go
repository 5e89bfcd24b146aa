package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/vegbox-admin/api/internal/domain"
	"github.com/vegbox-admin/api/internal/platform/httpx"
	"github.com/vegbox-admin/api/internal/platform/pagination"
	"github.com/vegbox-admin/api/internal/platform/requestctx"
	"github.com/vegbox-admin/api/internal/repositories"
	"github.com/vegbox-admin/api/internal/services"
)

const (
	defaultPaymentLogPageSize = 20
	maxPaymentLogPageSize     = 100
)

type paymentRequest struct {
	OrderIDs []string `json:"orderIds"`
	Scope    string   `json:"scope"`
}

type undoRequest struct {
	Reason string `json:"reason"`
}

type paymentStatePayload struct {
	OrderID    string  `json:"orderId"`
	PaidStatus bool    `json:"paidStatus"`
	PaidDate   *string `json:"paidDate"`
}

type paymentLogPayload struct {
	ID            string                `json:"id"`
	Action        string                `json:"action"`
	Scope         string                `json:"scope"`
	OrderIDs      []string              `json:"orderIds"`
	CustomerID    string                `json:"customerId"`
	PreviousState []paymentStatePayload `json:"previousState"`
	NewState      []paymentStatePayload `json:"newState"`
	TotalAmount   string                `json:"totalAmount"`
	Actor         string                `json:"actor"`
	UserAgent     string                `json:"userAgent,omitempty"`
	IsUndone      bool                  `json:"isUndone"`
	UndoneAt      *string               `json:"undoneAt,omitempty"`
	UndoneBy      string                `json:"undoneBy,omitempty"`
	UndoReason    string                `json:"undoReason,omitempty"`
	OriginalLogID string                `json:"originalLogId,omitempty"`
	CreatedAt     string                `json:"createdAt"`
}

type paymentLogListResponse struct {
	Items         []paymentLogPayload `json:"items"`
	NextPageToken string              `json:"nextPageToken,omitempty"`
}

// LedgerHandlers exposes the payment ledger: batch payment actions, undo and
// the payment history.
type LedgerHandlers struct {
	ledger     services.PaymentLedgerService
	errors     *ErrorResponder
	mutationMW []func(http.Handler) http.Handler
}

// LedgerOption customises LedgerHandlers.
type LedgerOption func(*LedgerHandlers)

// WithLedgerMutationMiddleware wraps the mutating ledger routes, typically
// with the idempotency middleware.
func WithLedgerMutationMiddleware(mw ...func(http.Handler) http.Handler) LedgerOption {
	return func(h *LedgerHandlers) {
		for _, m := range mw {
			if m != nil {
				h.mutationMW = append(h.mutationMW, m)
			}
		}
	}
}

// NewLedgerHandlers constructs the ledger handlers.
func NewLedgerHandlers(ledger services.PaymentLedgerService, responder *ErrorResponder, opts ...LedgerOption) *LedgerHandlers {
	if responder == nil {
		responder = NewErrorResponder(nil)
	}
	h := &LedgerHandlers{ledger: ledger, errors: responder}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the ledger endpoints on the API root router.
func (h *LedgerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(mutations chi.Router) {
		mutations.Use(h.mutationMW...)
		mutations.Post("/payments:mark-paid", h.markPaid)
		mutations.Post("/payments:revert", h.revertPayment)
		mutations.Post("/payment-logs/{logID}:undo", h.undo)
	})
	r.Get("/payment-logs", h.listPaymentLogs)
	r.Get("/payment-logs/{logID}", h.getPaymentLog)
}

func (h *LedgerHandlers) markPaid(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	h.applyPayment(w, r, h.ledger.MarkPaid)
}

func (h *LedgerHandlers) revertPayment(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	h.applyPayment(w, r, h.ledger.RevertPayment)
}

type paymentAction func(ctx context.Context, cmd services.PaymentCommand) (services.PaymentResult, error)

func (h *LedgerHandlers) applyPayment(w http.ResponseWriter, r *http.Request, action paymentAction) {
	ctx := r.Context()
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.errors.Invalid(ctx, w, "body")
		return
	}

	actor, _ := requestctx.ActorFrom(ctx)
	result, err := action(ctx, services.PaymentCommand{
		OrderIDs: req.OrderIDs,
		Scope:    domain.ActionScope(strings.TrimSpace(req.Scope)),
		Actor:    actor.ID,
		Request:  requestInfo(actor),
	})
	if err != nil {
		h.errors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"logId":         result.LogID,
		"modifiedCount": result.ModifiedCount,
	})
}

func (h *LedgerHandlers) undo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	logID := strings.TrimSpace(chi.URLParam(r, "logID"))
	if logID == "" {
		h.errors.Invalid(ctx, w, "logId")
		return
	}

	var req undoRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
			h.errors.Invalid(ctx, w, "body")
			return
		}
	}

	actor, _ := requestctx.ActorFrom(ctx)
	result, err := h.ledger.Undo(ctx, services.UndoCommand{
		LogID:   logID,
		Reason:  req.Reason,
		Actor:   actor.ID,
		Request: requestInfo(actor),
	})
	if err != nil {
		h.errors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"undoLogId":     result.UndoLogID,
		"restoredCount": result.RestoredCount,
	})
}

func (h *LedgerHandlers) listPaymentLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultPaymentLogPageSize,
		MaxPageSize:     maxPaymentLogPageSize,
	})
	if err != nil {
		field := "pageSize"
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			field = "pageToken"
		}
		h.errors.Invalid(ctx, w, field)
		return
	}

	query := r.URL.Query()
	page, err := h.ledger.ListPaymentLog(ctx, repositories.PaymentLogFilter{
		CustomerID: strings.TrimSpace(query.Get("customerId")),
		Action:     domain.PaymentAction(strings.TrimSpace(query.Get("action"))),
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		h.errors.Write(ctx, w, err)
		return
	}

	items := make([]paymentLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildPaymentLogPayload(entry))
	}
	httpx.WriteJSON(w, http.StatusOK, paymentLogListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *LedgerHandlers) getPaymentLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	logID := strings.TrimSpace(chi.URLParam(r, "logID"))
	if logID == "" {
		h.errors.Invalid(ctx, w, "logId")
		return
	}

	entry, err := h.ledger.GetPaymentLog(ctx, logID)
	if err != nil {
		h.errors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"paymentLog": buildPaymentLogPayload(entry)})
}

func (h *LedgerHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.ledger != nil {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("ledger_service_unavailable", "payment ledger unavailable", http.StatusServiceUnavailable))
	return false
}

func buildPaymentLogPayload(entry services.PaymentLogEntry) paymentLogPayload {
	payload := paymentLogPayload{
		ID:            entry.ID,
		Action:        string(entry.Action),
		Scope:         string(entry.Scope),
		OrderIDs:      entry.OrderIDs,
		CustomerID:    entry.CustomerID,
		PreviousState: buildPaymentStatePayloads(entry.PreviousState),
		NewState:      buildPaymentStatePayloads(entry.NewState),
		TotalAmount:   entry.TotalAmount.StringFixed(2),
		Actor:         entry.Actor,
		UserAgent:     entry.Request.UserAgent,
		IsUndone:      entry.IsUndone,
		UndoneBy:      entry.UndoneBy,
		UndoReason:    entry.UndoReason,
		OriginalLogID: entry.OriginalLogID,
		CreatedAt:     formatTime(entry.CreatedAt),
	}
	if payload.OrderIDs == nil {
		payload.OrderIDs = []string{}
	}
	if entry.UndoneAt != nil {
		undone := formatTime(*entry.UndoneAt)
		payload.UndoneAt = &undone
	}
	return payload
}

func buildPaymentStatePayloads(states []services.PaymentStateSnapshot) []paymentStatePayload {
	out := make([]paymentStatePayload, 0, len(states))
	for _, state := range states {
		payload := paymentStatePayload{OrderID: state.OrderID, PaidStatus: state.PaidStatus}
		if state.PaidDate != nil {
			paid := formatTime(*state.PaidDate)
			payload.PaidDate = &paid
		}
		out = append(out, payload)
	}
	return out
}

func requestInfo(actor requestctx.Actor) services.RequestInfo {
	return services.RequestInfo{UserAgent: actor.UserAgent, RemoteIP: actor.RemoteIP}
}
