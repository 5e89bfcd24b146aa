package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vegbox-admin/api/internal/domain"
	pfirestore "github.com/vegbox-admin/api/internal/platform/firestore"
	"github.com/vegbox-admin/api/internal/platform/pagination"
	"github.com/vegbox-admin/api/internal/repositories"
)

const (
	paymentLogsCollection  = "paymentLogs"
	defaultPaymentLogLimit = 20
	maxPaymentLogLimit     = 100
)

type paymentStateDocument struct {
	OrderID    string     `firestore:"orderId"`
	PaidStatus bool       `firestore:"paidStatus"`
	PaidDate   *time.Time `firestore:"paidDate"`
}

type requestMetaDocument struct {
	UserAgent string `firestore:"userAgent,omitempty"`
	IPHash    string `firestore:"ipHash,omitempty"`
}

type paymentLogDocument struct {
	Action        string                 `firestore:"action"`
	Scope         string                 `firestore:"scope"`
	OrderIDs      []string               `firestore:"orderIds"`
	CustomerID    string                 `firestore:"customerId"`
	PreviousState []paymentStateDocument `firestore:"previousState"`
	NewState      []paymentStateDocument `firestore:"newState"`
	TotalAmount   string                 `firestore:"totalAmount"`
	Actor         string                 `firestore:"actor"`
	Request       requestMetaDocument    `firestore:"request"`
	IsUndone      bool                   `firestore:"isUndone"`
	UndoneAt      *time.Time             `firestore:"undoneAt"`
	UndoneBy      string                 `firestore:"undoneBy,omitempty"`
	UndoReason    string                 `firestore:"undoReason,omitempty"`
	OriginalLogID string                 `firestore:"originalLogId,omitempty"`
	CreatedAt     time.Time              `firestore:"createdAt"`
}

type paymentLogCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// PaymentLogRepository persists ledger entries.
type PaymentLogRepository struct {
	provider *pfirestore.Provider
	logs     *pfirestore.BaseRepository[paymentLogDocument]
}

// NewPaymentLogRepository constructs a Firestore-backed payment log repository.
func NewPaymentLogRepository(provider *pfirestore.Provider) (*PaymentLogRepository, error) {
	if provider == nil {
		return nil, errors.New("payment log repository requires firestore provider")
	}
	return &PaymentLogRepository{
		provider: provider,
		logs:     pfirestore.NewBaseRepository[paymentLogDocument](provider, paymentLogsCollection, nil),
	}, nil
}

// Insert creates the entry; an existing id is a conflict.
func (r *PaymentLogRepository) Insert(ctx context.Context, entry domain.PaymentLogEntry) error {
	return r.logs.Create(ctx, entry.ID, newPaymentLogDocument(entry))
}

// FindByID loads one entry.
func (r *PaymentLogRepository) FindByID(ctx context.Context, logID string) (domain.PaymentLogEntry, error) {
	doc, err := r.logs.Get(ctx, logID)
	if err != nil {
		return domain.PaymentLogEntry{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// MarkUndone sets the undo-tracking fields. Inside a caller transaction the
// caller has already read the entry under that transaction, and Firestore
// forbids reads after writes, so only the write is issued; the transaction's
// read set serialises competing undos. Standalone calls check and set in a
// transaction of their own.
func (r *PaymentLogRepository) MarkUndone(ctx context.Context, logID string, mark domain.UndoMark) error {
	updates := []firestore.Update{
		{Path: "isUndone", Value: true},
		{Path: "undoneAt", Value: mark.UndoneAt.UTC()},
		{Path: "undoneBy", Value: mark.UndoneBy},
		{Path: "undoReason", Value: mark.Reason},
	}
	if _, ok := pfirestore.TransactionFromContext(ctx); ok {
		return r.logs.Update(ctx, logID, updates)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := r.logs.Get(ctx, logID)
		if err != nil {
			return err
		}
		if doc.Data.IsUndone {
			return pfirestore.WrapError("payment_logs.mark_undone", status.Error(codes.FailedPrecondition, "payment log already undone"))
		}
		return r.logs.Update(ctx, logID, updates)
	})
}

// List returns entries newest first, filtered by customer and action.
func (r *PaymentLogRepository) List(ctx context.Context, filter repositories.PaymentLogFilter) (domain.CursorPage[domain.PaymentLogEntry], error) {
	limit := filter.Pagination.PageSize
	switch {
	case limit <= 0:
		limit = defaultPaymentLogLimit
	case limit > maxPaymentLogLimit:
		limit = maxPaymentLogLimit
	}

	cursor, hasCursor, err := pagination.DecodeToken[paymentLogCursor](filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.PaymentLogEntry]{}, err
	}

	customerID := strings.TrimSpace(filter.CustomerID)
	docs, err := r.logs.Query(ctx, func(q firestore.Query) firestore.Query {
		if customerID != "" {
			q = q.Where("customerId", "==", customerID)
		}
		if filter.Action != "" {
			q = q.Where("action", "==", string(filter.Action))
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if hasCursor {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.PaymentLogEntry]{}, err
	}

	page := domain.CursorPage[domain.PaymentLogEntry]{}
	if len(docs) > limit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(paymentLogCursor{CreatedAt: last.Data.CreatedAt.UTC(), ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.PaymentLogEntry]{}, err
		}
		page.NextPageToken = token
	}
	page.Items = make([]domain.PaymentLogEntry, 0, len(docs))
	for _, doc := range docs {
		entry, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return domain.CursorPage[domain.PaymentLogEntry]{}, err
		}
		page.Items = append(page.Items, entry)
	}
	return page, nil
}

func newPaymentLogDocument(entry domain.PaymentLogEntry) paymentLogDocument {
	return paymentLogDocument{
		Action:        string(entry.Action),
		Scope:         string(entry.Scope),
		OrderIDs:      append([]string(nil), entry.OrderIDs...),
		CustomerID:    entry.CustomerID,
		PreviousState: encodePaymentStates(entry.PreviousState),
		NewState:      encodePaymentStates(entry.NewState),
		TotalAmount:   encodeDecimal(entry.TotalAmount),
		Actor:         entry.Actor,
		Request: requestMetaDocument{
			UserAgent: entry.Request.UserAgent,
			IPHash:    entry.Request.IPHash,
		},
		IsUndone:      entry.IsUndone,
		UndoneAt:      utcPtr(entry.UndoneAt),
		UndoneBy:      entry.UndoneBy,
		UndoReason:    entry.UndoReason,
		OriginalLogID: entry.OriginalLogID,
		CreatedAt:     entry.CreatedAt.UTC(),
	}
}

func (d paymentLogDocument) toDomain(id string) (domain.PaymentLogEntry, error) {
	total, err := decodeDecimal("totalAmount", d.TotalAmount)
	if err != nil {
		return domain.PaymentLogEntry{}, fmt.Errorf("payment log %s: %w", id, err)
	}
	return domain.PaymentLogEntry{
		ID:            id,
		Action:        domain.PaymentAction(d.Action),
		Scope:         domain.ActionScope(d.Scope),
		OrderIDs:      d.OrderIDs,
		CustomerID:    d.CustomerID,
		PreviousState: decodePaymentStates(d.PreviousState),
		NewState:      decodePaymentStates(d.NewState),
		TotalAmount:   total,
		Actor:         d.Actor,
		Request: domain.RequestMeta{
			UserAgent: d.Request.UserAgent,
			IPHash:    d.Request.IPHash,
		},
		IsUndone:      d.IsUndone,
		UndoneAt:      utcPtr(d.UndoneAt),
		UndoneBy:      d.UndoneBy,
		UndoReason:    d.UndoReason,
		OriginalLogID: d.OriginalLogID,
		CreatedAt:     d.CreatedAt.UTC(),
	}, nil
}

func encodePaymentStates(states []domain.PaymentStateSnapshot) []paymentStateDocument {
	docs := make([]paymentStateDocument, 0, len(states))
	for _, state := range states {
		docs = append(docs, paymentStateDocument{
			OrderID:    state.OrderID,
			PaidStatus: state.PaidStatus,
			PaidDate:   utcPtr(state.PaidDate),
		})
	}
	return docs
}

func decodePaymentStates(docs []paymentStateDocument) []domain.PaymentStateSnapshot {
	states := make([]domain.PaymentStateSnapshot, 0, len(docs))
	for _, doc := range docs {
		states = append(states, domain.PaymentStateSnapshot{
			OrderID:    doc.OrderID,
			PaidStatus: doc.PaidStatus,
			PaidDate:   utcPtr(doc.PaidDate),
		})
	}
	return states
}
