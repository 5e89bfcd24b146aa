package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vegbox-admin/api/internal/domain"
	pfirestore "github.com/vegbox-admin/api/internal/platform/firestore"
)

const (
	ordersCollection     = "orders"
	orderSlotsCollection = "orderSlots"
)

type orderDocument struct {
	CustomerID     string     `firestore:"customerId"`
	DeliveryDate   time.Time  `firestore:"deliveryDate"`
	Total          *string    `firestore:"total"`
	PaidStatus     bool       `firestore:"paidStatus"`
	PaidDate       *time.Time `firestore:"paidDate"`
	User           string     `firestore:"user"`
	CreatedBy      string     `firestore:"createdBy"`
	DocumentNumber string     `firestore:"documentNumber,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

// orderSlotDocument claims one (customer, business day) pair for an order.
type orderSlotDocument struct {
	OrderID      string    `firestore:"orderId"`
	CustomerID   string    `firestore:"customerId"`
	DeliveryDate time.Time `firestore:"deliveryDate"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// OrderRepository persists orders in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	slots    *pfirestore.BaseRepository[orderSlotDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
		slots:    pfirestore.NewBaseRepository[orderSlotDocument](provider, orderSlotsCollection, nil),
	}, nil
}

// Insert creates the order and claims its slot atomically. A slot held by a
// live order fails with AlreadyExists; a slot left behind by a deleted order is
// taken over.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order, slotKey string) error {
	slotKey = strings.TrimSpace(slotKey)
	if slotKey == "" {
		return pfirestore.WrapError("orders.insert", errors.New("order slot key is required"))
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if err := r.ensureSlotFree(ctx, slotKey, order.ID); err != nil {
			return err
		}
		if err := r.orders.Create(ctx, order.ID, newOrderDocument(order)); err != nil {
			return err
		}
		return r.slots.Set(ctx, slotKey, orderSlotDocument{
			OrderID:      order.ID,
			CustomerID:   order.CustomerID,
			DeliveryDate: order.DeliveryDate.UTC(),
			CreatedAt:    order.CreatedAt.UTC(),
		})
	})
}

// Update overwrites the order header.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.orders.Set(ctx, order.ID, newOrderDocument(order))
}

// MoveSlot transfers the order's slot claim from one business day to another.
// The target slot follows the same rules as Insert. It reads before writing, so
// callers sharing a transaction must call it ahead of their own writes.
func (r *OrderRepository) MoveSlot(ctx context.Context, order domain.Order, fromKey, toKey string) error {
	fromKey, toKey = strings.TrimSpace(fromKey), strings.TrimSpace(toKey)
	if toKey == "" {
		return pfirestore.WrapError("orders.move_slot", errors.New("order slot key is required"))
	}
	if fromKey == toKey {
		return nil
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if err := r.ensureSlotFree(ctx, toKey, order.ID); err != nil {
			return err
		}
		if err := r.slots.Set(ctx, toKey, orderSlotDocument{
			OrderID:      order.ID,
			CustomerID:   order.CustomerID,
			DeliveryDate: order.DeliveryDate.UTC(),
			CreatedAt:    order.UpdatedAt.UTC(),
		}); err != nil {
			return err
		}
		if fromKey == "" {
			return nil
		}
		return r.slots.Delete(ctx, fromKey)
	})
}

// ensureSlotFree fails with AlreadyExists when slotKey is held by another
// order that still exists.
func (r *OrderRepository) ensureSlotFree(ctx context.Context, slotKey, orderID string) error {
	slot, err := r.slots.Get(ctx, slotKey)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return nil
		}
		return err
	}
	holder := strings.TrimSpace(slot.Data.OrderID)
	if holder == "" || holder == orderID {
		return nil
	}
	if _, err := r.orders.Get(ctx, holder); err != nil {
		if pfirestore.IsNotFound(err) {
			return nil
		}
		return err
	}
	return pfirestore.WrapError("orders.claim_slot", status.Errorf(codes.AlreadyExists, "order slot %s is held by %s", slotKey, holder))
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// FindByIDs loads the existing orders among orderIDs, preserving their order.
func (r *OrderRepository) FindByIDs(ctx context.Context, orderIDs []string) ([]domain.Order, error) {
	docs, err := r.orders.GetAll(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	return decodeOrders(docs)
}

// FindByCustomerAndDeliveryRange lists the customer's orders delivered in [from, to).
func (r *OrderRepository) FindByCustomerAndDeliveryRange(ctx context.Context, customerID string, from, to time.Time) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", customerID).
			Where("deliveryDate", ">=", from.UTC()).
			Where("deliveryDate", "<", to.UTC())
	})
	if err != nil {
		return nil, err
	}
	return decodeOrders(docs)
}

// ExistsDocumentNumber reports whether any order carries number.
func (r *OrderRepository) ExistsDocumentNumber(ctx context.Context, number string) (bool, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("documentNumber", "==", number).Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// UpdatePaymentStates writes paid status and paid date for each order. The
// writes share the caller's transaction, or one of their own.
func (r *OrderRepository) UpdatePaymentStates(ctx context.Context, states []domain.PaymentStateSnapshot, updatedAt time.Time) error {
	if len(states) == 0 {
		return nil
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		for _, state := range states {
			var paidDate any
			if state.PaidDate != nil {
				paidDate = state.PaidDate.UTC()
			}
			updates := []firestore.Update{
				{Path: "paidStatus", Value: state.PaidStatus},
				{Path: "paidDate", Value: paidDate},
				{Path: "updatedAt", Value: updatedAt.UTC()},
			}
			if err := r.orders.Update(ctx, state.OrderID, updates); err != nil {
				return err
			}
		}
		return nil
	})
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		CustomerID:     strings.TrimSpace(order.CustomerID),
		DeliveryDate:   order.DeliveryDate.UTC(),
		Total:          encodeOptionalDecimal(order.Total),
		PaidStatus:     order.PaidStatus,
		PaidDate:       utcPtr(order.PaidDate),
		User:           order.User,
		CreatedBy:      order.CreatedBy,
		DocumentNumber: order.DocumentNumber,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	total, err := decodeOptionalDecimal("total", d.Total)
	if err != nil {
		return domain.Order{}, err
	}
	return domain.Order{
		ID:             id,
		CustomerID:     d.CustomerID,
		DeliveryDate:   d.DeliveryDate.UTC(),
		Total:          total,
		PaidStatus:     d.PaidStatus,
		PaidDate:       utcPtr(d.PaidDate),
		User:           d.User,
		CreatedBy:      d.CreatedBy,
		DocumentNumber: d.DocumentNumber,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}, nil
}

func decodeOrders(docs []pfirestore.Document[orderDocument]) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}
