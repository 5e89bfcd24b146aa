package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vegbox-admin/api/internal/domain"
	pfirestore "github.com/vegbox-admin/api/internal/platform/firestore"
)

const orderDetailsCollection = "orderDetails"

type orderDetailDocument struct {
	OrderID     string    `firestore:"orderId"`
	VegetableID string    `firestore:"vegetableId"`
	Quantity    string    `firestore:"quantity"`
	Price       string    `firestore:"price"`
	Subtotal    string    `firestore:"subtotal"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// OrderDetailRepository persists order line items.
type OrderDetailRepository struct {
	details *pfirestore.BaseRepository[orderDetailDocument]
}

// NewOrderDetailRepository constructs a Firestore-backed line item repository.
func NewOrderDetailRepository(provider *pfirestore.Provider) (*OrderDetailRepository, error) {
	if provider == nil {
		return nil, errors.New("order detail repository requires firestore provider")
	}
	return &OrderDetailRepository{
		details: pfirestore.NewBaseRepository[orderDetailDocument](provider, orderDetailsCollection, nil),
	}, nil
}

// ListByOrder returns every line item of the order, oldest first.
func (r *OrderDetailRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderDetail, error) {
	docs, err := r.details.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	details := make([]domain.OrderDetail, 0, len(docs))
	for _, doc := range docs {
		detail, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}

// FindByID loads one line item.
func (r *OrderDetailRepository) FindByID(ctx context.Context, detailID string) (domain.OrderDetail, error) {
	doc, err := r.details.Get(ctx, detailID)
	if err != nil {
		return domain.OrderDetail{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// Save upserts the line item.
func (r *OrderDetailRepository) Save(ctx context.Context, detail domain.OrderDetail) error {
	return r.details.Set(ctx, detail.ID, orderDetailDocument{
		OrderID:     detail.OrderID,
		VegetableID: detail.VegetableID,
		Quantity:    encodeDecimal(detail.Quantity),
		Price:       encodeDecimal(detail.Price),
		Subtotal:    encodeDecimal(detail.Subtotal),
		CreatedAt:   detail.CreatedAt.UTC(),
		UpdatedAt:   detail.UpdatedAt.UTC(),
	})
}

func (d orderDetailDocument) toDomain(id string) (domain.OrderDetail, error) {
	quantity, err := decodeDecimal("quantity", d.Quantity)
	if err != nil {
		return domain.OrderDetail{}, err
	}
	price, err := decodeDecimal("price", d.Price)
	if err != nil {
		return domain.OrderDetail{}, err
	}
	subtotal, err := decodeDecimal("subtotal", d.Subtotal)
	if err != nil {
		return domain.OrderDetail{}, err
	}
	return domain.OrderDetail{
		ID:          id,
		OrderID:     d.OrderID,
		VegetableID: d.VegetableID,
		Quantity:    quantity,
		Price:       price,
		Subtotal:    subtotal,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}, nil
}
