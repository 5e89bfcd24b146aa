package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/vegbox-admin/api/internal/domain"
	pfirestore "github.com/vegbox-admin/api/internal/platform/firestore"
)

const customersCollection = "customers"

type customerDocument struct {
	Name                     string `firestore:"name"`
	PayMethod                string `firestore:"payMethod"`
	RequiresPrintedDocuments bool   `firestore:"requiresPrintedDocuments"`
}

// CustomerRepository reads customer documents.
type CustomerRepository struct {
	customers *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		customers: pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil),
	}, nil
}

// FindByID loads the customer. A missing customer yields a not-found repository error.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.customers.Get(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Upsert writes a customer. Customer management owns these documents; the
// method exists for seeding and tests.
func (r *CustomerRepository) Upsert(ctx context.Context, customer domain.Customer) error {
	doc := customerDocument{
		Name:                     strings.TrimSpace(customer.Name),
		PayMethod:                string(customer.PayMethod),
		RequiresPrintedDocuments: customer.RequiresPrintedDocuments,
	}
	return r.customers.Set(ctx, customer.ID, doc)
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:                       id,
		Name:                     d.Name,
		PayMethod:                domain.PayMethod(strings.ToLower(strings.TrimSpace(d.PayMethod))),
		RequiresPrintedDocuments: d.RequiresPrintedDocuments,
	}
}
