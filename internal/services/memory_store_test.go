package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/vegbox-admin/api/internal/domain"
	"github.com/vegbox-admin/api/internal/repositories"
)

type testRepoError struct {
	notFound      bool
	conflict      bool
	alreadyExists bool
	unavailable   bool
}

func (e testRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.alreadyExists:
		return "already exists"
	case e.conflict:
		return "conflict"
	case e.unavailable:
		return "unavailable"
	default:
		return "repository error"
	}
}

func (e testRepoError) IsNotFound() bool      { return e.notFound }
func (e testRepoError) IsConflict() bool      { return e.conflict || e.alreadyExists }
func (e testRepoError) IsAlreadyExists() bool { return e.alreadyExists }
func (e testRepoError) IsUnavailable() bool   { return e.unavailable }

var (
	errTestNotFound      = testRepoError{notFound: true}
	errTestConflict      = testRepoError{conflict: true}
	errTestAlreadyExists = testRepoError{alreadyExists: true}
)

// memoryStore backs every repository used by the services with maps. RunInTx
// snapshots the maps and restores them when fn fails, mimicking a rollback.
type memoryStore struct {
	mu        sync.Mutex
	customers map[string]domain.Customer
	orders    map[string]domain.Order
	slots     map[string]string
	details   map[string]domain.OrderDetail
	logs      map[string]domain.PaymentLogEntry

	txCalls      int
	orderUpdates int
	logInserts   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		customers: map[string]domain.Customer{},
		orders:    map[string]domain.Order{},
		slots:     map[string]string{},
		details:   map[string]domain.OrderDetail{},
		logs:      map[string]domain.PaymentLogEntry{},
	}
}

func (m *memoryStore) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	m.txCalls++
	snapshot := m.cloneLocked()
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.customers, m.orders, m.slots, m.details, m.logs =
			snapshot.customers, snapshot.orders, snapshot.slots, snapshot.details, snapshot.logs
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memoryStore) cloneLocked() *memoryStore {
	clone := newMemoryStore()
	for k, v := range m.customers {
		clone.customers[k] = v
	}
	for k, v := range m.orders {
		clone.orders[k] = v
	}
	for k, v := range m.slots {
		clone.slots[k] = v
	}
	for k, v := range m.details {
		clone.details[k] = v
	}
	for k, v := range m.logs {
		clone.logs[k] = v
	}
	return clone
}

func (m *memoryStore) addCustomer(c domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
}

func (m *memoryStore) putOrder(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *memoryStore) order(id string) (domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

// slotHeldLocked reports whether slotKey is claimed by another order that
// still exists. Slots of deleted orders are free.
func (m *memoryStore) slotHeldLocked(slotKey, orderID string) bool {
	holder, ok := m.slots[slotKey]
	if !ok || holder == orderID {
		return false
	}
	_, exists := m.orders[holder]
	return exists
}

func (m *memoryStore) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

func (m *memoryStore) customerRepo() repositories.CustomerRepository     { return memoryCustomers{m} }
func (m *memoryStore) orderRepo() repositories.OrderRepository           { return memoryOrders{m} }
func (m *memoryStore) detailRepo() repositories.OrderDetailRepository    { return memoryDetails{m} }
func (m *memoryStore) paymentLogRepo() repositories.PaymentLogRepository { return memoryPaymentLogs{m} }

type memoryCustomers struct{ m *memoryStore }

func (r memoryCustomers) FindByID(_ context.Context, id string) (domain.Customer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.customers[id]
	if !ok {
		return domain.Customer{}, errTestNotFound
	}
	return c, nil
}

type memoryOrders struct{ m *memoryStore }

func (r memoryOrders) Insert(_ context.Context, order domain.Order, slotKey string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.orders[order.ID]; ok {
		return errTestAlreadyExists
	}
	if r.m.slotHeldLocked(slotKey, order.ID) {
		return errTestAlreadyExists
	}
	order.Details = nil
	r.m.orders[order.ID] = order
	r.m.slots[slotKey] = order.ID
	return nil
}

func (r memoryOrders) Update(_ context.Context, order domain.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.orders[order.ID]; !ok {
		return errTestNotFound
	}
	order.Details = nil
	r.m.orders[order.ID] = order
	r.m.orderUpdates++
	return nil
}

func (r memoryOrders) MoveSlot(_ context.Context, order domain.Order, fromKey, toKey string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if fromKey == toKey {
		return nil
	}
	if r.m.slotHeldLocked(toKey, order.ID) {
		return errTestAlreadyExists
	}
	delete(r.m.slots, fromKey)
	r.m.slots[toKey] = order.ID
	return nil
}

func (r memoryOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	o, ok := r.m.orders[id]
	if !ok {
		return domain.Order{}, errTestNotFound
	}
	return o, nil
}

func (r memoryOrders) FindByIDs(_ context.Context, ids []string) ([]domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Order
	for _, id := range ids {
		if o, ok := r.m.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r memoryOrders) FindByCustomerAndDeliveryRange(_ context.Context, customerID string, from, to time.Time) ([]domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Order
	for _, o := range r.m.orders {
		if o.CustomerID == customerID && !o.DeliveryDate.Before(from) && o.DeliveryDate.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r memoryOrders) ExistsDocumentNumber(_ context.Context, number string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, o := range r.m.orders {
		if o.DocumentNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r memoryOrders) UpdatePaymentStates(_ context.Context, states []domain.PaymentStateSnapshot, updatedAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, state := range states {
		o, ok := r.m.orders[state.OrderID]
		if !ok {
			return errTestNotFound
		}
		o.PaidStatus = state.PaidStatus
		o.PaidDate = nil
		if state.PaidDate != nil {
			paid := *state.PaidDate
			o.PaidDate = &paid
		}
		o.UpdatedAt = updatedAt
		r.m.orders[o.ID] = o
	}
	return nil
}

type memoryDetails struct{ m *memoryStore }

func (r memoryDetails) ListByOrder(_ context.Context, orderID string) ([]domain.OrderDetail, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.OrderDetail
	for _, d := range r.m.details {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryDetails) FindByID(_ context.Context, id string) (domain.OrderDetail, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.details[id]
	if !ok {
		return domain.OrderDetail{}, errTestNotFound
	}
	return d, nil
}

func (r memoryDetails) Save(_ context.Context, detail domain.OrderDetail) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.details[detail.ID] = detail
	return nil
}

type memoryPaymentLogs struct{ m *memoryStore }

func (r memoryPaymentLogs) Insert(_ context.Context, entry domain.PaymentLogEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.logs[entry.ID]; ok {
		return errTestConflict
	}
	r.m.logs[entry.ID] = entry
	r.m.logInserts++
	return nil
}

func (r memoryPaymentLogs) FindByID(_ context.Context, id string) (domain.PaymentLogEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	entry, ok := r.m.logs[id]
	if !ok {
		return domain.PaymentLogEntry{}, errTestNotFound
	}
	return entry, nil
}

func (r memoryPaymentLogs) MarkUndone(_ context.Context, id string, mark domain.UndoMark) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	entry, ok := r.m.logs[id]
	if !ok {
		return errTestNotFound
	}
	if entry.IsUndone {
		return errTestConflict
	}
	undoneAt := mark.UndoneAt
	entry.IsUndone = true
	entry.UndoneAt = &undoneAt
	entry.UndoneBy = mark.UndoneBy
	entry.UndoReason = mark.Reason
	r.m.logs[id] = entry
	return nil
}

func (r memoryPaymentLogs) List(_ context.Context, filter repositories.PaymentLogFilter) (domain.CursorPage[domain.PaymentLogEntry], error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var items []domain.PaymentLogEntry
	for _, entry := range r.m.logs {
		if filter.CustomerID != "" && entry.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		items = append(items, entry)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if size := filter.Pagination.PageSize; size > 0 && len(items) > size {
		items = items[:size]
	}
	return domain.CursorPage[domain.PaymentLogEntry]{Items: items}, nil
}

// sequenceIDs returns an id generator yielding id1, id2, ...
func sequenceIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

var errBoom = errors.New("boom")
