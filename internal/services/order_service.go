package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/vegbox-admin/api/internal/domain"
	"github.com/vegbox-admin/api/internal/platform/textutil"
	"github.com/vegbox-admin/api/internal/repositories"
)

const (
	orderIDPrefix       = "ord_"
	orderDetailIDPrefix = "odt_"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	OrderDetails repositories.OrderDetailRepository
	Customers    repositories.CustomerRepository
	Numbers      DocumentNumberGenerator
	UnitOfWork   repositories.UnitOfWork
	Location     *time.Location
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	details    repositories.OrderDetailRepository
	customers  repositories.CustomerRepository
	numbers    DocumentNumberGenerator
	unitOfWork repositories.UnitOfWork
	location   *time.Location
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.OrderDetails == nil {
		return nil, errors.New("order service: order detail repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer repository is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("order service: document number generator is required")
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

	return &orderService{
		orders:     deps.Orders,
		details:    deps.OrderDetails,
		customers:  deps.Customers,
		numbers:    deps.Numbers,
		unitOfWork: unit,
		location:   loadBusinessLocation(deps.Location),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder persists a new order after the duplicate guard. Cash customers
// settle on delivery, so their orders start paid.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Order{}, invalidInput("customerId", "customer id is required")
	}
	if cmd.DeliveryDate.IsZero() {
		return Order{}, invalidInput("deliveryDate", "delivery date is required")
	}
	actor := textutil.PlainText(cmd.Actor, maxActorRunes)
	if actor == "" {
		return Order{}, invalidInput("actor", "actor is required")
	}

	now := s.now()
	deliveryDay := businessDay(cmd.DeliveryDate, s.location)
	order := Order{
		ID:           s.nextOrderID(),
		CustomerID:   customerID,
		DeliveryDate: deliveryDay,
		User:         strings.TrimSpace(cmd.User),
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		customer, err := s.customers.FindByID(txCtx, customerID)
		if err != nil {
			return mapRepositoryError("customers.find", err, ErrCustomerNotFound)
		}
		if err := s.guardDuplicate(txCtx, order); err != nil {
			return err
		}

		order.PaidStatus = customer.PayMethod == domain.PayMethodCash
		order.PaidDate = nil
		if order.PaidStatus {
			paid := now
			order.PaidDate = &paid
		}
		order.DocumentNumber = ""
		if customer.RequiresPrintedDocuments {
			number, err := s.numbers.Generate(txCtx, order, customer)
			if err != nil {
				return err
			}
			order.DocumentNumber = number
		}

		return s.orders.Insert(txCtx, order, slotKey(order.CustomerID, order.DeliveryDate, s.location))
	})
	if err != nil {
		return Order{}, s.mapSlotError("orders.create", err, deliveryDay)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":        order.ID,
		"customerId":     order.CustomerID,
		"documentNumber": order.DocumentNumber,
		"paidStatus":     order.PaidStatus,
	})
	return order, nil
}

// GetOrder returns the order with its details.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, invalidInput("orderId", "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError("orders.find", err, ErrOrderNotFound)
	}
	details, err := s.details.ListByOrder(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError("order_details.list", err, nil)
	}
	order.Details = details
	return order, nil
}

// UpdateOrder applies the patch. Without an explicit total the total is
// recomputed from the details. Moving the delivery date to another business
// day re-runs the duplicate guard and moves the slot claim.
func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, invalidInput("orderId", "order id is required")
	}
	if cmd.DeliveryDate != nil && cmd.DeliveryDate.IsZero() {
		return Order{}, invalidInput("deliveryDate", "delivery date must not be empty")
	}
	if cmd.Total != nil && cmd.Total.IsNegative() {
		return Order{}, invalidInput("total", "total must not be negative")
	}

	var (
		updated   Order
		targetDay time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError("orders.find", err, ErrOrderNotFound)
		}
		order := current

		moved := false
		if cmd.DeliveryDate != nil {
			targetDay = businessDay(*cmd.DeliveryDate, s.location)
			order.DeliveryDate = targetDay
			moved = slotKey(order.CustomerID, targetDay, s.location) != slotKey(current.CustomerID, current.DeliveryDate, s.location)
			if moved {
				if err := s.guardDuplicate(txCtx, order); err != nil {
					return err
				}
			}
		}

		details, err := s.details.ListByOrder(txCtx, orderID)
		if err != nil {
			return mapRepositoryError("order_details.list", err, nil)
		}
		order.Details = details

		if cmd.User != nil {
			order.User = strings.TrimSpace(*cmd.User)
		}
		if cmd.Total != nil {
			total := *cmd.Total
			order.Total = &total
		} else {
			total := sumSubtotals(details)
			order.Total = &total
		}
		order.UpdatedAt = s.now()

		if moved {
			fromKey := slotKey(current.CustomerID, current.DeliveryDate, s.location)
			toKey := slotKey(order.CustomerID, order.DeliveryDate, s.location)
			if err := s.orders.MoveSlot(txCtx, order, fromKey, toKey); err != nil {
				return err
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError("orders.update", err, ErrOrderNotFound)
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, s.mapSlotError("orders.update", err, targetDay)
	}

	s.logger(ctx, "order.updated", map[string]any{
		"orderId": updated.ID,
		"actor":   textutil.PlainText(cmd.Actor, maxActorRunes),
		"total":   updated.TotalOrZero().String(),
	})
	return updated, nil
}

// RecalculateOrderTotal sets the total to the sum of the detail subtotals. The
// order is written only when the total changes.
func (s *orderService) RecalculateOrderTotal(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, invalidInput("orderId", "order id is required")
	}

	var result Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError("orders.find", err, ErrOrderNotFound)
		}
		details, err := s.details.ListByOrder(txCtx, orderID)
		if err != nil {
			return mapRepositoryError("order_details.list", err, nil)
		}
		order.Details = details

		total := sumSubtotals(details)
		if order.Total != nil && order.Total.Equal(total) {
			result = order
			return nil
		}
		order.Total = &total
		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError("orders.update", err, ErrOrderNotFound)
		}
		result = order
		return nil
	})
	if err != nil {
		return Order{}, mapRepositoryError("orders.recalculate", err, nil)
	}
	return result, nil
}

// SaveOrderDetail creates or replaces a detail, recomputing its subtotal and
// the order total in the same transaction.
func (s *orderService) SaveOrderDetail(ctx context.Context, cmd SaveOrderDetailCommand) (OrderDetail, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderDetail{}, invalidInput("orderId", "order id is required")
	}
	vegetableID := strings.TrimSpace(cmd.VegetableID)
	if vegetableID == "" {
		return OrderDetail{}, invalidInput("vegetableId", "vegetable id is required")
	}
	if cmd.Quantity.IsNegative() {
		return OrderDetail{}, invalidInput("quantity", "quantity must not be negative")
	}
	if cmd.Price.IsNegative() {
		return OrderDetail{}, invalidInput("price", "price must not be negative")
	}

	var saved OrderDetail
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError("orders.find", err, ErrOrderNotFound)
		}

		now := s.now()
		detail := OrderDetail{
			ID:        strings.TrimSpace(cmd.DetailID),
			OrderID:   orderID,
			CreatedAt: now,
		}
		if detail.ID != "" {
			existing, err := s.details.FindByID(txCtx, detail.ID)
			if err != nil {
				return mapRepositoryError("order_details.find", err, ErrOrderDetailNotFound)
			}
			if existing.OrderID != orderID {
				return newError(ErrOrderDetailNotFound, nil, "detail %s belongs to another order", detail.ID)
			}
			detail.CreatedAt = existing.CreatedAt
		} else {
			detail.ID = s.nextDetailID()
		}

		details, err := s.details.ListByOrder(txCtx, orderID)
		if err != nil {
			return mapRepositoryError("order_details.list", err, nil)
		}

		detail.VegetableID = vegetableID
		detail.Quantity = cmd.Quantity
		detail.Price = cmd.Price
		detail.Subtotal = cmd.Quantity.Mul(cmd.Price)
		detail.UpdatedAt = now

		merged := make([]OrderDetail, 0, len(details)+1)
		for _, existing := range details {
			if existing.ID != detail.ID {
				merged = append(merged, existing)
			}
		}
		merged = append(merged, detail)

		if err := s.details.Save(txCtx, detail); err != nil {
			return mapRepositoryError("order_details.save", err, nil)
		}
		total := sumSubtotals(merged)
		order.Total = &total
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError("orders.update", err, ErrOrderNotFound)
		}
		saved = detail
		return nil
	})
	if err != nil {
		return OrderDetail{}, mapRepositoryError("order_details.save", err, nil)
	}

	s.logger(ctx, "order.detail_saved", map[string]any{
		"orderId":  saved.OrderID,
		"detailId": saved.ID,
		"subtotal": saved.Subtotal.String(),
	})
	return saved, nil
}

// guardDuplicate fails when another order of the customer is delivered on the
// same business day as order.
func (s *orderService) guardDuplicate(ctx context.Context, order Order) error {
	from, to := businessDayRange(order.DeliveryDate, s.location)
	existing, err := s.orders.FindByCustomerAndDeliveryRange(ctx, order.CustomerID, from, to)
	if err != nil {
		return mapRepositoryError("orders.find_duplicates", err, nil)
	}
	for _, other := range existing {
		if other.ID == order.ID {
			continue
		}
		return newError(ErrDuplicateOrder, map[string]any{"deliveryDate": other.DeliveryDate},
			"customer %s already has order %s", order.CustomerID, other.ID)
	}
	return nil
}

// mapSlotError reports a lost race for the order slot as a duplicate order.
// Other conflicts, such as exhausted transaction retries, are storage failures.
func (s *orderService) mapSlotError(op string, err error, deliveryDay time.Time) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsAlreadyExists() && !deliveryDay.IsZero() {
		return newError(ErrDuplicateOrder, map[string]any{"deliveryDate": deliveryDay}, "%s: %v", op, err)
	}
	return mapRepositoryError(op, err, nil)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + strings.ToLower(strings.TrimSpace(s.newID()))
}

func (s *orderService) nextDetailID() string {
	return orderDetailIDPrefix + strings.ToLower(strings.TrimSpace(s.newID()))
}

func sumSubtotals(details []OrderDetail) decimal.Decimal {
	total := decimal.Zero
	for _, detail := range details {
		total = total.Add(detail.Subtotal)
	}
	return total
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
