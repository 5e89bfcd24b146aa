package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vegbox-admin/api/internal/platform/httpx"
	"github.com/vegbox-admin/api/internal/platform/requestctx"
	"github.com/vegbox-admin/api/internal/services"
)

type createOrderRequest struct {
	CustomerID   string `json:"customerId"`
	DeliveryDate string `json:"deliveryDate"`
	User         string `json:"user"`
}

type updateOrderRequest struct {
	DeliveryDate *string          `json:"deliveryDate"`
	User         *string          `json:"user"`
	Total        *decimal.Decimal `json:"total"`
}

type orderDetailRequest struct {
	VegetableID string          `json:"vegetableId"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type orderDetailPayload struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderId"`
	VegetableID string `json:"vegetableId"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	Subtotal    string `json:"subtotal"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type orderPayload struct {
	ID             string               `json:"id"`
	CustomerID     string               `json:"customerId"`
	DeliveryDate   string               `json:"deliveryDate"`
	Total          *string              `json:"total"`
	PaidStatus     bool                 `json:"paidStatus"`
	PaidDate       *string              `json:"paidDate"`
	User           string               `json:"user,omitempty"`
	CreatedBy      string               `json:"createdBy,omitempty"`
	DocumentNumber string               `json:"documentNumber,omitempty"`
	CreatedAt      string               `json:"createdAt,omitempty"`
	UpdatedAt      string               `json:"updatedAt,omitempty"`
	Details        []orderDetailPayload `json:"details,omitempty"`
}

// OrderHandlers exposes order header and line item endpoints.
type OrderHandlers struct {
	orders   services.OrderService
	errors   *ErrorResponder
	location *time.Location
}

// NewOrderHandlers constructs a new OrderHandlers instance. Dates without a
// time of day are read in location.
func NewOrderHandlers(orders services.OrderService, responder *ErrorResponder, location *time.Location) *OrderHandlers {
	if responder == nil {
		responder = NewErrorResponder(nil)
	}
	if location == nil {
		location = responder.Translator().Location()
	}
	return &OrderHandlers{
		orders:   orders,
		errors:   responder,
		location: location,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}", h.updateOrder)
	r.Post("/{orderID}:recalculate", h.recalculateOrder)
	r.Post("/{orderID}/details", h.createDetail)
	r.Put("/{orderID}/details/{detailID}", h.replaceDetail)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.errors.Invalid(ctx, w, "body")
		return
	}
	deliveryDate, err := h.parseDate(req.DeliveryDate)
	if err != nil {
		h.errors.Invalid(ctx, w, "deliveryDate")
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		CustomerID:   req.CustomerID,
		DeliveryDate: deliveryDate,
		User:         req.User,
		Actor:        actorID(r),
	})
	if err != nil {
		h.errors.Write(ctx, w, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+order.ID)
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"order": h.buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	orderID, ok := h.pathParam(w, r, "orderID", "orderId")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		h.errors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": h.buildOrderPayload(order)})
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	orderID, ok := h.pathParam(w, r, "orderID", "orderId")
	if !ok {
		return
	}

	var req updateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.errors.Invalid(ctx, w, "body")
		return
	}
	cmd := services.UpdateOrderCommand{
		OrderID: orderID,
		User:    req.User,
		Total:   req.Total,
		Actor:   actorID(r),
	}
	if req.DeliveryDate != nil {
		date, err := h.parseDate(*req.DeliveryDate)
		if err != nil {
			h.errors.Invalid(ctx, w, "deliveryDate")
			return
		}
		cmd.DeliveryDate = &date
	}

	order, err := h.orders.UpdateOrder(ctx, cmd)
	if err != nil {
		h.errors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": h.buildOrderPayload(order)})
}

func (h *OrderHandlers) recalculateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	orderID, ok := h.pathParam(w, r, "orderID", "orderId")
	if !ok {
		return
	}

	order, err := h.orders.RecalculateOrderTotal(ctx, orderID)
	if err != nil {
		h.errors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order": h.buildOrderPayload(order)})
}

func (h *OrderHandlers) createDetail(w http.ResponseWriter, r *http.Request) {
	h.saveDetail(w, r, "", http.StatusCreated)
}

func (h *OrderHandlers) replaceDetail(w http.ResponseWriter, r *http.Request) {
	detailID, ok := h.pathParam(w, r, "detailID", "detailId")
	if !ok {
		return
	}
	h.saveDetail(w, r, detailID, http.StatusOK)
}

func (h *OrderHandlers) saveDetail(w http.ResponseWriter, r *http.Request, detailID string, status int) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	orderID, ok := h.pathParam(w, r, "orderID", "orderId")
	if !ok {
		return
	}

	var req orderDetailRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.errors.Invalid(ctx, w, "body")
		return
	}

	detail, err := h.orders.SaveOrderDetail(ctx, services.SaveOrderDetailCommand{
		OrderID:     orderID,
		DetailID:    detailID,
		VegetableID: req.VegetableID,
		Quantity:    req.Quantity,
		Price:       req.Price,
	})
	if err != nil {
		h.errors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, status, map[string]any{"detail": buildOrderDetailPayload(detail)})
}

func (h *OrderHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.orders != nil {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	return false
}

func (h *OrderHandlers) pathParam(w http.ResponseWriter, r *http.Request, name, field string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	if value == "" {
		h.errors.Invalid(r.Context(), w, field)
		return "", false
	}
	return value, true
}

// parseDate accepts a calendar date (read in the business time zone) or an RFC 3339 timestamp.
func (h *OrderHandlers) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.ParseInLocation(time.DateOnly, raw, h.location); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *OrderHandlers) buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:             order.ID,
		CustomerID:     order.CustomerID,
		DeliveryDate:   order.DeliveryDate.In(h.location).Format(time.DateOnly),
		PaidStatus:     order.PaidStatus,
		User:           order.User,
		CreatedBy:      order.CreatedBy,
		DocumentNumber: order.DocumentNumber,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
	if order.Total != nil {
		total := order.Total.StringFixed(2)
		payload.Total = &total
	}
	if order.PaidDate != nil {
		paid := formatTime(*order.PaidDate)
		payload.PaidDate = &paid
	}
	if len(order.Details) > 0 {
		payload.Details = make([]orderDetailPayload, 0, len(order.Details))
		for _, detail := range order.Details {
			payload.Details = append(payload.Details, buildOrderDetailPayload(detail))
		}
	}
	return payload
}

func buildOrderDetailPayload(detail services.OrderDetail) orderDetailPayload {
	return orderDetailPayload{
		ID:          detail.ID,
		OrderID:     detail.OrderID,
		VegetableID: detail.VegetableID,
		Quantity:    detail.Quantity.String(),
		Price:       detail.Price.StringFixed(2),
		Subtotal:    detail.Subtotal.StringFixed(2),
		CreatedAt:   formatTime(detail.CreatedAt),
		UpdatedAt:   formatTime(detail.UpdatedAt),
	}
}

func actorID(r *http.Request) string {
	actor, _ := requestctx.ActorFrom(r.Context())
	return actor.ID
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}
