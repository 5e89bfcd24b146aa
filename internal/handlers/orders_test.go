package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vegbox-admin/api/internal/services"
)

func TestOrderHandlersCreateOrder(t *testing.T) {
	total := decimal.RequireFromString("1250")
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:             "ord_01",
				CustomerID:     cmd.CustomerID,
				DeliveryDate:   cmd.DeliveryDate,
				Total:          &total,
				User:           cmd.User,
				CreatedBy:      cmd.Actor,
				DocumentNumber: "DS150324001",
			}, nil
		},
	}
	api := newTestAPI(t, svc, nil)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/orders",
		`{"customerId":"cus_1","deliveryDate":"2024-03-15","user":"front desk"}`, actorHeaders)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "/api/v1/orders/ord_01", rec.Header().Get("Location"))
	require.Equal(t, "cus_1", captured.CustomerID)
	require.Equal(t, "hanako", captured.Actor)
	require.True(t, captured.DeliveryDate.Equal(time.Date(2024, time.March, 15, 0, 0, 0, 0, testLocation)))

	order := decodeBody(t, rec)["order"].(map[string]any)
	require.Equal(t, "2024-03-15", order["deliveryDate"])
	require.Equal(t, "1250.00", order["total"])
	require.Equal(t, "DS150324001", order["documentNumber"])
	require.Equal(t, false, order["paidStatus"])
	require.Nil(t, order["paidDate"])
}

func TestOrderHandlersCreateOrderRequiresActor(t *testing.T) {
	api := newTestAPI(t, &stubOrderService{}, nil)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/orders", `{"customerId":"cus_1","deliveryDate":"2024-03-15"}`, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "actor_required", decodeBody(t, rec)["error"])
}

func TestOrderHandlersRejectsMalformedInput(t *testing.T) {
	api := newTestAPI(t, &stubOrderService{}, nil)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/orders", `{"customerId":"cus_1","deliveryDate":"15/03/2024"}`, actorHeaders)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "invalid_input", body["error"])
	require.Equal(t, map[string]any{"field": "deliveryDate"}, body["details"])

	rec = doRequest(t, api, http.MethodPost, "/api/v1/orders", `{"customer":"cus_1"}`, actorHeaders)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHandlersDuplicateOrderIsLocalized(t *testing.T) {
	deliveryDate := time.Date(2024, time.March, 15, 0, 0, 0, 0, testLocation)
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return services.Order{}, &services.Error{
				Kind:   services.KindConflict,
				Key:    "error.duplicate_order",
				Params: map[string]any{"deliveryDate": deliveryDate},
				Err:    services.ErrDuplicateOrder,
			}
		},
	}
	api := newTestAPI(t, svc, nil)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/orders", `{"customerId":"cus_1","deliveryDate":"2024-03-15"}`, actorHeaders)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "duplicate_order", body["error"])
	require.Equal(t, "An order for this customer already exists for Mar 15, 2024.", body["message"])
	details := body["details"].(map[string]any)
	require.Equal(t, "2024-03-15", details["deliveryDate"])

	headers := map[string]string{"X-Actor": "hanako", "Accept-Language": "ja-JP,ja;q=0.9"}
	rec = doRequest(t, api, http.MethodPost, "/api/v1/orders", `{"customerId":"cus_1","deliveryDate":"2024-03-15"}`, headers)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ja", rec.Header().Get("Content-Language"))
	require.Equal(t, "2024年3月15日 の注文はすでに登録されています。", decodeBody(t, rec)["message"])
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			require.Equal(t, "ord_missing", orderID)
			return services.Order{}, &services.Error{Kind: services.KindNotFound, Key: "error.order_not_found", Err: services.ErrOrderNotFound}
		},
	}
	api := newTestAPI(t, svc, nil)

	rec := doRequest(t, api, http.MethodGet, "/api/v1/orders/ord_missing", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "order_not_found", body["error"])
	require.Equal(t, "Order not found.", body["message"])
}

func TestOrderHandlersUpdateOrder(t *testing.T) {
	var captured services.UpdateOrderCommand
	svc := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, DeliveryDate: *cmd.DeliveryDate}, nil
		},
	}
	api := newTestAPI(t, svc, nil)

	rec := doRequest(t, api, http.MethodPatch, "/api/v1/orders/ord_01", `{"deliveryDate":"2024-03-20","total":"980.5"}`, actorHeaders)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "ord_01", captured.OrderID)
	require.NotNil(t, captured.Total)
	require.True(t, captured.Total.Equal(decimal.RequireFromString("980.5")))
	require.Nil(t, captured.User)
	require.Equal(t, "2024-03-20", captured.DeliveryDate.In(testLocation).Format(time.DateOnly))
}

func TestOrderHandlersRecalculate(t *testing.T) {
	total := decimal.NewFromInt(300)
	svc := &stubOrderService{
		recalculateFn: func(_ context.Context, orderID string) (services.Order, error) {
			return services.Order{ID: orderID, Total: &total}, nil
		},
	}
	api := newTestAPI(t, svc, nil)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/orders/ord_01:recalculate", "", actorHeaders)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	order := decodeBody(t, rec)["order"].(map[string]any)
	require.Equal(t, "ord_01", order["id"])
	require.Equal(t, "300.00", order["total"])
}

func TestOrderHandlersSaveDetail(t *testing.T) {
	var calls []services.SaveOrderDetailCommand
	svc := &stubOrderService{
		saveDetailFn: func(_ context.Context, cmd services.SaveOrderDetailCommand) (services.OrderDetail, error) {
			calls = append(calls, cmd)
			id := cmd.DetailID
			if id == "" {
				id = "odt_new"
			}
			return services.OrderDetail{
				ID:          id,
				OrderID:     cmd.OrderID,
				VegetableID: cmd.VegetableID,
				Quantity:    cmd.Quantity,
				Price:       cmd.Price,
				Subtotal:    cmd.Quantity.Mul(cmd.Price),
			}, nil
		},
	}
	api := newTestAPI(t, svc, nil)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/orders/ord_01/details", `{"vegetableId":"veg_carrot","quantity":"2.5","price":120}`, actorHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	detail := decodeBody(t, rec)["detail"].(map[string]any)
	require.Equal(t, "odt_new", detail["id"])
	require.Equal(t, "300.00", detail["subtotal"])

	rec = doRequest(t, api, http.MethodPut, "/api/v1/orders/ord_01/details/odt_7", `{"vegetableId":"veg_leek","quantity":"1","price":"90"}`, actorHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, calls, 2)
	require.Equal(t, "", calls[0].DetailID)
	require.Equal(t, "odt_7", calls[1].DetailID)
	require.Equal(t, "ord_01", calls[1].OrderID)
}

func TestOrderHandlersStorageFailureIsUnavailable(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			return services.Order{}, &services.Error{Kind: services.KindStorage, Key: "error.storage", Err: services.ErrStorage}
		},
	}
	api := newTestAPI(t, svc, nil)

	rec := doRequest(t, api, http.MethodGet, "/api/v1/orders/ord_01", "", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "storage", decodeBody(t, rec)["error"])
}

func TestOrderHandlersServiceUnavailable(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec := doRequest(t, api, http.MethodGet, "/api/v1/orders/ord_01", "", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "order_service_unavailable", decodeBody(t, rec)["error"])
}
