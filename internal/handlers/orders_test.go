package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/platform/auth"
	"github.com/orchidmarket/api/internal/services"
)

type stubOrderService struct {
	createFn    func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn       func(context.Context, string, services.Actor) (services.Order, error)
	listFn      func(context.Context, services.OrderListFilter) (domain.Page[services.Order], error)
	cancelFn    func(context.Context, services.CancelOrderCommand) (services.Order, error)
	setStatusFn func(context.Context, services.SetOrderStatusCommand) (services.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Get(ctx context.Context, orderID string, actor services.Actor) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, actor)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) List(ctx context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[services.Order]{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) SetStatus(ctx context.Context, cmd services.SetOrderStatusCommand) (services.Order, error) {
	if s.setStatusFn != nil {
		return s.setStatusFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func authedRequest(req *http.Request, uid string, roles ...string) *http.Request {
	identity := &auth.Identity{UID: uid, Email: uid + "@example.com", Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func newOrderRouter(svc services.OrderService) chi.Router {
	r := chi.NewRouter()
	r.Route("/orders", NewOrderHandlers(nil, svc).Routes)
	return r
}

func sampleOrder() services.Order {
	return services.Order{
		ID:            "ord_1",
		OrderNumber:   "ORD-1749722400000-ABCD",
		UserID:        "user-1",
		Items:         []services.OrderItem{{ProductRef: "prod-1", Name: "Ceramic Planter", Quantity: 2, UnitPrice: 1500}},
		Subtotal:      3000,
		TotalAmount:   3000,
		Currency:      "INR",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
	}
}

func TestCreateOrderReturns201(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(svc)

	body := `{"items":[{"product_ref":"prod-1","quantity":2}],"payment_method":"upi","currency":"inr"}`
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(body)), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Actor.UserID != "user-1" || captured.Actor.Staff {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductRef != "prod-1" {
		t.Fatalf("unexpected items %+v", captured.Items)
	}

	var response struct {
		Order struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.Order.ID != "ord_1" || response.Order.Status != "pending" {
		t.Fatalf("unexpected payload %+v", response.Order)
	}
}

func TestCreateOrderInvalidItemMaps400(t *testing.T) {
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidItem
		},
	}
	router := newOrderRouter(svc)

	body := `{"items":[{"product_ref":"prod-missing"}]}`
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(body)), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if envelope.Error != "invalid_item" {
		t.Fatalf("expected invalid_item, got %s", envelope.Error)
	}
}

func TestCreateOrderUnauthenticated(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(`{"items":[]}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestListOrdersEnvelope(t *testing.T) {
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error) {
			if filter.Page != 2 || filter.Limit != 5 || filter.Search != "planter" {
				t.Fatalf("unexpected filter %+v", filter)
			}
			return domain.Page[services.Order]{
				Items: []services.Order{sampleOrder()},
				Page:  2,
				Limit: 5,
				Total: 11,
			}, nil
		},
	}
	router := newOrderRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/orders/?page=2&limit=5&search=planter", nil), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var response struct {
		Page   int               `json:"page"`
		Limit  int               `json:"limit"`
		Total  int               `json:"total"`
		Orders []json.RawMessage `json:"orders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.Page != 2 || response.Limit != 5 || response.Total != 11 || len(response.Orders) != 1 {
		t.Fatalf("unexpected envelope %+v", response)
	}
}

func TestListOrdersRejectsBadPage(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/orders/?page=zero", nil), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetOrderForbiddenMaps403(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string, services.Actor) (services.Order, error) {
			return services.Order{}, services.ErrOrderForbidden
		},
	}
	router := newOrderRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil), "stranger", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestGetOrderNotFoundMaps404(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string, services.Actor) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	router := newOrderRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/orders/ord_missing", nil), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCancelOrderInvalidStateMaps409(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(context.Context, services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}
	router := newOrderRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodPatch, "/orders/ord_1/cancel", strings.NewReader(`{"reason":"late"}`)), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestCancelOrderAllowsEmptyBody(t *testing.T) {
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			if cmd.Reason != "" {
				t.Fatalf("expected empty reason, got %q", cmd.Reason)
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router := newOrderRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodPatch, "/orders/ord_1/cancel", nil), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSetOrderStatusByID(t *testing.T) {
	var captured services.SetOrderStatusCommand
	svc := &stubOrderService{
		setStatusFn: func(_ context.Context, cmd services.SetOrderStatusCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusShipped
			return order, nil
		},
	}
	router := newOrderRouter(svc)

	body := `{"status":"shipped"}`
	req := authedRequest(httptest.NewRequest(http.MethodPatch, "/orders/ord_1/status", strings.NewReader(body)), "staff-1", auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderRef != "ord_1" || captured.Status != "shipped" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if !captured.Actor.Staff {
		t.Fatalf("staff actor expected")
	}
}

func TestSetOrderStatusByNumber(t *testing.T) {
	var captured services.SetOrderStatusCommand
	svc := &stubOrderService{
		setStatusFn: func(_ context.Context, cmd services.SetOrderStatusCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusPaid
			order.PaymentStatus = domain.PaymentStatusPaid
			return order, nil
		},
	}
	router := newOrderRouter(svc)

	body := `{"status":"paid","payment_status":"paid"}`
	req := authedRequest(httptest.NewRequest(http.MethodPut, "/orders/by-number/ORD-1749722400000-ABCD/status", strings.NewReader(body)), "staff-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderRef != "ORD-1749722400000-ABCD" {
		t.Fatalf("unexpected order ref %q", captured.OrderRef)
	}
	if captured.PaymentStatus != "paid" {
		t.Fatalf("unexpected payment status %q", captured.PaymentStatus)
	}

	var response struct {
		Order struct {
			QRPayload string `json:"qr_payload"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.Order.QRPayload != "ord_1" {
		t.Fatalf("paid order payload must carry QR content, got %q", response.Order.QRPayload)
	}
}

func TestSetOrderStatusUnknownStatusMaps400(t *testing.T) {
	svc := &stubOrderService{
		setStatusFn: func(context.Context, services.SetOrderStatusCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidStatus
		},
	}
	router := newOrderRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodPatch, "/orders/ord_1/status", strings.NewReader(`{"status":"teleported"}`)), "staff-1", auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
