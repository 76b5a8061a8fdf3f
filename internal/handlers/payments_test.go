package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/platform/auth"
	"github.com/orchidmarket/api/internal/services"
)

type stubPaymentService struct {
	confirmFn func(context.Context, services.ConfirmPaymentCommand) (services.ReconciliationResult, error)
	listFn    func(context.Context, string, services.Actor) ([]services.PaymentRecord, error)
}

func (s *stubPaymentService) Confirm(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.ReconciliationResult, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.ReconciliationResult{}, errors.New("not implemented")
}

func (s *stubPaymentService) ListByOrder(ctx context.Context, orderID string, actor services.Actor) ([]services.PaymentRecord, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID, actor)
	}
	return nil, errors.New("not implemented")
}

func newPaymentRouter(svc services.PaymentService, opts ...PaymentHandlersOption) chi.Router {
	h := NewPaymentHandlers(nil, svc, opts...)
	r := chi.NewRouter()
	r.Route("/payments", h.Routes)
	r.Route("/orders", h.OrderRoutes)
	return r
}

func TestConfirmPaymentSuccess(t *testing.T) {
	var captured services.ConfirmPaymentCommand
	svc := &stubPaymentService{
		confirmFn: func(_ context.Context, cmd services.ConfirmPaymentCommand) (services.ReconciliationResult, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusPaid
			order.PaymentStatus = domain.PaymentStatusPaid
			return services.ReconciliationResult{Order: order, PaymentRecorded: true}, nil
		},
	}
	router := newPaymentRouter(svc)

	body := `{"order_id":"ord_1","gateway_payment_id":"pay_123","gateway_order_id":"gw_456","signature":"abc","amount":3000}`
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/payments/", strings.NewReader(body)), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderRef != "ord_1" || captured.GatewayPaymentID != "pay_123" || captured.Amount != 3000 {
		t.Fatalf("unexpected command %+v", captured)
	}

	var response struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
		PaymentRecorded bool   `json:"payment_recorded"`
		Warning         string `json:"warning"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !response.PaymentRecorded || response.Warning != "" {
		t.Fatalf("unexpected response %+v", response)
	}
	if response.Order.Status != "paid" {
		t.Fatalf("expected paid order, got %s", response.Order.Status)
	}
}

func TestConfirmPaymentFallsBackToOrderNumber(t *testing.T) {
	svc := &stubPaymentService{
		confirmFn: func(_ context.Context, cmd services.ConfirmPaymentCommand) (services.ReconciliationResult, error) {
			if cmd.OrderRef != "ORD-1749722400000-ABCD" {
				t.Fatalf("unexpected order ref %q", cmd.OrderRef)
			}
			return services.ReconciliationResult{Order: sampleOrder(), PaymentRecorded: true}, nil
		},
	}
	router := newPaymentRouter(svc)

	body := `{"order_number":"ORD-1749722400000-ABCD","gateway_payment_id":"pay_123"}`
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/payments/", strings.NewReader(body)), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestConfirmPaymentPartialFailureStillSucceeds(t *testing.T) {
	svc := &stubPaymentService{
		confirmFn: func(context.Context, services.ConfirmPaymentCommand) (services.ReconciliationResult, error) {
			return services.ReconciliationResult{
				Order:           sampleOrder(),
				PaymentRecorded: true,
				Err:             errors.New("order update failed"),
			}, nil
		},
	}
	router := newPaymentRouter(svc)

	body := `{"order_id":"ord_1","gateway_payment_id":"pay_123"}`
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/payments/", strings.NewReader(body)), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("partial failure must still answer 200, got %d", rr.Code)
	}
	var response struct {
		Warning string `json:"warning"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.Warning == "" {
		t.Fatalf("expected warning on partial failure")
	}
}

func TestConfirmPaymentUnknownOrderMaps404(t *testing.T) {
	svc := &stubPaymentService{
		confirmFn: func(context.Context, services.ConfirmPaymentCommand) (services.ReconciliationResult, error) {
			return services.ReconciliationResult{}, services.ErrPaymentOrderNotFound
		},
	}
	router := newPaymentRouter(svc)

	body := `{"order_id":"ord_missing","gateway_payment_id":"pay_123"}`
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/payments/", strings.NewReader(body)), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestConfirmPaymentRateLimited(t *testing.T) {
	svc := &stubPaymentService{
		confirmFn: func(context.Context, services.ConfirmPaymentCommand) (services.ReconciliationResult, error) {
			return services.ReconciliationResult{Order: sampleOrder(), PaymentRecorded: true}, nil
		},
	}
	router := newPaymentRouter(svc, WithConfirmRateLimit(1, time.Minute))

	body := `{"order_id":"ord_1","gateway_payment_id":"pay_123"}`
	first := authedRequest(httptest.NewRequest(http.MethodPost, "/payments/", strings.NewReader(body)), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, first)
	if rr.Code != http.StatusOK {
		t.Fatalf("first confirmation should pass, got %d", rr.Code)
	}

	second := authedRequest(httptest.NewRequest(http.MethodPost, "/payments/", strings.NewReader(body)), "user-1", auth.RoleUser)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, second)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

func TestListOrderPayments(t *testing.T) {
	svc := &stubPaymentService{
		listFn: func(_ context.Context, orderID string, actor services.Actor) ([]services.PaymentRecord, error) {
			if orderID != "ord_1" || !actor.Staff {
				t.Fatalf("unexpected call %s %+v", orderID, actor)
			}
			return []services.PaymentRecord{{OrderID: orderID, GatewayPaymentID: "pay_123", Amount: 3000}}, nil
		},
	}
	router := newPaymentRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/orders/ord_1/payments", nil), "staff-1", auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var response struct {
		Payments []struct {
			GatewayPaymentID string `json:"gateway_payment_id"`
		} `json:"payments"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(response.Payments) != 1 || response.Payments[0].GatewayPaymentID != "pay_123" {
		t.Fatalf("unexpected payload %+v", response.Payments)
	}
}
