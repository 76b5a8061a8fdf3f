package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/platform/auth"
	"github.com/orchidmarket/api/internal/services"
)

func TestRouterHealthEndpoints(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	healthHandlers := NewHealthHandlers(
		WithHealthRepository(&stubHealthRepository{
			report: domain.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				Checks:      map[string]domain.SystemHealthCheck{},
				GeneratedAt: now,
			},
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	router := NewRouter(WithHealthHandlers(healthHandlers))

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestRouterUnknownRouteEnvelope(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var envelope struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if envelope.Error != errorNotFoundCode || envelope.Status != http.StatusNotFound {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestRouterUnconfiguredGroupAnswers501(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
}

func TestRouterMountsOrderGroup(t *testing.T) {
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error) {
			return domain.Page[services.Order]{Items: []services.Order{}, Page: filter.Page, Limit: filter.Limit}, nil
		},
	}
	orderHandlers := NewOrderHandlers(nil, svc)

	router := NewRouter(WithOrderRoutes(func(r chi.Router) {
		orderHandlers.Routes(r)
	}))

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/api/v1/orders/", nil), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}
