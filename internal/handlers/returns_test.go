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

type stubReturnService struct {
	requestFn    func(context.Context, services.RequestReturnCommand) (services.Return, error)
	listFn       func(context.Context, string, services.Actor) ([]services.Return, error)
	transitionFn func(context.Context, services.TransitionReturnCommand) (services.Return, error)
}

func (s *stubReturnService) Request(ctx context.Context, cmd services.RequestReturnCommand) (services.Return, error) {
	if s.requestFn != nil {
		return s.requestFn(ctx, cmd)
	}
	return services.Return{}, errors.New("not implemented")
}

func (s *stubReturnService) ListByOrder(ctx context.Context, orderID string, actor services.Actor) ([]services.Return, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID, actor)
	}
	return nil, errors.New("not implemented")
}

func (s *stubReturnService) Transition(ctx context.Context, cmd services.TransitionReturnCommand) (services.Return, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Return{}, errors.New("not implemented")
}

func newReturnRouter(svc services.ReturnService) chi.Router {
	h := NewReturnHandlers(nil, svc)
	r := chi.NewRouter()
	r.Route("/orders", h.OrderRoutes)
	r.Route("/returns", h.Routes)
	return r
}

func TestRequestReturnReturns201(t *testing.T) {
	var captured services.RequestReturnCommand
	svc := &stubReturnService{
		requestFn: func(_ context.Context, cmd services.RequestReturnCommand) (services.Return, error) {
			captured = cmd
			return services.Return{ID: "ret_1", OrderID: cmd.OrderID, UserID: cmd.Actor.UserID, Reason: cmd.Reason, Status: domain.ReturnStatusRequested}, nil
		},
	}
	router := newReturnRouter(svc)

	body := `{"reason":"cracked on arrival"}`
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/orders/ord_1/returns", strings.NewReader(body)), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Reason != "cracked on arrival" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var response struct {
		Return struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"return"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.Return.ID != "ret_1" || response.Return.Status != "requested" {
		t.Fatalf("unexpected payload %+v", response.Return)
	}
}

func TestRequestReturnInvalidStateMaps409(t *testing.T) {
	svc := &stubReturnService{
		requestFn: func(context.Context, services.RequestReturnCommand) (services.Return, error) {
			return services.Return{}, services.ErrReturnInvalidState
		},
	}
	router := newReturnRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodPost, "/orders/ord_1/returns", strings.NewReader(`{"reason":"x"}`)), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestListReturns(t *testing.T) {
	svc := &stubReturnService{
		listFn: func(_ context.Context, orderID string, _ services.Actor) ([]services.Return, error) {
			return []services.Return{{ID: "ret_1", OrderID: orderID, Status: domain.ReturnStatusApproved}}, nil
		},
	}
	router := newReturnRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodGet, "/orders/ord_1/returns", nil), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var response struct {
		Returns []struct {
			Status string `json:"status"`
		} `json:"returns"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(response.Returns) != 1 || response.Returns[0].Status != "approved" {
		t.Fatalf("unexpected payload %+v", response.Returns)
	}
}

func TestReturnTransitionRoutes(t *testing.T) {
	for path, target := range map[string]domain.ReturnStatus{
		"/returns/ret_1/approve": domain.ReturnStatusApproved,
		"/returns/ret_1/reject":  domain.ReturnStatusRejected,
		"/returns/ret_1/receive": domain.ReturnStatusReceived,
	} {
		var captured services.TransitionReturnCommand
		svc := &stubReturnService{
			transitionFn: func(_ context.Context, cmd services.TransitionReturnCommand) (services.Return, error) {
				captured = cmd
				return services.Return{ID: cmd.ReturnID, Status: cmd.Target}, nil
			},
		}
		router := newReturnRouter(svc)

		req := authedRequest(httptest.NewRequest(http.MethodPatch, path, nil), "staff-1", auth.RoleStaff)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rr.Code, rr.Body.String())
		}
		if captured.ReturnID != "ret_1" || captured.Target != target {
			t.Fatalf("%s: unexpected command %+v", path, captured)
		}
	}
}

func TestReturnTransitionInvalidStateMaps409(t *testing.T) {
	svc := &stubReturnService{
		transitionFn: func(context.Context, services.TransitionReturnCommand) (services.Return, error) {
			return services.Return{}, services.ErrReturnInvalidState
		},
	}
	router := newReturnRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodPatch, "/returns/ret_1/receive", nil), "staff-1", auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestReturnTransitionForbiddenMaps403(t *testing.T) {
	svc := &stubReturnService{
		transitionFn: func(context.Context, services.TransitionReturnCommand) (services.Return, error) {
			return services.Return{}, services.ErrReturnForbidden
		},
	}
	router := newReturnRouter(svc)

	req := authedRequest(httptest.NewRequest(http.MethodPatch, "/returns/ret_1/approve", nil), "user-1", auth.RoleUser)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
