package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/orchidmarket/api/internal/domain"
)

func newTestReturnService(t *testing.T, deps ReturnServiceDeps) ReturnService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = fixedClock(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "01HTESTTESTTESTTESTTESTABCD" }
	}
	svc, err := NewReturnService(deps)
	if err != nil {
		t.Fatalf("new return service: %v", err)
	}
	return svc
}

func deliveredOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "user-1", Status: domain.OrderStatusDelivered}, nil
		},
	}
}

func TestReturnServiceRequestOpensReturn(t *testing.T) {
	var inserted domain.Return
	returns := &stubReturnRepo{
		insertFn: func(_ context.Context, ret domain.Return) error {
			inserted = ret
			return nil
		},
	}
	svc := newTestReturnService(t, ReturnServiceDeps{Returns: returns, Orders: deliveredOrderRepo()})

	ret, err := svc.Request(context.Background(), RequestReturnCommand{
		OrderID: "ord_1",
		Actor:   Actor{UserID: "user-1"},
		Reason:  "cracked on arrival",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !strings.HasPrefix(ret.ID, "ret_") {
		t.Fatalf("unexpected return id %s", ret.ID)
	}
	if ret.Status != domain.ReturnStatusRequested {
		t.Fatalf("expected requested, got %s", ret.Status)
	}
	if inserted.OrderID != "ord_1" || inserted.UserID != "user-1" {
		t.Fatalf("unexpected insert: %+v", inserted)
	}
}

func TestReturnServiceRequestRejectsPendingOrder(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "user-1", Status: domain.OrderStatusPending}, nil
		},
	}
	svc := newTestReturnService(t, ReturnServiceDeps{Returns: &stubReturnRepo{}, Orders: orders})

	_, err := svc.Request(context.Background(), RequestReturnCommand{
		OrderID: "ord_1",
		Actor:   Actor{UserID: "user-1"},
		Reason:  "changed my mind",
	})
	if !errors.Is(err, ErrReturnInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestReturnServiceRequestRejectsSecondOpenReturn(t *testing.T) {
	returns := &stubReturnRepo{
		listFn: func(_ context.Context, orderID string) ([]domain.Return, error) {
			return []domain.Return{{ID: "ret_0", OrderID: orderID, Status: domain.ReturnStatusRequested}}, nil
		},
	}
	svc := newTestReturnService(t, ReturnServiceDeps{Returns: returns, Orders: deliveredOrderRepo()})

	_, err := svc.Request(context.Background(), RequestReturnCommand{
		OrderID: "ord_1",
		Actor:   Actor{UserID: "user-1"},
		Reason:  "still broken",
	})
	if !errors.Is(err, ErrReturnInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestReturnServiceRequestEnforcesOwnership(t *testing.T) {
	svc := newTestReturnService(t, ReturnServiceDeps{Returns: &stubReturnRepo{}, Orders: deliveredOrderRepo()})

	_, err := svc.Request(context.Background(), RequestReturnCommand{
		OrderID: "ord_1",
		Actor:   Actor{UserID: "stranger"},
		Reason:  "not mine",
	})
	if !errors.Is(err, ErrReturnForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestReturnServiceRequestRequiresReason(t *testing.T) {
	svc := newTestReturnService(t, ReturnServiceDeps{Returns: &stubReturnRepo{}, Orders: deliveredOrderRepo()})

	_, err := svc.Request(context.Background(), RequestReturnCommand{
		OrderID: "ord_1",
		Actor:   Actor{UserID: "user-1"},
	})
	if !errors.Is(err, ErrReturnInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestReturnServiceTransitionStateMachine(t *testing.T) {
	for _, tc := range []struct {
		name    string
		from    domain.ReturnStatus
		target  domain.ReturnStatus
		allowed bool
	}{
		{"requested to approved", domain.ReturnStatusRequested, domain.ReturnStatusApproved, true},
		{"requested to rejected", domain.ReturnStatusRequested, domain.ReturnStatusRejected, true},
		{"requested to received", domain.ReturnStatusRequested, domain.ReturnStatusReceived, false},
		{"approved to received", domain.ReturnStatusApproved, domain.ReturnStatusReceived, true},
		{"approved to rejected", domain.ReturnStatusApproved, domain.ReturnStatusRejected, false},
		{"rejected is terminal", domain.ReturnStatusRejected, domain.ReturnStatusApproved, false},
		{"received is terminal", domain.ReturnStatusReceived, domain.ReturnStatusApproved, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			returns := &stubReturnRepo{
				findFn: func(_ context.Context, returnID string) (domain.Return, error) {
					return domain.Return{ID: returnID, OrderID: "ord_1", Status: tc.from}, nil
				},
			}
			svc := newTestReturnService(t, ReturnServiceDeps{Returns: returns, Orders: deliveredOrderRepo()})

			ret, err := svc.Transition(context.Background(), TransitionReturnCommand{
				ReturnID: "ret_1",
				Target:   tc.target,
				Actor:    Actor{UserID: "staff-1", Staff: true},
			})
			if tc.allowed {
				if err != nil {
					t.Fatalf("transition: %v", err)
				}
				if ret.Status != tc.target {
					t.Fatalf("expected %s, got %s", tc.target, ret.Status)
				}
				return
			}
			if !errors.Is(err, ErrReturnInvalidState) {
				t.Fatalf("expected invalid state, got %v", err)
			}
		})
	}
}

func TestReturnServiceTransitionRequiresStaff(t *testing.T) {
	svc := newTestReturnService(t, ReturnServiceDeps{Returns: &stubReturnRepo{}, Orders: deliveredOrderRepo()})

	_, err := svc.Transition(context.Background(), TransitionReturnCommand{
		ReturnID: "ret_1",
		Target:   domain.ReturnStatusApproved,
		Actor:    Actor{UserID: "user-1"},
	})
	if !errors.Is(err, ErrReturnForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestReturnServiceTransitionSameStatusIsIdempotent(t *testing.T) {
	updates := 0
	returns := &stubReturnRepo{
		findFn: func(_ context.Context, returnID string) (domain.Return, error) {
			return domain.Return{ID: returnID, Status: domain.ReturnStatusApproved}, nil
		},
		updateFn: func(context.Context, domain.Return) error {
			updates++
			return nil
		},
	}
	svc := newTestReturnService(t, ReturnServiceDeps{Returns: returns, Orders: deliveredOrderRepo()})

	ret, err := svc.Transition(context.Background(), TransitionReturnCommand{
		ReturnID: "ret_1",
		Target:   domain.ReturnStatusApproved,
		Actor:    Actor{UserID: "staff-1", Staff: true},
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if ret.Status != domain.ReturnStatusApproved {
		t.Fatalf("unexpected status %s", ret.Status)
	}
	if updates != 0 {
		t.Fatalf("expected no writes, got %d", updates)
	}
}

func TestReturnServiceListByOrderEnforcesOwnership(t *testing.T) {
	returns := &stubReturnRepo{
		listFn: func(_ context.Context, orderID string) ([]domain.Return, error) {
			return []domain.Return{{ID: "ret_1", OrderID: orderID}}, nil
		},
	}
	svc := newTestReturnService(t, ReturnServiceDeps{Returns: returns, Orders: deliveredOrderRepo()})

	listed, err := svc.ListByOrder(context.Background(), "ord_1", Actor{UserID: "user-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 return, got %d", len(listed))
	}

	if _, err := svc.ListByOrder(context.Background(), "ord_1", Actor{UserID: "stranger"}); !errors.Is(err, ErrReturnForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
