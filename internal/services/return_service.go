package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/repositories"
)

const returnIDPrefix = "ret_"

var (
	// ErrReturnInvalidInput signals a malformed return request.
	ErrReturnInvalidInput = errors.New("return: invalid input")
	// ErrReturnNotFound indicates the return or its order could not be located.
	ErrReturnNotFound = errors.New("return: not found")
	// ErrReturnForbidden indicates the actor may not act on this return.
	ErrReturnForbidden = errors.New("return: forbidden")
	// ErrReturnInvalidState indicates a transition the state machine refuses.
	ErrReturnInvalidState = errors.New("return: invalid state transition")
)

// returnTransitions is the complete state machine for the return sub-ledger.
var returnTransitions = map[domain.ReturnStatus][]domain.ReturnStatus{
	domain.ReturnStatusRequested: {domain.ReturnStatusApproved, domain.ReturnStatusRejected},
	domain.ReturnStatusApproved:  {domain.ReturnStatusReceived},
	domain.ReturnStatusRejected:  {},
	domain.ReturnStatusReceived:  {},
}

// returnableOrderStatuses lists the order statuses a return may be opened from.
var returnableOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusPaid,
	domain.OrderStatusShipped,
	domain.OrderStatusDelivered,
}

// ReturnServiceDeps bundles collaborators required to construct the return service.
type ReturnServiceDeps struct {
	Returns     repositories.ReturnRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type returnService struct {
	returns repositories.ReturnRepository
	orders  repositories.OrderRepository
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewReturnService wires dependencies into a concrete ReturnService implementation.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Returns == nil {
		return nil, errors.New("return service: return repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("return service: order repository is required")
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

	return &returnService{
		returns: deps.Returns,
		orders:  deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *returnService) Request(ctx context.Context, cmd RequestReturnCommand) (Return, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Return{}, fmt.Errorf("%w: order id is required", ErrReturnInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Return{}, fmt.Errorf("%w: reason is required", ErrReturnInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Return{}, s.mapRepositoryError(err)
	}

	if !cmd.Actor.Staff && order.UserID != cmd.Actor.UserID {
		return Return{}, fmt.Errorf("%w: order %s", ErrReturnForbidden, orderID)
	}

	eligible := false
	for _, status := range returnableOrderStatuses {
		if order.Status == status {
			eligible = true
			break
		}
	}
	if !eligible {
		return Return{}, fmt.Errorf("%w: order in status %s is not returnable", ErrReturnInvalidState, order.Status)
	}

	// Refuse a second open return for the same order.
	existing, err := s.returns.ListByOrder(ctx, order.ID)
	if err != nil {
		return Return{}, s.mapRepositoryError(err)
	}
	for _, ret := range existing {
		if ret.Status == domain.ReturnStatusRequested || ret.Status == domain.ReturnStatusApproved {
			return Return{}, fmt.Errorf("%w: order %s already has an open return", ErrReturnInvalidState, order.ID)
		}
	}

	now := s.clock()
	ret := Return{
		ID:        returnIDPrefix + s.newID(),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Reason:    reason,
		Status:    domain.ReturnStatusRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.returns.Insert(ctx, ret); err != nil {
		return Return{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "return.requested", map[string]any{
		"return": ret.ID,
		"order":  ret.OrderID,
		"user":   ret.UserID,
	})

	return ret, nil
}

func (s *returnService) ListByOrder(ctx context.Context, orderID string, actor Actor) ([]Return, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrReturnInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if !actor.Staff && order.UserID != actor.UserID {
		return nil, fmt.Errorf("%w: order %s", ErrReturnForbidden, orderID)
	}

	items, err := s.returns.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return items, nil
}

func (s *returnService) Transition(ctx context.Context, cmd TransitionReturnCommand) (Return, error) {
	if !cmd.Actor.Staff {
		return Return{}, fmt.Errorf("%w: return transitions require staff role", ErrReturnForbidden)
	}

	returnID := strings.TrimSpace(cmd.ReturnID)
	if returnID == "" {
		return Return{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}

	if _, known := returnTransitions[cmd.Target]; !known {
		return Return{}, fmt.Errorf("%w: unknown target status %q", ErrReturnInvalidInput, cmd.Target)
	}

	ret, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return Return{}, s.mapRepositoryError(err)
	}

	if ret.Status == cmd.Target {
		return ret, nil
	}

	allowed := false
	for _, candidate := range returnTransitions[ret.Status] {
		if candidate == cmd.Target {
			allowed = true
			break
		}
	}
	if !allowed {
		return Return{}, fmt.Errorf("%w: %s to %s", ErrReturnInvalidState, ret.Status, cmd.Target)
	}

	previous := ret.Status
	ret.Status = cmd.Target
	ret.UpdatedAt = s.clock()

	if err := s.returns.Update(ctx, ret); err != nil {
		return Return{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "return.transitioned", map[string]any{
		"return":   ret.ID,
		"order":    ret.OrderID,
		"previous": string(previous),
		"status":   string(ret.Status),
		"actor":    cmd.Actor.UserID,
	})

	return ret, nil
}

func (s *returnService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReturnNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("return: repository unavailable: %w", err)
		}
	}

	return err
}
