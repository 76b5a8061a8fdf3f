package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/payments"
	"github.com/orchidmarket/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals a malformed confirmation payload.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentOrderNotFound indicates the referenced order does not exist.
	ErrPaymentOrderNotFound = errors.New("payment: order not found")
	// ErrPaymentForbidden indicates the actor may not touch this order's payments.
	ErrPaymentForbidden = errors.New("payment: forbidden")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders        repositories.OrderRepository
	Payments      repositories.OrderPaymentRepository
	Users         repositories.UserRepository
	Notifier      Notifier
	Verifier      *payments.SignatureVerifier
	NotifyTimeout time.Duration
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders   repositories.OrderRepository
	payments repositories.OrderPaymentRepository
	notify   *notificationDispatcher
	verifier *payments.SignatureVerifier
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:   deps.Orders,
		payments: deps.Payments,
		notify:   newNotificationDispatcher(deps.Notifier, deps.Users, deps.NotifyTimeout, logger),
		verifier: deps.Verifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Confirm reconciles a gateway confirmation against the order. Work that must
// happen regardless of partial failure (marking the order paid, appending the
// payment record) is attempted independently; failures of individual steps are
// collected on the result instead of aborting the whole reconciliation.
func (s *paymentService) Confirm(ctx context.Context, cmd ConfirmPaymentCommand) (ReconciliationResult, error) {
	gatewayPaymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	if gatewayPaymentID == "" {
		return ReconciliationResult{}, fmt.Errorf("%w: gateway payment id is required", ErrPaymentInvalidInput)
	}

	order, err := s.resolveOrder(ctx, cmd.OrderRef)
	if err != nil {
		return ReconciliationResult{}, err
	}

	if !cmd.Actor.Staff && order.UserID != cmd.Actor.UserID {
		return ReconciliationResult{}, fmt.Errorf("%w: order %s", ErrPaymentForbidden, order.ID)
	}

	now := s.clock()
	result := ReconciliationResult{}
	var failures []error

	if s.verifier != nil && s.verifier.Enabled() {
		valid := s.verifier.Verify(payments.Confirmation{
			GatewayPaymentID: gatewayPaymentID,
			GatewayOrderID:   strings.TrimSpace(cmd.GatewayOrderID),
			Signature:        strings.TrimSpace(cmd.Signature),
		})
		result.SignatureValid = valuePtr(valid)
		if !valid {
			s.logger(ctx, "payment.signature.invalid", map[string]any{
				"order":   order.ID,
				"payment": gatewayPaymentID,
			})
		}
	}

	if cmd.Amount > 0 && cmd.Amount != order.TotalAmount {
		result.AmountMismatch = true
		s.logger(ctx, "payment.amount.mismatch", map[string]any{
			"order":    order.ID,
			"payment":  gatewayPaymentID,
			"expected": order.TotalAmount,
			"received": cmd.Amount,
		})
	}

	// Flip the order to paid. Confirming an already-paid order only refreshes
	// the payment axis, never regresses the fulfilment status.
	statusChanged := false
	if order.PaymentStatus != domain.PaymentStatusPaid || order.Status == domain.OrderStatusPending {
		order.PaymentStatus = domain.PaymentStatusPaid
		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusPaid
			statusChanged = true
		}
		if order.PaidAt == nil {
			order.PaidAt = &now
		}
		order.UpdatedAt = now

		if err := s.orders.Update(ctx, order); err != nil {
			failures = append(failures, fmt.Errorf("update order: %w", err))
			s.logger(ctx, "payment.order_update_failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		}
	}

	record := PaymentRecord{
		OrderID:          order.ID,
		GatewayPaymentID: gatewayPaymentID,
		GatewayOrderID:   strings.TrimSpace(cmd.GatewayOrderID),
		Signature:        strings.TrimSpace(cmd.Signature),
		Amount:           cmd.Amount,
		SignatureValid:   result.SignatureValid,
		RecordedAt:       now,
	}

	switch err := s.payments.Insert(ctx, record); {
	case err == nil:
		result.PaymentRecorded = true
	case repositories.IsDuplicate(err):
		result.PaymentRecorded = true
		result.DuplicateConfirmation = true
		s.logger(ctx, "payment.duplicate_confirmation", map[string]any{
			"order":   order.ID,
			"payment": gatewayPaymentID,
		})
	default:
		failures = append(failures, fmt.Errorf("record payment: %w", err))
		s.logger(ctx, "payment.record_failed", map[string]any{
			"order":   order.ID,
			"payment": gatewayPaymentID,
			"error":   err.Error(),
		})
	}

	result.Order = order
	result.Err = errors.Join(failures...)

	if statusChanged && !result.DuplicateConfirmation {
		s.notify.Dispatch(ctx, OrderNotification{
			Event:         notificationEventPaymentSettled,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			UserID:        order.UserID,
			Status:        order.Status,
			PaymentStatus: order.PaymentStatus,
			TotalAmount:   order.TotalAmount,
			Currency:      order.Currency,
			QRPayload:     QRPayload(order),
			OccurredAt:    now,
		})
	}

	return result, nil
}

func (s *paymentService) ListByOrder(ctx context.Context, orderID string, actor Actor) ([]PaymentRecord, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.mapOrderError(err)
	}
	if !actor.Staff && order.UserID != actor.UserID {
		return nil, fmt.Errorf("%w: order %s", ErrPaymentForbidden, orderID)
	}

	records, err := s.payments.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, s.mapOrderError(err)
	}
	return records, nil
}

func (s *paymentService) resolveOrder(ctx context.Context, ref string) (Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Order{}, fmt.Errorf("%w: order reference is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, ref)
	if err == nil {
		return order, nil
	}
	if !repositories.IsNotFound(err) {
		return Order{}, s.mapOrderError(err)
	}

	order, err = s.orders.FindByNumber(ctx, ref)
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}
	return order, nil
}

func (s *paymentService) mapOrderError(err error) error {
	if err == nil {
		return nil
	}
	if repositories.IsNotFound(err) {
		return fmt.Errorf("%w: %v", ErrPaymentOrderNotFound, err)
	}
	return err
}

func valuePtr[T any](v T) *T {
	return &v
}
