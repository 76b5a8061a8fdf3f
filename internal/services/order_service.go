package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/repositories"
)

const (
	orderIDPrefix    = "ord_"
	orderNumberInfix = "ORD"

	defaultListLimit = 10
	maxListLimit     = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderInvalidItem indicates an order line references an unknown product or variant.
	ErrOrderInvalidItem = errors.New("order: invalid item")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the actor may not act on this order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderConflict indicates duplicate order numbers or conflicting writes.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderInvalidStatus indicates an unknown status value was supplied.
	ErrOrderInvalidStatus = errors.New("order: unknown status")
	// ErrOrderInvalidState indicates a status transition the policy refuses.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
)

// OrderTransitionPolicy makes the lifecycle rules injectable: which status
// transitions staff may drive, and from which statuses owners and staff may
// cancel. The zero value is unusable; start from DefaultOrderTransitionPolicy.
type OrderTransitionPolicy struct {
	Transitions      map[domain.OrderStatus][]domain.OrderStatus
	OwnerCancellable []domain.OrderStatus
	StaffCancellable []domain.OrderStatus
}

// DefaultOrderTransitionPolicy mirrors the storefront's historical behaviour:
// staff may move an order between any live statuses, cancelled is terminal,
// owners cancel only while pending and staff also while paid.
func DefaultOrderTransitionPolicy() OrderTransitionPolicy {
	live := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusPaid,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	}
	return OrderTransitionPolicy{
		Transitions: map[domain.OrderStatus][]domain.OrderStatus{
			domain.OrderStatusPending:   live,
			domain.OrderStatusPaid:      live,
			domain.OrderStatusShipped:   live,
			domain.OrderStatusDelivered: live,
			domain.OrderStatusCancelled: {},
		},
		OwnerCancellable: []domain.OrderStatus{domain.OrderStatusPending},
		StaffCancellable: []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusPaid},
	}
}

// Allows reports whether the policy permits moving current to target.
// Same-status transitions are always idempotent no-ops.
func (p OrderTransitionPolicy) Allows(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := p.Transitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// CancellableBy returns the cancellation allow-set for the given actor kind.
func (p OrderTransitionPolicy) CancellableBy(staff bool) []domain.OrderStatus {
	if staff {
		return p.StaffCancellable
	}
	return p.OwnerCancellable
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Catalog         repositories.CatalogRepository
	Users           repositories.UserRepository
	UnitOfWork      repositories.UnitOfWork
	Notifier        Notifier
	Policy          *OrderTransitionPolicy
	DefaultCurrency string
	ListPageSize    int
	ListMaxPageSize int
	NotifyTimeout   time.Duration
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	catalog    repositories.CatalogRepository
	users      repositories.UserRepository
	unitOfWork repositories.UnitOfWork
	notify     *notificationDispatcher
	policy     OrderTransitionPolicy
	currency   string
	pageSize   int
	maxPage    int
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog repository is required")
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

	policy := DefaultOrderTransitionPolicy()
	if deps.Policy != nil {
		policy = *deps.Policy
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "INR"
	}

	pageSize := deps.ListPageSize
	if pageSize <= 0 {
		pageSize = defaultListLimit
	}
	maxPage := deps.ListMaxPageSize
	if maxPage < pageSize {
		maxPage = maxListLimit
	}

	return &orderService{
		orders:     deps.Orders,
		catalog:    deps.Catalog,
		users:      deps.Users,
		unitOfWork: unit,
		notify:     newNotificationDispatcher(deps.Notifier, deps.Users, deps.NotifyTimeout, logger),
		policy:     policy,
		currency:   currency,
		pageSize:   pageSize,
		maxPage:    maxPage,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.Actor.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: actor user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}

	now := s.now()

	items, err := s.snapshotItems(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotal()
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	order := Order{
		ID:              s.nextOrderID(),
		OrderNumber:     s.generateOrderNumber(now),
		UserID:          userID,
		Items:           items,
		Subtotal:        subtotal,
		TaxAmount:       0,
		ShippingCost:    0,
		TotalAmount:     subtotal,
		Currency:        currency,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  cmd.BillingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Insert(txCtx, order)
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"order":  order.ID,
		"number": order.OrderNumber,
		"user":   order.UserID,
		"total":  order.TotalAmount,
	})

	return order, nil
}

// snapshotItems resolves each requested line against the catalog and freezes
// name, image, and unit price onto the order.
func (s *orderService) snapshotItems(ctx context.Context, inputs []CreateOrderItemInput) ([]OrderItem, error) {
	items := make([]OrderItem, 0, len(inputs))
	for _, input := range inputs {
		productRef := strings.TrimSpace(input.ProductRef)
		if productRef == "" {
			return nil, fmt.Errorf("%w: product reference is required", ErrOrderInvalidItem)
		}

		product, err := s.catalog.FindProduct(ctx, productRef)
		if err != nil {
			if repositories.IsNotFound(err) {
				return nil, fmt.Errorf("%w: product %s not found", ErrOrderInvalidItem, productRef)
			}
			return nil, s.mapRepositoryError(err)
		}

		name := product.Name
		price := product.Price
		variantRef := strings.TrimSpace(input.VariantRef)
		if variantRef != "" {
			variant, ok := product.Variants[variantRef]
			if !ok {
				return nil, fmt.Errorf("%w: variant %s not found on product %s", ErrOrderInvalidItem, variantRef, productRef)
			}
			if variant.Name != "" {
				name = variant.Name
			}
			price = variant.Price
		}

		quantity := input.Quantity
		if quantity <= 0 {
			quantity = 1
		}

		var imageURL string
		if len(product.ImageURLs) > 0 {
			imageURL = product.ImageURLs[0]
		}

		items = append(items, OrderItem{
			ProductRef: productRef,
			VariantRef: variantRef,
			Name:       name,
			ImageURL:   imageURL,
			Quantity:   quantity,
			UnitPrice:  price,
		})
	}
	return items, nil
}

func (s *orderService) Get(ctx context.Context, orderID string, actor Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !actor.Staff && order.UserID != actor.UserID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = s.pageSize
	}
	if limit > s.maxPage {
		limit = s.maxPage
	}

	repoFilter := repositories.OrderListFilter{
		Search: strings.TrimSpace(filter.Search),
		Page:   page,
		Limit:  limit,
	}

	if !filter.Actor.Staff {
		repoFilter.UserID = filter.Actor.UserID
	} else if repoFilter.Search != "" && s.users != nil {
		// Staff searches also match owner e-mails.
		profiles, err := s.users.FindByEmail(ctx, repoFilter.Search)
		if err != nil {
			s.logger(ctx, "order.list.email_lookup_failed", map[string]any{
				"error": err.Error(),
			})
		}
		for _, profile := range profiles {
			repoFilter.SearchOwnerIDs = append(repoFilter.SearchOwnerIDs, profile.ID)
		}
	}

	result, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !cmd.Actor.Staff && order.UserID != cmd.Actor.UserID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}

	// Cancelling an already cancelled order is an idempotent no-op.
	if order.Status == domain.OrderStatusCancelled {
		return order, nil
	}

	allowed := s.policy.CancellableBy(cmd.Actor.Staff)
	if !slices.Contains(allowed, order.Status) {
		return Order{}, fmt.Errorf("%w: cannot cancel order in status %s", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	previous := order.Status
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"order":    order.ID,
		"previous": string(previous),
		"actor":    cmd.Actor.UserID,
		"reason":   cmd.Reason,
	})

	s.notify.Dispatch(ctx, s.buildNotification(notificationEventStatusChanged, order, now))

	return order, nil
}

func (s *orderService) SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (Order, error) {
	if !cmd.Actor.Staff {
		return Order{}, fmt.Errorf("%w: status updates require staff role", ErrOrderForbidden)
	}

	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(cmd.Status)))
	if !target.IsValid() {
		return Order{}, fmt.Errorf("%w: %q", ErrOrderInvalidStatus, cmd.Status)
	}

	var paymentTarget domain.PaymentStatus
	if trimmed := strings.ToLower(strings.TrimSpace(cmd.PaymentStatus)); trimmed != "" {
		paymentTarget = domain.PaymentStatus(trimmed)
		if !paymentTarget.IsValid() {
			return Order{}, fmt.Errorf("%w: payment status %q", ErrOrderInvalidStatus, cmd.PaymentStatus)
		}
	}

	order, err := s.resolveOrder(ctx, cmd.OrderRef)
	if err != nil {
		return Order{}, err
	}

	if !s.policy.Allows(order.Status, target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, target)
	}

	now := s.now()
	previous := order.Status
	changed := order.Status != target

	order.Status = target
	order.UpdatedAt = now
	s.applyStatusTimestamps(&order, target, now)
	if paymentTarget != "" {
		order.PaymentStatus = paymentTarget
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"order":    order.ID,
		"previous": string(previous),
		"status":   string(target),
		"actor":    cmd.Actor.UserID,
	})

	if changed {
		s.notify.Dispatch(ctx, s.buildNotification(notificationEventStatusChanged, order, now))
	}

	return order, nil
}

// resolveOrder looks the reference up as a document id first and falls back
// to the human-facing order number.
func (s *orderService) resolveOrder(ctx context.Context, ref string) (Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Order{}, fmt.Errorf("%w: order reference is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, ref)
	if err == nil {
		return order, nil
	}
	if !repositories.IsNotFound(err) {
		return Order{}, s.mapRepositoryError(err)
	}

	order, err = s.orders.FindByNumber(ctx, ref)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) applyStatusTimestamps(order *Order, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusPaid:
		if order.PaidAt == nil {
			order.PaidAt = &now
		}
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	}
}

func (s *orderService) buildNotification(event string, order Order, occurredAt time.Time) OrderNotification {
	return OrderNotification{
		Event:         event,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
		QRPayload:     QRPayload(order),
		OccurredAt:    occurredAt,
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

// generateOrderNumber derives the customer-facing number from the creation
// time plus a short random suffix taken from the id generator.
func (s *orderService) generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", orderNumberInfix, now.UnixMilli(), s.numberSuffix())
}

func (s *orderService) numberSuffix() string {
	id := strings.ToUpper(s.newID())
	if len(id) <= 4 {
		return id
	}
	return id[len(id)-4:]
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
