package services

import (
	"context"

	domain "github.com/orchidmarket/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order             = domain.Order
	OrderItem         = domain.OrderItem
	OrderStatus       = domain.OrderStatus
	PaymentStatus     = domain.PaymentStatus
	PaymentRecord     = domain.PaymentRecord
	Shipment          = domain.Shipment
	Return            = domain.Return
	Address           = domain.Address
	OrderNotification = domain.OrderNotification
)

// Actor identifies the authenticated principal a command runs on behalf of.
type Actor struct {
	UserID string
	Email  string
	Staff  bool
}

// OrderService encapsulates order creation, reads, cancellation, and status transitions.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string, actor Actor) (Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (Order, error)
}

// PaymentService reconciles external gateway confirmations against orders.
type PaymentService interface {
	Confirm(ctx context.Context, cmd ConfirmPaymentCommand) (ReconciliationResult, error)
	ListByOrder(ctx context.Context, orderID string, actor Actor) ([]PaymentRecord, error)
}

// ReturnService manages the return sub-ledger and its state machine.
type ReturnService interface {
	Request(ctx context.Context, cmd RequestReturnCommand) (Return, error)
	ListByOrder(ctx context.Context, orderID string, actor Actor) ([]Return, error)
	Transition(ctx context.Context, cmd TransitionReturnCommand) (Return, error)
}

// ShipmentService manages staff-side fulfilment records.
type ShipmentService interface {
	Create(ctx context.Context, cmd CreateShipmentCommand) (Shipment, error)
	Update(ctx context.Context, cmd UpdateShipmentCommand) (Shipment, error)
	ListByOrder(ctx context.Context, orderID string, actor Actor) ([]Shipment, error)
}

// Notifier publishes order notifications for downstream e-mail and QR workers.
type Notifier interface {
	Publish(ctx context.Context, notification OrderNotification) error
}

// CreateOrderItemInput selects a catalog product (and optional variant) for a new order line.
type CreateOrderItemInput struct {
	ProductRef string
	VariantRef string
	Quantity   int
}

// CreateOrderCommand places a new order for the acting customer.
type CreateOrderCommand struct {
	Actor           Actor
	Items           []CreateOrderItemInput
	ShippingAddress Address
	BillingAddress  Address
	PaymentMethod   string
	Currency        string
}

// OrderListFilter pages and filters the storefront order list.
type OrderListFilter struct {
	Actor  Actor
	Page   int
	Limit  int
	Search string
}

// CancelOrderCommand cancels an order on behalf of its owner or staff.
type CancelOrderCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

// SetOrderStatusCommand transitions an order, addressed by id or order number.
type SetOrderStatusCommand struct {
	OrderRef      string
	Status        string
	PaymentStatus string
	Actor         Actor
}

// ConfirmPaymentCommand carries the gateway callback fields posted after an
// external payment succeeds.
type ConfirmPaymentCommand struct {
	OrderRef         string
	GatewayPaymentID string
	GatewayOrderID   string
	Signature        string
	Amount           int64
	Actor            Actor
}

// ReconciliationResult reports the outcome of a payment confirmation. Err
// collects downstream write failures that were contained rather than
// propagated; the confirmation as a whole still succeeded when Order is set.
type ReconciliationResult struct {
	Order                 Order
	PaymentRecorded       bool
	DuplicateConfirmation bool
	SignatureValid        *bool
	AmountMismatch        bool
	Err                   error
}

// RequestReturnCommand opens a return against an order the actor owns.
type RequestReturnCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

// TransitionReturnCommand moves a return through its state machine (staff only).
type TransitionReturnCommand struct {
	ReturnID string
	Target   domain.ReturnStatus
	Actor    Actor
}

// CreateShipmentCommand registers a new consignment for an order.
type CreateShipmentCommand struct {
	OrderID     string
	Carrier     string
	TrackingRef string
	Actor       Actor
}

// UpdateShipmentCommand amends carrier progress on an existing shipment.
type UpdateShipmentCommand struct {
	ShipmentID  string
	Status      string
	TrackingRef string
	Actor       Actor
}
