package domain

import "time"

// OrderStatus enumerates the fulfilment lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// KnownOrderStatuses lists every status the lifecycle recognises.
var KnownOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// IsValid reports whether the status is one of the recognised lifecycle states.
func (s OrderStatus) IsValid() bool {
	for _, known := range KnownOrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// PaymentStatus tracks the payment axis independently from fulfilment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// IsValid reports whether the payment status is recognised.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// Address captures a shipping or billing destination as supplied by the customer.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// OrderItem is the immutable snapshot of a catalog product captured at order
// creation. Later catalog edits never affect it.
type OrderItem struct {
	ProductRef string
	VariantRef string
	Name       string
	ImageURL   string
	Quantity   int
	UnitPrice  int64
}

// LineTotal returns quantity times the snapshotted unit price.
func (i OrderItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

// Order is the aggregate root of the order lifecycle. Monetary amounts are in
// minor currency units.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Items           []OrderItem
	Subtotal        int64
	TaxAmount       int64
	ShippingCost    int64
	TotalAmount     int64
	Currency        string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	ShippingAddress Address
	BillingAddress  Address
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	CancelledAt     *time.Time
}

// PaymentRecord is one row in the append-only payment sub-ledger of an order.
// The gateway payment id doubles as the record identity, which is what makes
// duplicate confirmations collapse into a single record.
type PaymentRecord struct {
	OrderID          string
	GatewayPaymentID string
	GatewayOrderID   string
	Signature        string
	Amount           int64
	SignatureValid   *bool
	RecordedAt       time.Time
}

// ShipmentStatus enumerates carrier-side progress of a shipment.
type ShipmentStatus string

const (
	ShipmentStatusPreparing ShipmentStatus = "preparing"
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
)

// Shipment tracks a physical consignment for an order.
type Shipment struct {
	ID          string
	OrderID     string
	Carrier     string
	TrackingRef string
	Status      ShipmentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReturnStatus enumerates the return sub-ledger state machine.
type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "requested"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusReceived  ReturnStatus = "received"
)

// Return records a customer return request against a whole order.
type Return struct {
	ID        string
	OrderID   string
	UserID    string
	Reason    string
	Status    ReturnStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CatalogProduct is the read-only view of the product catalog this service
// consumes when snapshotting order items.
type CatalogProduct struct {
	ID        string
	Name      string
	Price     int64
	Currency  string
	ImageURLs []string
	Variants  map[string]CatalogVariant
}

// CatalogVariant is an optional per-variant price/name override.
type CatalogVariant struct {
	Name  string
	Price int64
}

// UserProfile is the read-only slice of the external account system this
// service needs for notifications and staff searches.
type UserProfile struct {
	ID    string
	Email string
	Name  string
}

// Page is an offset-paginated result window together with the total number of
// records matching the filter, as required by the storefront list views.
type Page[T any] struct {
	Items []T
	Page  int
	Limit int
	Total int
}

// OrderNotification is the payload published for downstream e-mail and QR
// rendering workers when an order changes state.
type OrderNotification struct {
	Event          string
	OrderID        string
	OrderNumber    string
	UserID         string
	RecipientEmail string
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	TotalAmount    int64
	Currency       string
	QRPayload      string
	OccurredAt     time.Time
}
