package repositories

import (
	"context"

	domain "github.com/orchidmarket/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	OrderPayments() OrderPaymentRepository
	Shipments() ShipmentRepository
	Returns() ReturnRepository
	Catalog() CatalogRepository
	Users() UserRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order documents and provides the storefront list queries.
type OrderRepository interface {
	// Insert stores a new order and reserves its order number atomically. A
	// number collision surfaces as a conflict error.
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
}

// OrderListFilter narrows and pages the order list query.
type OrderListFilter struct {
	// UserID scopes results to a single owner when non-empty.
	UserID string
	// Search matches order numbers and item names case-insensitively.
	Search string
	// SearchOwnerIDs widens Search to orders owned by any of these users.
	// Populated by the caller from an e-mail lookup; only honoured together
	// with Search.
	SearchOwnerIDs []string
	Statuses       []domain.OrderStatus
	Page           int
	Limit          int
}

// OrderPaymentRepository stores the append-only payment sub-ledger of an order.
type OrderPaymentRepository interface {
	// Insert creates the record keyed by its gateway payment id. Inserting a
	// record that already exists surfaces a duplicate conflict; callers treat
	// that as an idempotent no-op.
	Insert(ctx context.Context, record domain.PaymentRecord) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentRecord, error)
}

// ShipmentRepository stores fulfilment data for orders.
type ShipmentRepository interface {
	Insert(ctx context.Context, shipment domain.Shipment) error
	Update(ctx context.Context, shipment domain.Shipment) error
	FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error)
}

// ReturnRepository stores the return sub-ledger.
type ReturnRepository interface {
	Insert(ctx context.Context, ret domain.Return) error
	Update(ctx context.Context, ret domain.Return) error
	FindByID(ctx context.Context, returnID string) (domain.Return, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Return, error)
}

// CatalogRepository reads product snapshots from the externally owned catalog.
type CatalogRepository interface {
	FindProduct(ctx context.Context, productID string) (domain.CatalogProduct, error)
}

// UserRepository reads profiles from the externally owned account system.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	// FindByEmail matches profiles whose e-mail contains the given term
	// (case-insensitive). Used by staff order searches.
	FindByEmail(ctx context.Context, emailTerm string) ([]domain.UserProfile, error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
