package firestore

import (
	"context"
	"errors"
	"fmt"

	platform "github.com/orchidmarket/api/internal/platform/firestore"
	"github.com/orchidmarket/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *platform.Provider

	orders    repositories.OrderRepository
	payments  repositories.OrderPaymentRepository
	shipments repositories.ShipmentRepository
	returns   repositories.ReturnRepository
	catalog   repositories.CatalogRepository
	users     repositories.UserRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises repository construction.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	searchScanLimit int
}

// WithSearchScanLimit overrides the scan bound applied to staff order searches.
func WithSearchScanLimit(limit int) RegistryOption {
	return func(cfg *registryConfig) {
		if limit > 0 {
			cfg.searchScanLimit = limit
		}
	}
}

// NewRegistry constructs every Firestore repository against the shared provider.
func NewRegistry(provider *platform.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	var cfg registryConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	orders, err := NewOrderRepository(provider, cfg.searchScanLimit)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	payments, err := NewOrderPaymentRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	shipments, err := NewShipmentRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	returns, err := NewReturnRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	return &Registry{
		provider:  provider,
		orders:    orders,
		payments:  payments,
		shipments: shipments,
		returns:   returns,
		catalog:   catalog,
		users:     users,
		health:    health,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) OrderPayments() repositories.OrderPaymentRepository { return r.payments }
func (r *Registry) Shipments() repositories.ShipmentRepository         { return r.shipments }
func (r *Registry) Returns() repositories.ReturnRepository             { return r.returns }
func (r *Registry) Catalog() repositories.CatalogRepository            { return r.catalog }
func (r *Registry) Users() repositories.UserRepository                 { return r.users }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }

// RunInTx executes fn directly. Order inserts carry their own transactional
// boundary (order document plus number reservation); remaining writes are
// single-document and atomic on their own.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}
