package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/payments"
	"github.com/orchidmarket/api/internal/platform/config"
	"github.com/orchidmarket/api/internal/repositories"
	"github.com/orchidmarket/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders    services.OrderService
	Payments  services.PaymentService
	Returns   services.ReturnService
	Shipments services.ShipmentService
}

// ContainerDeps carries the runtime collaborators that cannot be derived from
// configuration alone.
type ContainerDeps struct {
	Config   config.Config
	Registry repositories.Registry
	Notifier services.Notifier
	Logger   *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore-backed
// registries and a Pub/Sub notifier, while tests can supply in-memory substitutes.
func NewContainer(deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(deps ContainerDeps) (Services, error) {
	var svc Services
	reg := deps.Registry
	cfg := deps.Config

	policy := transitionPolicyFromConfig(cfg.Orders)

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          reg.Orders(),
		Catalog:         reg.Catalog(),
		Users:           reg.Users(),
		UnitOfWork:      reg,
		Notifier:        deps.Notifier,
		Policy:          &policy,
		DefaultCurrency: cfg.Orders.DefaultCurrency,
		ListPageSize:    cfg.Orders.ListPageSize,
		ListMaxPageSize: cfg.Orders.ListMaxPageSize,
		NotifyTimeout:   cfg.Notifications.PublishTimeout,
		Clock:           time.Now,
		Logger:          eventLogger(deps.Logger, "orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:        reg.Orders(),
		Payments:      reg.OrderPayments(),
		Users:         reg.Users(),
		Notifier:      deps.Notifier,
		Verifier:      payments.NewSignatureVerifier(cfg.Gateway.KeySecret),
		NotifyTimeout: cfg.Notifications.PublishTimeout,
		Clock:         time.Now,
		Logger:        eventLogger(deps.Logger, "payments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	returnSvc, err := services.NewReturnService(services.ReturnServiceDeps{
		Returns: reg.Returns(),
		Orders:  reg.Orders(),
		Clock:   time.Now,
		Logger:  eventLogger(deps.Logger, "returns"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build return service: %w", err)
	}
	svc.Returns = returnSvc

	shipmentSvc, err := services.NewShipmentService(services.ShipmentServiceDeps{
		Shipments: reg.Shipments(),
		Orders:    reg.Orders(),
		Clock:     time.Now,
		Logger:    eventLogger(deps.Logger, "shipments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipment service: %w", err)
	}
	svc.Shipments = shipmentSvc

	return svc, nil
}

// transitionPolicyFromConfig seeds the lifecycle policy with the configured
// cancellation allow-sets. Unknown status names are skipped.
func transitionPolicyFromConfig(cfg config.OrdersConfig) services.OrderTransitionPolicy {
	policy := services.DefaultOrderTransitionPolicy()
	if owner := parseStatuses(cfg.OwnerCancellableStatuses); len(owner) > 0 {
		policy.OwnerCancellable = owner
	}
	if staff := parseStatuses(cfg.StaffCancellableStatuses); len(staff) > 0 {
		policy.StaffCancellable = staff
	}
	return policy
}

func parseStatuses(raw []string) []domain.OrderStatus {
	out := make([]domain.OrderStatus, 0, len(raw))
	for _, value := range raw {
		status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(value)))
		if status.IsValid() {
			out = append(out, status)
		}
	}
	return out
}

func eventLogger(logger *zap.Logger, name string) func(context.Context, string, map[string]any) {
	if logger == nil {
		return nil
	}
	scoped := logger.Named(name)
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		scoped.Debug(event, zFields...)
	}
}
