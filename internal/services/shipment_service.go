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

const shipmentIDPrefix = "shp_"

var (
	// ErrShipmentInvalidInput signals a malformed shipment payload.
	ErrShipmentInvalidInput = errors.New("shipment: invalid input")
	// ErrShipmentNotFound indicates the shipment or its order could not be located.
	ErrShipmentNotFound = errors.New("shipment: not found")
	// ErrShipmentForbidden indicates the actor may not act on shipments.
	ErrShipmentForbidden = errors.New("shipment: forbidden")
)

// ShipmentServiceDeps bundles collaborators required to construct the shipment service.
type ShipmentServiceDeps struct {
	Shipments   repositories.ShipmentRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type shipmentService struct {
	shipments repositories.ShipmentRepository
	orders    repositories.OrderRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewShipmentService wires dependencies into a concrete ShipmentService implementation.
func NewShipmentService(deps ShipmentServiceDeps) (ShipmentService, error) {
	if deps.Shipments == nil {
		return nil, errors.New("shipment service: shipment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("shipment service: order repository is required")
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

	return &shipmentService{
		shipments: deps.Shipments,
		orders:    deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *shipmentService) Create(ctx context.Context, cmd CreateShipmentCommand) (Shipment, error) {
	if !cmd.Actor.Staff {
		return Shipment{}, fmt.Errorf("%w: shipment creation requires staff role", ErrShipmentForbidden)
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Shipment{}, fmt.Errorf("%w: order id is required", ErrShipmentInvalidInput)
	}
	carrier := strings.TrimSpace(cmd.Carrier)
	if carrier == "" {
		return Shipment{}, fmt.Errorf("%w: carrier is required", ErrShipmentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Shipment{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	shipment := Shipment{
		ID:          shipmentIDPrefix + s.newID(),
		OrderID:     order.ID,
		Carrier:     carrier,
		TrackingRef: strings.TrimSpace(cmd.TrackingRef),
		Status:      domain.ShipmentStatusPreparing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.shipments.Insert(ctx, shipment); err != nil {
		return Shipment{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "shipment.created", map[string]any{
		"shipment": shipment.ID,
		"order":    shipment.OrderID,
		"carrier":  shipment.Carrier,
	})

	return shipment, nil
}

func (s *shipmentService) Update(ctx context.Context, cmd UpdateShipmentCommand) (Shipment, error) {
	if !cmd.Actor.Staff {
		return Shipment{}, fmt.Errorf("%w: shipment updates require staff role", ErrShipmentForbidden)
	}

	shipmentID := strings.TrimSpace(cmd.ShipmentID)
	if shipmentID == "" {
		return Shipment{}, fmt.Errorf("%w: shipment id is required", ErrShipmentInvalidInput)
	}

	shipment, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		return Shipment{}, s.mapRepositoryError(err)
	}

	changed := false
	if trimmed := strings.ToLower(strings.TrimSpace(cmd.Status)); trimmed != "" {
		status := domain.ShipmentStatus(trimmed)
		switch status {
		case domain.ShipmentStatusPreparing, domain.ShipmentStatusInTransit, domain.ShipmentStatusDelivered:
		default:
			return Shipment{}, fmt.Errorf("%w: unknown shipment status %q", ErrShipmentInvalidInput, cmd.Status)
		}
		if shipment.Status != status {
			shipment.Status = status
			changed = true
		}
	}
	if trimmed := strings.TrimSpace(cmd.TrackingRef); trimmed != "" && trimmed != shipment.TrackingRef {
		shipment.TrackingRef = trimmed
		changed = true
	}

	if !changed {
		return shipment, nil
	}

	shipment.UpdatedAt = s.clock()
	if err := s.shipments.Update(ctx, shipment); err != nil {
		return Shipment{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "shipment.updated", map[string]any{
		"shipment": shipment.ID,
		"order":    shipment.OrderID,
		"status":   string(shipment.Status),
	})

	return shipment, nil
}

func (s *shipmentService) ListByOrder(ctx context.Context, orderID string, actor Actor) ([]Shipment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrShipmentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if !actor.Staff && order.UserID != actor.UserID {
		return nil, fmt.Errorf("%w: order %s", ErrShipmentForbidden, orderID)
	}

	items, err := s.shipments.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return items, nil
}

func (s *shipmentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrShipmentNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("shipment: repository unavailable: %w", err)
		}
	}

	return err
}
