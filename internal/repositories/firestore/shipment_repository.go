package firestore

import (
	"context"
	"errors"
	"time"

	firestorev1 "cloud.google.com/go/firestore"

	"github.com/orchidmarket/api/internal/domain"
	platform "github.com/orchidmarket/api/internal/platform/firestore"
	"github.com/orchidmarket/api/internal/repositories"
)

const shipmentsCollection = "shipments"

type shipmentDocument struct {
	OrderID     string    `firestore:"orderId"`
	Carrier     string    `firestore:"carrier,omitempty"`
	TrackingRef string    `firestore:"trackingRef,omitempty"`
	Status      string    `firestore:"status"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

type shipmentRepository struct {
	base *platform.BaseRepository[shipmentDocument]
}

var _ repositories.ShipmentRepository = (*shipmentRepository)(nil)

// NewShipmentRepository constructs the Firestore-backed shipment repository.
func NewShipmentRepository(provider *platform.Provider) (repositories.ShipmentRepository, error) {
	if provider == nil {
		return nil, errors.New("shipment repository: firestore provider is required")
	}
	return &shipmentRepository{
		base: platform.NewBaseRepository[shipmentDocument](provider, shipmentsCollection, nil, nil),
	}, nil
}

func (r *shipmentRepository) Insert(ctx context.Context, shipment domain.Shipment) error {
	_, err := r.base.Create(ctx, shipment.ID, toShipmentDocument(shipment))
	return err
}

func (r *shipmentRepository) Update(ctx context.Context, shipment domain.Shipment) error {
	_, err := r.base.Set(ctx, shipment.ID, toShipmentDocument(shipment))
	return err
}

func (r *shipmentRepository) FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	doc, err := r.base.Get(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	return fromShipmentDocument(doc.ID, doc.Data), nil
}

func (r *shipmentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error) {
	docs, err := r.base.Query(ctx, func(q firestorev1.Query) firestorev1.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestorev1.Asc)
	})
	if err != nil {
		return nil, err
	}

	shipments := make([]domain.Shipment, 0, len(docs))
	for _, doc := range docs {
		shipments = append(shipments, fromShipmentDocument(doc.ID, doc.Data))
	}
	return shipments, nil
}

func toShipmentDocument(shipment domain.Shipment) shipmentDocument {
	return shipmentDocument{
		OrderID:     shipment.OrderID,
		Carrier:     shipment.Carrier,
		TrackingRef: shipment.TrackingRef,
		Status:      string(shipment.Status),
		CreatedAt:   shipment.CreatedAt,
		UpdatedAt:   shipment.UpdatedAt,
	}
}

func fromShipmentDocument(id string, doc shipmentDocument) domain.Shipment {
	return domain.Shipment{
		ID:          id,
		OrderID:     doc.OrderID,
		Carrier:     doc.Carrier,
		TrackingRef: doc.TrackingRef,
		Status:      domain.ShipmentStatus(doc.Status),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
