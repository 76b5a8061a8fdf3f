package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	firestorev1 "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/orchidmarket/api/internal/domain"
	platform "github.com/orchidmarket/api/internal/platform/firestore"
	"github.com/orchidmarket/api/internal/repositories"
)

const paymentsSubcollection = "payments"

type paymentDocument struct {
	OrderID          string    `firestore:"orderId"`
	GatewayPaymentID string    `firestore:"gatewayPaymentId"`
	GatewayOrderID   string    `firestore:"gatewayOrderId,omitempty"`
	Signature        string    `firestore:"signature,omitempty"`
	Amount           int64     `firestore:"amount"`
	SignatureValid   *bool     `firestore:"signatureValid,omitempty"`
	RecordedAt       time.Time `firestore:"recordedAt"`
}

type orderPaymentRepository struct {
	provider *platform.Provider
}

var _ repositories.OrderPaymentRepository = (*orderPaymentRepository)(nil)

// NewOrderPaymentRepository constructs the payment sub-ledger repository.
// Records live in a subcollection beneath their order document, keyed by the
// gateway payment id.
func NewOrderPaymentRepository(provider *platform.Provider) (repositories.OrderPaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("order payment repository: firestore provider is required")
	}
	return &orderPaymentRepository{provider: provider}, nil
}

func (r *orderPaymentRepository) Insert(ctx context.Context, record domain.PaymentRecord) error {
	if strings.TrimSpace(record.OrderID) == "" {
		return platform.WrapError("orderPayments.insert", status.Error(codes.InvalidArgument, "order id is required"))
	}
	if strings.TrimSpace(record.GatewayPaymentID) == "" {
		return platform.WrapError("orderPayments.insert", status.Error(codes.InvalidArgument, "gateway payment id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	ref := client.Collection(ordersCollection).
		Doc(record.OrderID).
		Collection(paymentsSubcollection).
		Doc(record.GatewayPaymentID)

	_, err = ref.Create(ctx, paymentDocument{
		OrderID:          record.OrderID,
		GatewayPaymentID: record.GatewayPaymentID,
		GatewayOrderID:   record.GatewayOrderID,
		Signature:        record.Signature,
		Amount:           record.Amount,
		SignatureValid:   record.SignatureValid,
		RecordedAt:       record.RecordedAt,
	})
	return platform.WrapError("orderPayments.insert", err)
}

func (r *orderPaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentRecord, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, platform.WrapError("orderPayments.list", status.Error(codes.InvalidArgument, "order id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	query := client.Collection(ordersCollection).
		Doc(orderID).
		Collection(paymentsSubcollection).
		OrderBy("recordedAt", firestorev1.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var records []domain.PaymentRecord
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, platform.WrapError("orderPayments.list", err)
		}

		var doc paymentDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, platform.WrapError("orderPayments.list", err)
		}
		records = append(records, domain.PaymentRecord{
			OrderID:          doc.OrderID,
			GatewayPaymentID: snapshot.Ref.ID,
			GatewayOrderID:   doc.GatewayOrderID,
			Signature:        doc.Signature,
			Amount:           doc.Amount,
			SignatureValid:   doc.SignatureValid,
			RecordedAt:       doc.RecordedAt,
		})
	}
	return records, nil
}
