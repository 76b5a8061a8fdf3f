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

const returnsCollection = "returns"

type returnDocument struct {
	OrderID   string    `firestore:"orderId"`
	UserID    string    `firestore:"userId"`
	Reason    string    `firestore:"reason,omitempty"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type returnRepository struct {
	base *platform.BaseRepository[returnDocument]
}

var _ repositories.ReturnRepository = (*returnRepository)(nil)

// NewReturnRepository constructs the Firestore-backed return repository.
func NewReturnRepository(provider *platform.Provider) (repositories.ReturnRepository, error) {
	if provider == nil {
		return nil, errors.New("return repository: firestore provider is required")
	}
	return &returnRepository{
		base: platform.NewBaseRepository[returnDocument](provider, returnsCollection, nil, nil),
	}, nil
}

func (r *returnRepository) Insert(ctx context.Context, ret domain.Return) error {
	_, err := r.base.Create(ctx, ret.ID, toReturnDocument(ret))
	return err
}

func (r *returnRepository) Update(ctx context.Context, ret domain.Return) error {
	_, err := r.base.Set(ctx, ret.ID, toReturnDocument(ret))
	return err
}

func (r *returnRepository) FindByID(ctx context.Context, returnID string) (domain.Return, error) {
	doc, err := r.base.Get(ctx, returnID)
	if err != nil {
		return domain.Return{}, err
	}
	return fromReturnDocument(doc.ID, doc.Data), nil
}

func (r *returnRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Return, error) {
	docs, err := r.base.Query(ctx, func(q firestorev1.Query) firestorev1.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestorev1.Desc)
	})
	if err != nil {
		return nil, err
	}

	returns := make([]domain.Return, 0, len(docs))
	for _, doc := range docs {
		returns = append(returns, fromReturnDocument(doc.ID, doc.Data))
	}
	return returns, nil
}

func toReturnDocument(ret domain.Return) returnDocument {
	return returnDocument{
		OrderID:   ret.OrderID,
		UserID:    ret.UserID,
		Reason:    ret.Reason,
		Status:    string(ret.Status),
		CreatedAt: ret.CreatedAt,
		UpdatedAt: ret.UpdatedAt,
	}
}

func fromReturnDocument(id string, doc returnDocument) domain.Return {
	return domain.Return{
		ID:        id,
		OrderID:   doc.OrderID,
		UserID:    doc.UserID,
		Reason:    doc.Reason,
		Status:    domain.ReturnStatus(doc.Status),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
