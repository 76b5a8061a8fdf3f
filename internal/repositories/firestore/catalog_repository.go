package firestore

import (
	"context"
	"errors"

	"github.com/orchidmarket/api/internal/domain"
	platform "github.com/orchidmarket/api/internal/platform/firestore"
	"github.com/orchidmarket/api/internal/repositories"
)

const productsCollection = "products"

type productVariantDocument struct {
	Name  string `firestore:"name,omitempty"`
	Price int64  `firestore:"price"`
}

type productDocument struct {
	Name      string                            `firestore:"name"`
	Price     int64                             `firestore:"price"`
	Currency  string                            `firestore:"currency,omitempty"`
	ImageURLs []string                          `firestore:"imageUrls,omitempty"`
	Variants  map[string]productVariantDocument `firestore:"variants,omitempty"`
}

type catalogRepository struct {
	base *platform.BaseRepository[productDocument]
}

var _ repositories.CatalogRepository = (*catalogRepository)(nil)

// NewCatalogRepository constructs the read-only view over the product catalog.
func NewCatalogRepository(provider *platform.Provider) (repositories.CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository: firestore provider is required")
	}
	return &catalogRepository{
		base: platform.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
	}, nil
}

func (r *catalogRepository) FindProduct(ctx context.Context, productID string) (domain.CatalogProduct, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.CatalogProduct{}, err
	}

	var variants map[string]domain.CatalogVariant
	if len(doc.Data.Variants) > 0 {
		variants = make(map[string]domain.CatalogVariant, len(doc.Data.Variants))
		for key, variant := range doc.Data.Variants {
			variants[key] = domain.CatalogVariant{Name: variant.Name, Price: variant.Price}
		}
	}

	return domain.CatalogProduct{
		ID:        doc.ID,
		Name:      doc.Data.Name,
		Price:     doc.Data.Price,
		Currency:  doc.Data.Currency,
		ImageURLs: doc.Data.ImageURLs,
		Variants:  variants,
	}, nil
}
