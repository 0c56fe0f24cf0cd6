package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/anh26092005/web-thu-c-sub000/internal/domain"
	pfirestore "github.com/anh26092005/web-thu-c-sub000/internal/platform/firestore"
	"github.com/anh26092005/web-thu-c-sub000/internal/repositories"
)

const (
	productsCollection  = "products"
	provincesCollection = "provinces"
	wardsCollection     = "wards"
)

type productDocument struct {
	Name  string `firestore:"name"`
	Price int64  `firestore:"price"`
}

type regionDocument struct {
	Name string `firestore:"name"`
}

// ProductRepository reads catalog products for order confirmations.
type ProductRepository struct {
	products *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product reader.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// FindByID loads one product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{ID: doc.ID, Name: doc.Data.Name, Price: doc.Data.Price}, nil
}

// RegionRepository resolves province and ward codes.
type RegionRepository struct {
	provinces *pfirestore.BaseRepository[regionDocument]
	wards     *pfirestore.BaseRepository[regionDocument]
}

var _ repositories.RegionRepository = (*RegionRepository)(nil)

// NewRegionRepository constructs a Firestore-backed region reader.
func NewRegionRepository(provider *pfirestore.Provider) (*RegionRepository, error) {
	if provider == nil {
		return nil, errors.New("region repository requires firestore provider")
	}
	return &RegionRepository{
		provinces: pfirestore.NewBaseRepository[regionDocument](provider, provincesCollection),
		wards:     pfirestore.NewBaseRepository[regionDocument](provider, wardsCollection),
	}, nil
}

// FindProvince loads a province by code.
func (r *RegionRepository) FindProvince(ctx context.Context, code string) (domain.Region, error) {
	return findRegion(ctx, r.provinces, code, "province")
}

// FindWard loads a ward by code.
func (r *RegionRepository) FindWard(ctx context.Context, code string) (domain.Region, error) {
	return findRegion(ctx, r.wards, code, "ward")
}

func findRegion(ctx context.Context, repo *pfirestore.BaseRepository[regionDocument], code, kind string) (domain.Region, error) {
	doc, err := repo.Get(ctx, strings.TrimSpace(code))
	if err != nil {
		return domain.Region{}, err
	}
	return domain.Region{Code: doc.ID, Name: doc.Data.Name, Kind: kind}, nil
}
