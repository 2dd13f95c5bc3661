package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/pagination"
)

// Service exposes the read-mostly product catalog.
type Service interface {
	ListProducts(ctx context.Context, params pagination.Params) (*ProductListResult, error)
	GetProduct(ctx context.Context, id string) (*ProductDTO, error)
	LookupProduct(ctx context.Context, id string) (*models.Product, error)
	SeedCatalog(ctx context.Context, count int, seed uint64) (int, error)
}

type service struct {
	repo     *Repository
	dbClient *db.Client
}

// NewService constructs a product service instance.
func NewService(repo *Repository, dbClient *db.Client) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{repo: repo, dbClient: dbClient}, nil
}

func (s *service) ListProducts(ctx context.Context, params pagination.Params) (*ProductListResult, error) {
	params = params.Normalize()
	rows, err := s.repo.ListActive(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	result := &ProductListResult{Products: make([]ProductDTO, 0, len(rows))}
	for _, row := range rows {
		result.Products = append(result.Products, FromModel(row))
	}
	if next := pagination.NextOffset(params, len(rows)); next >= 0 {
		result.NextOffset = &next
	}
	return result, nil
}

func (s *service) GetProduct(ctx context.Context, id string) (*ProductDTO, error) {
	row, err := s.LookupProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*row)
	return &dto, nil
}

// LookupProduct returns the catalog row the cart copies name and price from.
func (s *service) LookupProduct(ctx context.Context, id string) (*models.Product, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	row, err := s.repo.FindByID(ctx, trimmed)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": trimmed})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return row, nil
}

// SeedCatalog fills an empty catalog with generated products. A catalog
// that already has rows is left untouched.
func (s *service) SeedCatalog(ctx context.Context, count int, seed uint64) (int, error) {
	inserted := 0
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		products := GenerateCatalog(count, seed)
		if err := repo.CreateProducts(ctx, products); err != nil {
			return err
		}
		inserted = len(products)
		return nil
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed catalog")
	}
	return inserted, nil
}
