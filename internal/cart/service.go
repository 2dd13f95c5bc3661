package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/cartstate"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// DefaultSessionID identifies the cart used when a caller sends no session.
const DefaultSessionID = "default"

// MaxLineQuantity is the largest quantity a stored line can hold.
const MaxLineQuantity = math.MaxInt32

const maxAddAttempts = 2

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLookup interface {
	LookupProduct(ctx context.Context, id string) (*models.Product, error)
}

// Service exposes the per-session cart operations served over HTTP.
type Service interface {
	GetCart(ctx context.Context, sessionID string) (*CartView, error)
	AddItem(ctx context.Context, sessionID, productID string) (*CartView, error)
	UpdateQuantity(ctx context.Context, sessionID, productID string, change int) (*CartView, error)
	RemoveItem(ctx context.Context, sessionID, productID string) (*CartView, error)
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products productLookup
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, products productLookup) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	return &service{repo: repo, tx: tx, products: products}, nil
}

func (s *service) GetCart(ctx context.Context, sessionID string) (*CartView, error) {
	sessionID, err := normalizeSession(sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListLines(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return newCartView(rows), nil
}

// AddItem adds one unit of a catalog product, copying its name and price
// onto a new line.
func (s *service) AddItem(ctx context.Context, sessionID, productID string) (*CartView, error) {
	sessionID, err := normalizeSession(sessionID)
	if err != nil {
		return nil, err
	}
	productID, err = normalizeProduct(productID)
	if err != nil {
		return nil, err
	}
	product, err := s.products.LookupProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			existing, err := repo.LockLine(ctx, sessionID, productID)
			switch {
			case err == nil:
				return repo.SetQuantity(ctx, sessionID, productID, nextQuantity(existing.Quantity, 1))
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}

			position, err := repo.NextPosition(ctx, sessionID)
			if err != nil {
				return err
			}
			return repo.InsertLine(ctx, &models.CartLine{
				SessionID: sessionID,
				ProductID: productID,
				Position:  position,
				Name:      product.Name,
				UnitPrice: product.PriceAmount,
				ImageURL:  product.ImageURL,
				Quantity:  1,
			})
		})
		// a concurrent first add won the insert; retry as an increment
		if err != nil && db.IsUniqueViolation(err, "") && attempt < maxAddAttempts {
			continue
		}
		break
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	return s.GetCart(ctx, sessionID)
}

// UpdateQuantity applies a signed change, pruning the line at zero. An
// unknown product or a zero change leaves the cart as is.
func (s *service) UpdateQuantity(ctx context.Context, sessionID, productID string, change int) (*CartView, error) {
	sessionID, err := normalizeSession(sessionID)
	if err != nil {
		return nil, err
	}
	productID, err = normalizeProduct(productID)
	if err != nil {
		return nil, err
	}
	if change == 0 {
		return s.GetCart(ctx, sessionID)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.LockLine(ctx, sessionID, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		next := nextQuantity(existing.Quantity, change)
		if next <= 0 {
			_, err := repo.DeleteLine(ctx, sessionID, productID)
			return err
		}
		return repo.SetQuantity(ctx, sessionID, productID, next)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart quantity")
	}
	return s.GetCart(ctx, sessionID)
}

// RemoveItem deletes the line if present.
func (s *service) RemoveItem(ctx context.Context, sessionID, productID string) (*CartView, error) {
	sessionID, err := normalizeSession(sessionID)
	if err != nil {
		return nil, err
	}
	productID, err = normalizeProduct(productID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.DeleteLine(ctx, sessionID, productID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return s.GetCart(ctx, sessionID)
}

// nextQuantity is max(0, current+change) without wrapping, capped at
// MaxLineQuantity.
func nextQuantity(current, change int) int {
	return min(cartstate.AddQuantity(current, change), MaxLineQuantity)
}

func normalizeSession(sessionID string) (string, error) {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "cart session is required")
	}
	return trimmed, nil
}

func normalizeProduct(productID string) (string, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return trimmed, nil
}
