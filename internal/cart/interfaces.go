package cart

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	ListLines(ctx context.Context, sessionID string) ([]models.CartLine, error)
	LockLine(ctx context.Context, sessionID, productID string) (*models.CartLine, error)
	InsertLine(ctx context.Context, line *models.CartLine) error
	SetQuantity(ctx context.Context, sessionID, productID string, quantity int) error
	DeleteLine(ctx context.Context, sessionID, productID string) (int64, error)
	NextPosition(ctx context.Context, sessionID string) (int64, error)
}
