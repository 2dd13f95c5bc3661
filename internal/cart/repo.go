package cart

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

// Repository exposes persistence operations for session carts.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListLines returns the session's lines in insertion order.
func (r *Repository) ListLines(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// LockLine loads a single line and holds a row lock on it until the
// surrounding transaction ends; gorm.ErrRecordNotFound when absent.
func (r *Repository) LockLine(ctx context.Context, sessionID, productID string) (*models.CartLine, error) {
	var line models.CartLine
	if err := r.lineQuery(ctx, sessionID, productID).First(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

// lineQuery selects one line FOR UPDATE. SQLite has no row locks and its
// driver drops the clause; writers are serialized there anyway.
func (r *Repository) lineQuery(ctx context.Context, sessionID, productID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("session_id = ? AND product_id = ?", sessionID, productID)
}

func (r *Repository) InsertLine(ctx context.Context, line *models.CartLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *Repository) SetQuantity(ctx context.Context, sessionID, productID string, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("session_id = ? AND product_id = ?", sessionID, productID).
		Update("quantity", quantity).Error
}

// DeleteLine removes a line and reports how many rows went away.
func (r *Repository) DeleteLine(ctx context.Context, sessionID, productID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("session_id = ? AND product_id = ?", sessionID, productID).
		Delete(&models.CartLine{})
	return res.RowsAffected, res.Error
}

// NextPosition returns one past the session's highest position.
func (r *Repository) NextPosition(ctx context.Context, sessionID string) (int64, error) {
	var highest sql.NullInt64
	row := r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("session_id = ?", sessionID).
		Select("MAX(position)").
		Row()
	if err := row.Scan(&highest); err != nil {
		return 0, err
	}
	if !highest.Valid {
		return 1, nil
	}
	return highest.Int64 + 1, nil
}
