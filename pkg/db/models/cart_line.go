package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine persists one product's presence in a session's cart. Name and
// unit price are copied from the catalog on first add and never rewritten.
type CartLine struct {
	SessionID string          `gorm:"column:session_id;primaryKey"`
	ProductID string          `gorm:"column:product_id;primaryKey"`
	Position  int64           `gorm:"column:position;not null"`
	Name      string          `gorm:"column:name;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	ImageURL  string          `gorm:"column:image_url;not null;default:''"`
	Quantity  int             `gorm:"column:quantity;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartLine) TableName() string { return "cart_lines" }
