package product

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

func mustCreateTestProduct(t *testing.T, tx *gorm.DB, id string, price string, active bool) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:          id,
		Name:        fmt.Sprintf("Test Product %s", id),
		PriceAmount: decimal.RequireFromString(price),
		ImageURL:    "https://img.test/" + id,
		IsActive:    true,
	}
	if err := tx.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	if !active {
		if err := tx.Model(product).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate product: %v", err)
		}
	}
	return product
}

func memoryDSN(t *testing.T) string {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}
