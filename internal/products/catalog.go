package product

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

const (
	DefaultCatalogSize = 50
	DefaultCatalogSeed = 2024

	minSeedPrice   = 50
	seedPriceRange = 200
	placeholderURL = "https://via.placeholder.com/200?text=Product+%d"
)

// GenerateCatalog builds count demo products named "Product N" with whole
// prices in [50, 250). The same seed always yields the same catalog.
func GenerateCatalog(count int, seed uint64) []models.Product {
	if count <= 0 {
		return nil
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	products := make([]models.Product, 0, count)
	for i := 1; i <= count; i++ {
		products = append(products, models.Product{
			ID:          strconv.Itoa(i),
			Name:        fmt.Sprintf("Product %d", i),
			PriceAmount: decimal.NewFromInt(int64(minSeedPrice + rng.IntN(seedPriceRange))),
			ImageURL:    fmt.Sprintf(placeholderURL, i),
			IsActive:    true,
		})
	}
	return products
}
