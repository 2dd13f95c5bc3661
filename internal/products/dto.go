package product

import (
	"encoding/json"

	"github.com/angelmondragon/storefront/pkg/db/models"
)

// ProductDTO is the catalog record served to the storefront.
type ProductDTO struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
	Image string      `json:"image"`
}

// ProductListResult is one page of the catalog.
type ProductListResult struct {
	Products   []ProductDTO `json:"products"`
	NextOffset *int         `json:"next_offset,omitempty"`
}

// FromModel maps a catalog row to its wire shape.
func FromModel(p models.Product) ProductDTO {
	return ProductDTO{
		ID:    p.ID,
		Name:  p.Name,
		Price: json.Number(p.PriceAmount.StringFixed(2)),
		Image: p.ImageURL,
	}
}
