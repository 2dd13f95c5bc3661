package cart

import (
	"encoding/json"

	"github.com/angelmondragon/storefront/internal/cartstate"
	"github.com/angelmondragon/storefront/pkg/db/models"
)

// LineDTO is one cart entry on the wire.
type LineDTO struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
	Image    string      `json:"image,omitempty"`
}

// CartView is the body of GET /api/cart. Totals are derived from the lines
// on every read.
type CartView struct {
	Cart       []LineDTO   `json:"cart"`
	TotalItems int         `json:"totalItems"`
	TotalPrice json.Number `json:"totalPrice"`
}

func newCartView(rows []models.CartLine) *CartView {
	view := &CartView{Cart: make([]LineDTO, 0, len(rows))}
	lines := make([]cartstate.Line, 0, len(rows))
	for _, row := range rows {
		view.Cart = append(view.Cart, LineDTO{
			ID:       row.ProductID,
			Name:     row.Name,
			Price:    json.Number(row.UnitPrice.StringFixed(2)),
			Quantity: row.Quantity,
			Image:    row.ImageURL,
		})
		lines = append(lines, cartstate.Line{
			ProductID: cartstate.ProductID(row.ProductID),
			UnitPrice: row.UnitPrice,
			Quantity:  row.Quantity,
		})
	}
	agg := cartstate.ComputeAggregates(lines)
	view.TotalItems = agg.TotalItems
	view.TotalPrice = json.Number(agg.Display())
	return view
}
