package cart

import "github.com/angelmondragon/storefront/internal/cartstate"

// addItemRequest is the body of POST /cart.
type addItemRequest struct {
	ProductID cartstate.ProductID `json:"productId" validate:"required,product_id"`
}

// updateQuantityRequest is the body of POST /cart/update-quantity.
// QuantityChange is a signed delta; zero is accepted and changes nothing.
type updateQuantityRequest struct {
	ProductID      cartstate.ProductID `json:"productId" validate:"required,product_id"`
	QuantityChange *int                `json:"quantityChange" validate:"required"`
}
