package middleware

import (
	"net/http"

	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/cartclient"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const maxCartSessionLen = 128

// CartSession resolves the cart identity from the X-Cart-Session header.
// Requests without one share the default cart.
func CartSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := validators.SanitizeString(r.Header.Get(cartclient.HeaderCartSession), maxCartSessionLen)
			if sessionID == "" {
				sessionID = cart.DefaultSessionID
			}

			ctx := WithCartSession(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithCartSession(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
