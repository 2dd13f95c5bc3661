package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/pkg/cartclient"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const maxRequestIDLen = 64

// RequestID propagates the caller's X-Request-Id, minting one when absent.
// Client retries reuse their id, so replays share one log trail.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := validators.SanitizeString(r.Header.Get(cartclient.HeaderRequestID), maxRequestIDLen)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(cartclient.HeaderRequestID, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
