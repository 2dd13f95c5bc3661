package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/storefront/pkg/cartclient"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000", // storefront dev server
}

// CORS returns middleware that applies the API's allowed origin policy.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Requested-With",
			cartclient.HeaderCartSession,
			cartclient.HeaderIdempotencyKey,
			cartclient.HeaderRequestID,
		},
		ExposedHeaders:   []string{cartclient.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
