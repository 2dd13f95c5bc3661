package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront/api/controllers/cart"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/cart"
	products "github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	productService products.Service,
	cartService cart.Service,
	httpMetrics *metrics.HTTPMetrics,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg, httpMetrics),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
		middleware.Metrics(httpMetrics),
	)

	// A nil *redis.Client must not reach the middleware as a non-nil interface.
	var (
		idempotencyStore redis.IdempotencyStore
		rateLimiter      redis.RateLimiter
		readiness        = map[string]controllers.Pinger{"redis": nil}
	)
	if dbP != nil {
		readiness["db"] = dbP
	}
	if redisClient != nil {
		idempotencyStore = redisClient
		rateLimiter = redisClient
		readiness["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", controllers.ProductList(productService, logg))
		r.Get("/{productId}", controllers.ProductDetail(productService, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.CartSession(logg))
		r.Use(middleware.CartRateLimit(
			middleware.NewCartRateLimitPolicy(cfg.CartLimits.MutationWindow, cfg.CartLimits.MutationLimit),
			rateLimiter,
			logg,
		))
		r.Use(middleware.Idempotency(idempotencyStore, cfg.CartLimits.IdempotencyTTL, logg))

		r.Get("/api/cart", cartcontrollers.CartFetch(cartService, logg))
		r.Post("/api/cart", cartcontrollers.CartAdd(cartService, logg))
		r.Post("/api/cart/update-quantity", cartcontrollers.CartUpdateQuantity(cartService, logg))
		r.Delete("/api/cart/{productId}", cartcontrollers.CartRemove(cartService, logg))
	})

	return r
}
