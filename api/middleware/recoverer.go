package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/pkg/cartclient"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// Recoverer turns a handler panic into a 500 envelope and counts it per
// route. http.ErrAbortHandler is re-raised so net/http drops the connection.
// A handler that already wrote a status keeps it; only the panic is logged.
func Recoverer(logg *logger.Logger, m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				route := metricsRoute(r)
				m.ObservePanic(r.Method, route)

				err, ok := v.(error)
				if !ok {
					err = fmt.Errorf("%v", v)
				}
				err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "handler panic")

				ctx := logg.WithFields(r.Context(), map[string]any{
					"route":      route,
					"method":     r.Method,
					"request_id": w.Header().Get(cartclient.HeaderRequestID),
				})
				if rec.status != 0 {
					logg.Error(ctx, "panic.after_response", err)
					return
				}
				responses.WriteError(ctx, logg, rec, err)
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
