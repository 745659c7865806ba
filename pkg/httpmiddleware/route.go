package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// unmatched labels requests no route matched.
const unmatched = "unmatched"

// Routes seeds a chi route context so middlewares outside the router can read
// the matched pattern once the router has served the request. It must run
// before any middleware that calls RoutePattern.
func Routes() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if chi.RouteContext(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RoutePattern returns the chi pattern that served r, e.g.
// "/api/orders/{code}".
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatched
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatched
}
