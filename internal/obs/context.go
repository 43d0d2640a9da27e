package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type routeKey struct{}

// WithRoute pins the route label used by metrics, spans and request logs.
// A pinned label takes precedence over the chi route pattern.
func WithRoute(ctx context.Context, route string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routeKey{}, route)
}

// Route resolves the route label for r, falling back when nothing matched.
// chi fills its route context while routing, so middlewares must call this
// after the wrapped handler has returned.
func Route(r *http.Request, fallback string) string {
	ctx := r.Context()
	if v, ok := ctx.Value(routeKey{}).(string); ok && v != "" {
		return v
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return fallback
}
