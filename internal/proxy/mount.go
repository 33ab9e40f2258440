package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RouteOptions resolves the per-route timeout and whether the route is
// served at all.
type RouteOptions func(name string) (timeout time.Duration, enabled bool)

// Mount validates routes and registers every enabled one on mux. It returns
// the routes that were mounted.
func (f *Forwarder) Mount(mux *http.ServeMux, routes []Route, opts RouteOptions) ([]Route, error) {
	seen := make(map[string]bool, len(routes))
	for _, route := range routes {
		if err := route.Validate(); err != nil {
			return nil, err
		}
		if seen[route.Name] {
			return nil, fmt.Errorf("duplicate route name %q", route.Name)
		}
		seen[route.Name] = true
	}

	mounted := make([]Route, 0, len(routes))
	for _, route := range routes {
		timeout, enabled := opts(route.Name)
		if !enabled {
			f.log(context.Background()).Info("route disabled", map[string]interface{}{"route": route.Name})
			continue
		}
		mux.Handle(route.MuxPattern(), f.Handler(route, timeout))
		mounted = append(mounted, route)
	}
	return mounted, nil
}
