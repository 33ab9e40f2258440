// Package routes holds the proxy route tables, one per business domain.
package routes

import (
	"net/http"

	"inspection-gateway/internal/proxy"
)

// Registry returns the routes of one business domain.
type Registry func() []proxy.Route

// Registries lists every domain served by the gateway.
var Registries = map[string]Registry{
	"auth":       Auth,
	"users":      Users,
	"missions":   MissionOrders,
	"leave":      LeaveRequests,
	"equipment":  Equipment,
	"accounting": Accounting,
	"projects":   Projects,
}

// All returns the routes of every registry in a stable order.
func All() []proxy.Route {
	var out []proxy.Route
	for _, name := range []string{"auth", "users", "missions", "leave", "equipment", "accounting", "projects"} {
		out = append(out, Registries[name]()...)
	}
	return out
}

// resource builds the standard list/get/create/update/delete routes for a
// collection exposed at /api/<name> and served by the backend at upstream.
func resource(name, upstream string) []proxy.Route {
	api := "/api/" + name
	return []proxy.Route{
		{Name: name + "-list", Method: http.MethodGet, Pattern: api, Upstream: upstream, Paginate: true},
		{Name: name + "-get", Method: http.MethodGet, Pattern: api + "/{id}", Upstream: upstream + "/{id}"},
		{Name: name + "-create", Method: http.MethodPost, Pattern: api, Upstream: upstream},
		{Name: name + "-update", Method: http.MethodPut, Pattern: api + "/{id}", Upstream: upstream + "/{id}"},
		{Name: name + "-delete", Method: http.MethodDelete, Pattern: api + "/{id}", Upstream: upstream + "/{id}"},
	}
}

func route(name, method, pattern, upstream string) proxy.Route {
	return proxy.Route{Name: name, Method: method, Pattern: pattern, Upstream: upstream}
}

func listRoute(name, pattern, upstream string) proxy.Route {
	return proxy.Route{Name: name, Method: http.MethodGet, Pattern: pattern, Upstream: upstream, Paginate: true}
}
