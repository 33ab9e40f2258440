package routes

import (
	"net/http"

	"inspection-gateway/internal/proxy"
)

func Users() []proxy.Route {
	return append(resource("users", "/users"),
		listRoute("users-online", "/api/users/online", "/presence/online"),
		route("users-roles", http.MethodGet, "/api/users/{id}/roles", "/users/{id}/roles"),
		route("users-roles-update", http.MethodPut, "/api/users/{id}/roles", "/users/{id}/roles"),
	)
}
