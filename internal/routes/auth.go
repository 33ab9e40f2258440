package routes

import (
	"net/http"

	"inspection-gateway/internal/proxy"
)

// Auth routes are opaque pass-throughs: the backend owns the session and the
// gateway only carries its cookies.
func Auth() []proxy.Route {
	return []proxy.Route{
		route("auth-login", http.MethodPost, "/api/auth/login", "/auth/login"),
		route("auth-logout", http.MethodPost, "/api/auth/logout", "/auth/logout"),
		route("auth-refresh", http.MethodPost, "/api/auth/refresh", "/auth/refresh"),
		route("auth-me", http.MethodGet, "/api/auth/me", "/auth/me"),
		route("auth-change-password", http.MethodPost, "/api/auth/change-password", "/auth/change-password"),
	}
}
