package routes

import (
	"net/http"

	"inspection-gateway/internal/proxy"
)

func MissionOrders() []proxy.Route {
	return append(resource("mission-orders", "/mission-orders"),
		route("mission-orders-status", http.MethodPatch, "/api/mission-orders/{id}/status", "/mission-orders/{id}/status"),
		route("mission-orders-assign", http.MethodPost, "/api/mission-orders/{id}/assign", "/mission-orders/{id}/assign"),
		route("mission-orders-print", http.MethodGet, "/api/mission-orders/{id}/print", "/mission-orders/{id}/print"),
		listRoute("mission-orders-expenses", "/api/mission-orders/{id}/expenses", "/mission-orders/{id}/expenses"),
	)
}
