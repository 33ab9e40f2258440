package routes

import (
	"net/http"

	"inspection-gateway/internal/proxy"
)

func LeaveRequests() []proxy.Route {
	return append(resource("leave-requests", "/leave-requests"),
		route("leave-requests-approve", http.MethodPost, "/api/leave-requests/{id}/approve", "/leave-requests/{id}/approve"),
		route("leave-requests-reject", http.MethodPost, "/api/leave-requests/{id}/reject", "/leave-requests/{id}/reject"),
		route("leave-requests-balance", http.MethodGet, "/api/leave-requests/balance/{userId}", "/leave-balances/{userId}"),
	)
}
