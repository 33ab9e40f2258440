package routes

import (
	"net/http"

	"inspection-gateway/internal/proxy"
)

// Projects covers projects and the inspection requests raised under them.
func Projects() []proxy.Route {
	out := resource("projects", "/projects")
	out = append(out, resource("inspection-requests", "/inspection-requests")...)
	return append(out,
		listRoute("projects-inspection-requests", "/api/projects/{id}/inspection-requests", "/projects/{id}/inspection-requests"),
		route("inspection-requests-assign", http.MethodPost, "/api/inspection-requests/{id}/assign", "/inspection-requests/{id}/assign"),
		route("inspection-requests-report", http.MethodGet, "/api/inspection-requests/{id}/report", "/inspection-requests/{id}/report"),
		route("inspection-requests-attachments", http.MethodPost, "/api/inspection-requests/{id}/attachments", "/inspection-requests/{id}/attachments"),
	)
}
