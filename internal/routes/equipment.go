package routes

import (
	"net/http"

	"inspection-gateway/internal/proxy"
)

// Equipment covers the equipment register and its calibration history.
func Equipment() []proxy.Route {
	return append(resource("equipment", "/equipment"),
		listRoute("equipment-calibrations", "/api/equipment/{id}/calibrations", "/equipment/{id}/calibrations"),
		route("equipment-calibrations-create", http.MethodPost, "/api/equipment/{id}/calibrations", "/equipment/{id}/calibrations"),
		route("calibrations-get", http.MethodGet, "/api/calibrations/{id}", "/calibrations/{id}"),
		route("calibrations-certificate", http.MethodGet, "/api/calibrations/{id}/certificate", "/calibrations/{id}/certificate"),
		listRoute("calibrations-due", "/api/calibrations/due", "/calibrations/due"),
	)
}
