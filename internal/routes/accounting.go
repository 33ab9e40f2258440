package routes

import (
	"net/http"

	"inspection-gateway/internal/proxy"
)

func Accounting() []proxy.Route {
	return append(resource("invoices", "/accounting/invoices"),
		route("invoices-pdf", http.MethodGet, "/api/invoices/{id}/pdf", "/accounting/invoices/{id}/pdf"),
		route("invoices-issue", http.MethodPost, "/api/invoices/{id}/issue", "/accounting/invoices/{id}/issue"),
		listRoute("payments-list", "/api/payments", "/accounting/payments"),
		route("payments-create", http.MethodPost, "/api/payments", "/accounting/payments"),
		route("accounting-summary", http.MethodGet, "/api/accounting/summary", "/accounting/summary"),
	)
}
