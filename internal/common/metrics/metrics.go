// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProxyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxy_requests_total",
			Help: "Total number of requests forwarded to the backend",
		},
		[]string{"route", "method", "status"},
	)

	ProxyRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_proxy_request_duration_seconds",
			Help:    "Duration of backend round trips in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upstream_errors_total",
			Help: "Total number of failed backend round trips",
		},
		[]string{"route", "error_code"},
	)

	ProxyInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_proxy_in_flight",
			Help: "Number of backend requests currently in flight per route",
		},
		[]string{"route"},
	)

	FormPatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_form_patches_total",
			Help: "Total number of form document path updates",
		},
		[]string{"mode", "outcome"},
	)

	FormSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_form_submissions_total",
			Help: "Total number of submitted form drafts",
		},
		[]string{"template", "outcome"},
	)

	TemplateCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_template_cache_lookups_total",
			Help: "Template lookups by the tier that served them",
		},
		[]string{"tier"},
	)
)
