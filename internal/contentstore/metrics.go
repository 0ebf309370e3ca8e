package contentstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ansuz_contentstore_requests_total",
	Help: "Requests issued to the content host, by operation and status.",
}, []string{"operation", "status"})

func recordRequest(operation, status string) {
	requestsTotal.WithLabelValues(operation, status).Inc()
}
