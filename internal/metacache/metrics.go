package metacache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ansuz_metacache_lookups_total",
		Help: "Metadata cache lookups by validity outcome.",
	}, []string{"validity"})

	writesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ansuz_metacache_writes_total",
		Help: "Metadata cache entry writes.",
	})
)

func recordLookup(v Validity) {
	lookupsTotal.WithLabelValues(v.String()).Inc()
}

func recordWrite() {
	writesTotal.Inc()
}
