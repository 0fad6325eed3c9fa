package engine

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the engine's prometheus collectors.
type metrics struct {
	appends       *prometheus.CounterVec
	reads         *prometheus.CounterVec
	appendLatency prometheus.Histogram
	frontier      prometheus.Gauge
	keys          prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_appends_total",
			Help: "Total number of append operations",
		}, []string{"status"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_reads_total",
			Help: "Total number of read operations",
		}, []string{"op"}),
		appendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "waypoint_append_seconds",
			Help:    "Latency of append operations, including waiting for the writer",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 15),
		}),
		frontier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waypoint_write_frontier",
			Help: "Next free slot number",
		}),
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waypoint_keys",
			Help: "Number of distinct ids in the index",
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.appends, m.reads, m.appendLatency, m.frontier, m.keys} {
		err := reg.Register(c)
		if err != nil {
			return nil, errors.Wrap(err, "could not register engine metrics")
		}
	}

	return m, nil
}
