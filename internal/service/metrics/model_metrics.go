package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ModelLatency tracks round-trip time of external model service calls.
	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fintrade",
			Subsystem: "model",
			Name:      "latency_seconds",
			Help:      "Latency of model service calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// ModelErrors counts failed model service calls after retries.
	ModelErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fintrade",
			Subsystem: "model",
			Name:      "errors_total",
			Help:      "Errors by model service endpoint",
		},
		[]string{"endpoint"},
	)
)

// Register installs the model service metrics exactly once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(ModelLatency, ModelErrors)
	})
}
