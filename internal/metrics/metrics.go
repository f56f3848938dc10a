package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	Measurements    *prometheus.CounterVec
	HardwareErrors  *prometheus.CounterVec
	MeasureDuration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		Measurements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sonar_measurements_total",
			Help: "Completed measurements, by sensor and outcome.",
		}, []string{"sensor", "outcome"}),
		HardwareErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sonar_hardware_errors_total",
			Help: "Sampling cycles skipped because a line could not be driven or read.",
		}, []string{"sensor"}),
		MeasureDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sonar_measure_duration_seconds",
			Help:    "Wall time spent inside a single measurement cycle.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"sensor"}),
	}
}
