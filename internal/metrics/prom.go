package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded for generate requests.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeInternal    = "internal"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "llmgate_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "gateway"},
		},
		[]string{"date", "sha", "version"},
	)

	generateRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmgate_generate_requests_total",
			Help: "Number of generate requests by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	generateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmgate_generate_duration_seconds",
			Help:    "Time spent waiting on the inference service",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"model"},
	)

	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmgate_generate_in_flight",
			Help: "Generate requests currently waiting on the inference service",
		},
	)

	responseBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmgate_response_text_bytes_total",
			Help: "Bytes of generated text returned per model",
		},
		[]string{"model"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, generateRequests, generateDuration, inFlight, responseBytes)
}

// SetBuildInfo sets the build info metric for the gateway.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordGenerate increments the request counter for model with outcome.
func RecordGenerate(model, outcome string) {
	generateRequests.WithLabelValues(model, outcome).Inc()
}

// ObserveGenerateDuration records the downstream call duration.
func ObserveGenerateDuration(model string, d time.Duration) {
	generateDuration.WithLabelValues(model).Observe(d.Seconds())
}

// RecordResponseBytes adds n generated bytes for model.
func RecordResponseBytes(model string, n int) {
	responseBytes.WithLabelValues(model).Add(float64(n))
}

// TrackInFlight increments the in-flight gauge and returns the matching decrement.
func TrackInFlight() func() {
	inFlight.Inc()
	return inFlight.Dec
}
