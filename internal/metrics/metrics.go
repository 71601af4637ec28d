package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the codec service. Everything
// registers on a private registry so the exposition endpoint carries only
// these series.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge

	// Codec metrics
	EncodeDuration prometheus.Histogram
	DecodeDuration prometheus.Histogram
	SamplesEncoded prometheus.Counter
	SamplesDecoded prometheus.Counter
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seanet_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seanet_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "seanet_http_in_flight_requests",
			Help: "Current number of HTTP requests being served",
		}),

		EncodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "seanet_encode_duration_seconds",
			Help:    "Time spent in the encoder tower",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		DecodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "seanet_decode_duration_seconds",
			Help:    "Time spent in the decoder tower",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		SamplesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "seanet_samples_encoded_total",
			Help: "Total number of PCM samples encoded",
		}),
		SamplesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "seanet_samples_decoded_total",
			Help: "Total number of PCM samples decoded",
		}),
	}
}

// Registry exposes the private registry for the exposition handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(route, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RequestStarted marks a request in flight.
func (m *Metrics) RequestStarted() {
	m.HTTPInFlight.Inc()
}

// RequestFinished removes a request from the in-flight gauge.
func (m *Metrics) RequestFinished() {
	m.HTTPInFlight.Dec()
}

// RecordEncode records one encoder pass.
func (m *Metrics) RecordEncode(samples int, durationSeconds float64) {
	m.SamplesEncoded.Add(float64(samples))
	m.EncodeDuration.Observe(durationSeconds)
}

// RecordDecode records one decoder pass.
func (m *Metrics) RecordDecode(samples int, durationSeconds float64) {
	m.SamplesDecoded.Add(float64(samples))
	m.DecodeDuration.Observe(durationSeconds)
}
