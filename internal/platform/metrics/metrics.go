package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ingestion pipeline.
// A nil *Metrics is a valid no-op receiver so unit tests can skip registration.
type Metrics struct {
	IngestOutcomes     *prometheus.CounterVec
	IngestDuration     prometheus.Histogram
	ProviderRequests   *prometheus.CounterVec
	ProductResolutions *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		IngestOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "economiza_ingest_outcomes_total",
			Help: "Terminal ingestion outcomes by kind (saved, accepted, conflict, failed).",
		}, []string{"outcome"}),
		IngestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "economiza_ingest_duration_seconds",
			Help:    "Wall time of synchronous ingestion attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "economiza_provider_requests_total",
			Help: "Upstream provider requests by provider name and result class.",
		}, []string{"provider", "result"}),
		ProductResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "economiza_product_resolutions_total",
			Help: "Product identity resolutions by strategy (barcode, fuzzy, embedding, created).",
		}, []string{"strategy"}),
	}
}

func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.IngestOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveIngestDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.IngestDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordProviderRequest(provider, result string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) RecordResolution(strategy string) {
	if m == nil {
		return
	}
	m.ProductResolutions.WithLabelValues(strategy).Inc()
}
