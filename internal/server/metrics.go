package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for receipt ingestion and ledger
// mutations
type Metrics struct {
	registry       *prometheus.Registry
	receipts       *prometheus.CounterVec
	candidates     *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	mutations      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "receipts_ingested_total",
			Help:      "Receipts processed, by outcome.",
		}, []string{"outcome"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "receipt_candidates_total",
			Help:      "Item candidates extracted from receipts, by status.",
		}, []string{"status"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "splitledger",
			Name:      "receipt_ingest_duration_seconds",
			Help:      "Time spent extracting and parsing one receipt.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "ledger_mutations_total",
			Help:      "Ledger mutations, by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(m.receipts, m.candidates, m.ingestDuration, m.mutations)
	return m
}

func (m *Metrics) observeMutation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.mutations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
