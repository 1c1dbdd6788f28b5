package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/merge"
	"github.com/splax/deskpulse/internal/metrics"
)

// Metrics counts reconciliation outcomes. A nil *Metrics records nothing.
type Metrics struct {
	merged        *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	loadDuration  prometheus.Histogram
}

// NewMetrics registers the session collectors on reg, reusing collectors that
// an earlier session already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		merged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskpulse",
			Subsystem: "sync",
			Name:      "merged_entities_total",
			Help:      "Entities processed by reconciliation, by table and decision",
		}, []string{"table", "decision"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskpulse",
			Subsystem: "sync",
			Name:      "fetch_failures_total",
			Help:      "Table fetches that failed and left the local collection unchanged",
		}, []string{"table"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskpulse",
			Subsystem: "sync",
			Name:      "write_failures_total",
			Help:      "Optimistic writes the remote store rejected",
		}, []string{"table"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deskpulse",
			Subsystem: "sync",
			Name:      "load_duration_seconds",
			Help:      "Duration of a full workspace load",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
	}
	var err error
	if m.merged, err = metrics.Register(reg, m.merged); err != nil {
		return nil, err
	}
	if m.fetchFailures, err = metrics.Register(reg, m.fetchFailures); err != nil {
		return nil, err
	}
	if m.writeFailures, err = metrics.Register(reg, m.writeFailures); err != nil {
		return nil, err
	}
	if m.loadDuration, err = metrics.Register(reg, m.loadDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordMerge(table domain.Table, r merge.Report) {
	if m == nil {
		return
	}
	t := string(table)
	m.merged.WithLabelValues(t, "inserted").Add(float64(r.Inserted))
	m.merged.WithLabelValues(t, "replaced").Add(float64(r.Replaced))
	m.merged.WithLabelValues(t, "kept_local").Add(float64(r.KeptLocal))
	m.merged.WithLabelValues(t, "unchanged").Add(float64(r.Unchanged))
}

func (m *Metrics) recordFetchFailure(table domain.Table) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(string(table)).Inc()
}

func (m *Metrics) recordWriteFailure(table domain.Table) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(string(table)).Inc()
}

func (m *Metrics) observeLoad(seconds float64) {
	if m == nil {
		return
	}
	m.loadDuration.Observe(seconds)
}
