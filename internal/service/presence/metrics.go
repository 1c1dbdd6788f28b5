package presence

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/deskpulse/internal/metrics"
)

// Metrics tracks presence traffic. A nil *Metrics records nothing.
type Metrics struct {
	peers     prometheus.Gauge
	published prometheus.Counter
	dropped   *prometheus.CounterVec
}

// NewMetrics registers presence collectors with reg. A nil reg keeps them
// unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "deskpulse",
			Subsystem: "presence",
			Name:      "peers",
			Help:      "Remote peers currently visible",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deskpulse",
			Subsystem: "presence",
			Name:      "published_total",
			Help:      "Presence messages published",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskpulse",
			Subsystem: "presence",
			Name:      "dropped_total",
			Help:      "Presence messages dropped",
		}, []string{"reason"}),
	}
	var err error
	if m.peers, err = metrics.Register(reg, m.peers); err != nil {
		return nil, err
	}
	if m.published, err = metrics.Register(reg, m.published); err != nil {
		return nil, err
	}
	if m.dropped, err = metrics.Register(reg, m.dropped); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) setPeers(n int) {
	if m != nil {
		m.peers.Set(float64(n))
	}
}

func (m *Metrics) incPublished() {
	if m != nil {
		m.published.Inc()
	}
}

func (m *Metrics) incDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}
