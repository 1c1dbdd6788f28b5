package httpx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/deskpulse/internal/metrics"
)

var (
	histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskpulse",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})

		r.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deskpulse",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"})

		r.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskpulse",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "scope"})

		r.presenceDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskpulse",
			Subsystem: "api",
			Name:      "presence_frames_dropped_total",
			Help:      "Inbound presence frames discarded by the websocket bridge",
		}, []string{"reason"})

		var err error
		if r.requestTotal, err = metrics.Register(r.registerer, r.requestTotal); err != nil {
			r.logger.Warn("metrics registration failed", "error", err)
			return
		}
		if r.requestLatency, err = metrics.Register(r.registerer, r.requestLatency); err != nil {
			r.logger.Warn("metrics registration failed", "error", err)
			return
		}
		if r.rateLimitHits, err = metrics.Register(r.registerer, r.rateLimitHits); err != nil {
			r.logger.Warn("metrics registration failed", "error", err)
			return
		}
		if r.presenceDropped, err = metrics.Register(r.registerer, r.presenceDropped); err != nil {
			r.logger.Warn("metrics registration failed", "error", err)
			return
		}
		r.metricsInitialized = true
	})
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, scope string) {
	if !r.metricsInitialized {
		return
	}
	r.rateLimitHits.With(prometheus.Labels{"route": route, "scope": scope}).Inc()
}

func (r *Router) recordPresenceDrop(reason string) {
	if !r.metricsInitialized {
		return
	}
	r.presenceDropped.WithLabelValues(reason).Inc()
}
