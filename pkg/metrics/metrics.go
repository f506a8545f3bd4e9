package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "pubsub_publisher"

	StatusSuccess = "success"
	StatusError   = "error"

	OutcomePublished = "published"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeDeferred  = "deferred"
)

// Metrics holds the publisher and relay collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	publishes       *prometheus.CounterVec
	publishDuration prometheus.Histogram
	inFlight        prometheus.Gauge
	closes          *prometheus.CounterVec
	relayed         *prometheus.CounterVec
	relayBatchSize  prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "publishes_total",
			Help:      "Total publish requests by outcome",
		}, []string{"status"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "publish_duration_seconds",
			Help:      "Time from submission until the backend assigned a message ID or failed",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "publishes_in_flight",
			Help:      "Publish requests submitted and not yet resolved",
		}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "closes_total",
			Help:      "Client shutdowns by outcome",
		}, []string{"status"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Outbox messages handled by the relay by outcome",
		}, []string{"outcome"}),
		relayBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "batch_size",
			Help:      "Number of outbox messages fetched per relay batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	collectors := []prometheus.Collector{
		m.publishes, m.publishDuration, m.inFlight, m.closes, m.relayed, m.relayBatchSize,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// PublishStarted marks a publish as in flight.
func (m *Metrics) PublishStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// PublishFinished records the outcome of a publish started with PublishStarted.
func (m *Metrics) PublishFinished(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.publishDuration.Observe(elapsed.Seconds())
	m.publishes.WithLabelValues(status(err)).Inc()
}

// PublishRejected counts a publish refused before reaching the transport.
func (m *Metrics) PublishRejected() {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(StatusError).Inc()
}

// Closed records the outcome of a client shutdown.
func (m *Metrics) Closed(err error) {
	if m == nil {
		return
	}
	m.closes.WithLabelValues(status(err)).Inc()
}

// Relayed counts one outbox message handled with the given outcome.
func (m *Metrics) Relayed(outcome string) {
	if m == nil {
		return
	}
	m.relayed.WithLabelValues(outcome).Inc()
}

// RelayBatch records the size of a fetched relay batch.
func (m *Metrics) RelayBatch(size int) {
	if m == nil {
		return
	}
	m.relayBatchSize.Observe(float64(size))
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
