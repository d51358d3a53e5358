package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/and161185/toolkit-telemetry/internal/queue"
)

// PublisherMetrics counts what the publisher did with queued batches.
type PublisherMetrics struct {
	Sent     prometheus.Counter
	Dropped  prometheus.Counter
	Requeued prometheus.Counter
	Cycles   *prometheus.CounterVec
}

// NewPublisherMetrics creates the publisher counters and, when reg is not nil,
// registers them together with gauges observing q.
func NewPublisherMetrics(reg prometheus.Registerer, q *queue.EventQueue) (*PublisherMetrics, error) {
	m := &PublisherMetrics{
		Sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toolkit",
			Subsystem: "telemetry",
			Name:      "batches_sent_total",
			Help:      "Metric batches accepted by the telemetry service.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toolkit",
			Subsystem: "telemetry",
			Name:      "batches_rejected_total",
			Help:      "Metric batches discarded after a client error response.",
		}),
		Requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toolkit",
			Subsystem: "telemetry",
			Name:      "batches_requeued_total",
			Help:      "Metric batches returned to the queue after a transient failure.",
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolkit",
			Subsystem: "telemetry",
			Name:      "publish_cycles_total",
			Help:      "Publisher cycles by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{m.Sent, m.Dropped, m.Requeued, m.Cycles}
	if q != nil {
		collectors = append(collectors,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "toolkit",
				Subsystem: "telemetry",
				Name:      "queue_length",
				Help:      "Metric batches waiting to be published.",
			}, func() float64 { return float64(q.Len()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: "toolkit",
				Subsystem: "telemetry",
				Name:      "queue_evicted_total",
				Help:      "Metric batches evicted because the queue was full.",
			}, func() float64 { return float64(q.Dropped()) }),
		)
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
