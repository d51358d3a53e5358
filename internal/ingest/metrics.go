package ingest

import "github.com/prometheus/client_golang/prometheus"

type ingestMetrics struct {
	data     *prometheus.CounterVec
	feedback *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

func newIngestMetrics(reg prometheus.Registerer) (*ingestMetrics, error) {
	m := &ingestMetrics{
		data: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "metric_data_total",
			Help:      "Accepted metric data entries by product.",
		}, []string{"product"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "feedback_total",
			Help:      "Accepted feedback submissions by sentiment.",
		}, []string{"sentiment"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingest",
			Name:      "rejected_total",
			Help:      "Requests answered with 400 by path and reason.",
		}, []string{"path", "reason"}),
	}
	for _, c := range []prometheus.Collector{m.data, m.feedback, m.rejected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
