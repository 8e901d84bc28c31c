package syncer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for synchronization passes.
type Metrics struct {
	Passes       *prometheus.CounterVec
	Records      *prometheus.CounterVec
	PassDuration prometheus.Histogram
	Pending      prometheus.Gauge
}

// NewMetrics registers the sync metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Passes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "korebog_sync_passes_total",
			Help: "Synchronization passes by outcome",
		}, []string{"outcome"}),
		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "korebog_sync_records_total",
			Help: "Trip records handled by synchronization passes",
		}, []string{"result"}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "korebog_sync_pass_duration_seconds",
			Help:    "Duration of synchronization passes",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "korebog_sync_pending_records",
			Help: "Unsynchronized trips waiting for the next pass",
		}),
	}
}

func (m *Metrics) observe(res SyncResult, start time.Time, pending int) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(res.outcome()).Inc()
	m.Records.WithLabelValues("succeeded").Add(float64(res.Succeeded))
	m.Records.WithLabelValues("failed").Add(float64(len(res.Failures)))
	m.Records.WithLabelValues("skipped").Add(float64(res.Skipped))
	m.PassDuration.Observe(time.Since(start).Seconds())
	m.Pending.Set(float64(pending))
}
