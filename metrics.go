package delays

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	aggregationDuration *prometheus.HistogramVec
	sourceErrors        *prometheus.CounterVec
	recordsFetched      prometheus.Counter
}

// Registers the manager's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		aggregationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tgv_aggregation_duration_seconds",
			Help:    "Time spent fetching and aggregating delays by station",
			Buckets: prometheus.DefBuckets,
		}, []string{"order"}),
		sourceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tgv_source_errors_total",
			Help: "Failed reads from the delay table, by kind",
		}, []string{"kind"}),
		recordsFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "tgv_records_fetched_total",
			Help: "Delay records read from the table",
		}),
	}
}

// All methods are no-ops on a nil *Metrics.

func (m *Metrics) observeAggregation(order string, d time.Duration) {
	if m == nil {
		return
	}
	m.aggregationDuration.WithLabelValues(order).Observe(d.Seconds())
}

func (m *Metrics) sourceError(kind SourceErrorKind) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) fetched(n int) {
	if m == nil {
		return
	}
	m.recordsFetched.Add(float64(n))
}
