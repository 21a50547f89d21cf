// Package metrics contains the Prometheus implementation of
// [domain.Metrics].
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

const namespace = "shelfdb"

// Metrics implements [domain.Metrics].
type Metrics struct {
	queries      *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec
	docsExamined *prometheus.HistogramVec
	keysExamined prometheus.Histogram
	mutations    *prometheus.CounterVec
	pipelines    *prometheus.CounterVec
	pipelineTime prometheus.Histogram
}

// NewMetrics registers the engine metrics in reg and returns a new
// implementation of [domain.Metrics]. A nil reg creates unregistered
// collectors.
func NewMetrics(reg prometheus.Registerer) domain.Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Queries executed, by plan stage and index.",
		}, []string{"stage", "index"}),
		queryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query execution time in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"stage"}),
		docsExamined: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "docs_examined",
			Help:      "Documents read by the predicate per query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"stage"}),
		keysExamined: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "keys_examined",
			Help:      "Index keys read per indexed query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "total",
			Help:      "Mutation attempts, by operation and outcome.",
		}, []string{"op", "outcome"}),
		pipelines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "total",
			Help:      "Aggregations run, by outcome.",
		}, []string{"outcome"}),
		pipelineTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Aggregation time in seconds, from the first read to the last result.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

// ObserveQuery implements [domain.Metrics].
func (m *Metrics) ObserveQuery(stats domain.ExecutionStats) {
	m.queries.WithLabelValues(stats.Stage, string(stats.Index)).Inc()
	m.queryLatency.WithLabelValues(stats.Stage).Observe(stats.Duration.Seconds())
	m.docsExamined.WithLabelValues(stats.Stage).Observe(float64(stats.DocsExamined))
	if stats.Index != "" {
		m.keysExamined.Observe(float64(stats.KeysExamined))
	}
}

// ObserveMutation implements [domain.Metrics].
func (m *Metrics) ObserveMutation(op string, err error) {
	m.mutations.WithLabelValues(op, outcome(err)).Inc()
}

// ObservePipeline implements [domain.Metrics].
func (m *Metrics) ObservePipeline(_ int, d time.Duration, err error) {
	m.pipelines.WithLabelValues(outcome(err)).Inc()
	m.pipelineTime.Observe(d.Seconds())
}

// outcome classifies errors by the sentinel they wrap.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrDuplicateKey):
		return "duplicate_key"
	case errors.Is(err, domain.ErrBadQuery):
		return "bad_query"
	case errors.Is(err, domain.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Nop returns a [domain.Metrics] that records nothing.
func Nop() domain.Metrics {
	return nop{}
}

type nop struct{}

func (nop) ObserveQuery(domain.ExecutionStats) {}

func (nop) ObserveMutation(string, error) {}

func (nop) ObservePipeline(int, time.Duration, error) {}
