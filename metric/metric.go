// Package metric provides a Prometheus implementation of
// factdb.MetricsCollector.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/factdb"
)

var _ factdb.MetricsCollector = (*PrometheusCollector)(nil)

// PrometheusCollector records factdb operations as Prometheus counters and
// latency histograms, labeled by sort and outcome.
type PrometheusCollector struct {
	ops       *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	edges     *prometheus.CounterVec
	commits   *prometheus.CounterVec
	committed prometheus.Counter
}

// NewPrometheusCollector creates the collector's metrics and registers them
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(namespace string, reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Dictionary and edge operations by sort and outcome.",
		}, []string{"op", "sort", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of dictionary and edge operations.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"op"}),
		edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_written_total",
			Help:      "Edge instances written by UpdateEdges.",
		}, []string{"sort"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Commits by outcome.",
		}, []string{"outcome"}),
		committed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "committed_writes_total",
			Help:      "Buffered writes applied to the backend.",
		}),
	}
	for _, m := range []prometheus.Collector{c.ops, c.latency, c.edges, c.commits, c.committed} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func outcome(found bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case !found:
		return "miss"
	default:
		return "ok"
	}
}

func (c *PrometheusCollector) observe(op, sort string, found bool, d time.Duration, err error) {
	c.ops.WithLabelValues(op, sort, outcome(found, err)).Inc()
	c.latency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordIntern implements factdb.MetricsCollector.
func (c *PrometheusCollector) RecordIntern(sort string, d time.Duration, err error) {
	c.observe("intern", sort, true, d, err)
}

// RecordLookup implements factdb.MetricsCollector.
func (c *PrometheusCollector) RecordLookup(sort string, found bool, d time.Duration, err error) {
	c.observe("lookup", sort, found, d, err)
}

// RecordEdgeUpdate implements factdb.MetricsCollector.
func (c *PrometheusCollector) RecordEdgeUpdate(sort string, edges int, d time.Duration, err error) {
	c.observe("edge_update", sort, true, d, err)
	if err == nil {
		c.edges.WithLabelValues(sort).Add(float64(edges))
	}
}

// RecordEdgeFetch implements factdb.MetricsCollector.
func (c *PrometheusCollector) RecordEdgeFetch(sort string, found bool, d time.Duration, err error) {
	c.observe("edge_fetch", sort, found, d, err)
}

// RecordCommit implements factdb.MetricsCollector.
func (c *PrometheusCollector) RecordCommit(pending int, d time.Duration, err error) {
	c.commits.WithLabelValues(outcome(true, err)).Inc()
	c.latency.WithLabelValues("commit").Observe(d.Seconds())
	if err == nil {
		c.committed.Add(float64(pending))
	}
}
