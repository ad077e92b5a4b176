// Package metrics provides Prometheus metrics for the node and client
// session, following the teacher's bifrost Collector shape.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds Prometheus metrics for send_cmd/send_query and the
// peer link pool.
type Collector struct {
	cmdAcksTotal       *prometheus.CounterVec
	cmdAckLatency      prometheus.Histogram
	queryFanoutTotal   prometheus.Counter
	queryDiscardsTotal *prometheus.CounterVec
	pendingCmds        prometheus.Gauge
	pendingQueries     prometheus.Gauge
	linkPoolSize       prometheus.Gauge
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		cmdAcksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectionnet_cmd_acks_total",
				Help: "Outcomes of send_cmd, labelled by result",
			},
			[]string{"result"},
		),
		cmdAckLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sectionnet_cmd_ack_latency_seconds",
				Help:    "Time from send_cmd fan-out to outcome",
				Buckets: prometheus.DefBuckets,
			},
		),
		queryFanoutTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sectionnet_query_fanout_total",
				Help: "Total send_query fan-outs",
			},
		),
		queryDiscardsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sectionnet_query_discards_total",
				Help: "Discarded query responses, labelled by reason",
			},
			[]string{"reason"},
		),
		pendingCmds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sectionnet_pending_cmds",
				Help: "Current size of the pending_cmds table",
			},
		),
		pendingQueries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sectionnet_pending_queries",
				Help: "Current size of the pending_queries table",
			},
		),
		linkPoolSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sectionnet_link_pool_size",
				Help: "Current size of the peer link pool",
			},
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.cmdAcksTotal.Describe(ch)
	ch <- c.cmdAckLatency.Desc()
	ch <- c.queryFanoutTotal.Desc()
	c.queryDiscardsTotal.Describe(ch)
	ch <- c.pendingCmds.Desc()
	ch <- c.pendingQueries.Desc()
	ch <- c.linkPoolSize.Desc()
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.cmdAcksTotal.Collect(ch)
	ch <- c.cmdAckLatency
	ch <- c.queryFanoutTotal
	c.queryDiscardsTotal.Collect(ch)
	ch <- c.pendingCmds
	ch <- c.pendingQueries
	ch <- c.linkPoolSize
}

// RecordCmdOutcome records a send_cmd result ("ack", "error", "best_effort",
// "cancelled")
// and the latency from fan-out to outcome.
func (c *Collector) RecordCmdOutcome(result string, durationSeconds float64) {
	c.cmdAcksTotal.WithLabelValues(result).Inc()
	c.cmdAckLatency.Observe(durationSeconds)
}

// RecordQueryFanout records a single send_query fan-out.
func (c *Collector) RecordQueryFanout() {
	c.queryFanoutTotal.Inc()
}

// RecordQueryDiscard records a discarded query response, labelled by why
// it was discarded ("byzantine_mismatch" or "error").
func (c *Collector) RecordQueryDiscard(reason string) {
	c.queryDiscardsTotal.WithLabelValues(reason).Inc()
}

// SetPendingCmds reports the current pending_cmds table size.
func (c *Collector) SetPendingCmds(n int) {
	c.pendingCmds.Set(float64(n))
}

// SetPendingQueries reports the current pending_queries table size.
func (c *Collector) SetPendingQueries(n int) {
	c.pendingQueries.Set(float64(n))
}

// SetLinkPoolSize reports the current peer link pool size.
func (c *Collector) SetLinkPoolSize(n int) {
	c.linkPoolSize.Set(float64(n))
}
