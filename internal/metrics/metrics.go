// Package metrics exposes Anna's Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatsFunc returns the flat statistics map served by the companion.
type StatsFunc func(ctx context.Context) (map[string]any, error)

var (
	vocabularyDesc = prometheus.NewDesc(
		"anna_vocabulary_words",
		"Words learned per language",
		[]string{"language"},
		nil,
	)
	memoriesDesc = prometheus.NewDesc(
		"anna_memories",
		"Memories stored",
		nil,
		nil,
	)
	autonomousDesc = prometheus.NewDesc(
		"anna_autonomous",
		"1 once the bootstrap phase handed over to the local model",
		nil,
		nil,
	)
)

// StatsCollector reads the statistics on each scrape and emits them as
// gauges.
type StatsCollector struct {
	stats StatsFunc
	log   zerolog.Logger
}

// Describe sends the metric descriptors to the channel.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- vocabularyDesc
	ch <- memoriesDesc
	ch <- autonomousDesc
}

// Collect queries the statistics and emits them.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stats, err := c.stats(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to collect stats metrics")
		return
	}
	for _, lang := range []string{"fr", "en"} {
		if v, ok := number(stats["bootstrap.vocabulary_"+lang+"_count"]); ok {
			ch <- prometheus.MustNewConstMetric(vocabularyDesc, prometheus.GaugeValue, v, lang)
		}
	}
	if v, ok := number(stats["memory.total_memories"]); ok {
		ch <- prometheus.MustNewConstMetric(memoriesDesc, prometheus.GaugeValue, v)
	}
	autonomous := 0.0
	if b, _ := stats["bootstrap.is_autonomous"].(bool); b {
		autonomous = 1
	}
	ch <- prometheus.MustNewConstMetric(autonomousDesc, prometheus.GaugeValue, autonomous)
}

// Metrics holds the collectors of one registry. A nil *Metrics records
// nothing.
type Metrics struct {
	registry      *prometheus.Registry
	replies       *prometheus.CounterVec
	replyErrors   prometheus.Counter
	replyDuration *prometheus.HistogramVec
}

// New creates a registry with the reply collectors and the Go runtime
// collectors. stats, when non-nil, feeds the vocabulary and memory gauges.
func New(stats StatsFunc, log zerolog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anna_replies_total",
			Help: "Replies produced, by backend",
		}, []string{"backend"}),
		replyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anna_reply_errors_total",
			Help: "Messages that could not be answered",
		}),
		replyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anna_reply_duration_seconds",
			Help:    "Time to produce a reply, by backend",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"backend"}),
	}
	m.registry.MustRegister(
		m.replies,
		m.replyErrors,
		m.replyDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if stats != nil {
		m.registry.MustRegister(&StatsCollector{stats: stats, log: log})
	}
	return m
}

// ObserveReply records a successful reply.
func (m *Metrics) ObserveReply(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(backend).Inc()
	m.replyDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// ObserveError records a failed reply.
func (m *Metrics) ObserveError() {
	if m == nil {
		return
	}
	m.replyErrors.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
