package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink turns events into counters and histograms.
type PrometheusSink struct {
	events    *prometheus.CounterVec
	failures  *prometheus.CounterVec
	cacheHits prometheus.Counter
	latency   *prometheus.HistogramVec
	lines     prometheus.Histogram
	toolCalls prometheus.Histogram
	gatherer  prometheus.Gatherer
}

// NewPrometheusSink registers the analysis metrics on a fresh registry.
func NewPrometheusSink() *PrometheusSink {
	reg := prometheus.NewRegistry()
	return newPrometheusSink(reg, reg)
}

func newPrometheusSink(reg prometheus.Registerer, gatherer prometheus.Gatherer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_analysis_events_total",
			Help: "Lifecycle events by type",
		}, []string{"event"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_analysis_failures_total",
			Help: "Failed analyses by reason code",
		}, []string{"code"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "iris_result_cache_hits_total",
			Help: "Analyses answered from the result cache",
		}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iris_analysis_duration_seconds",
			Help:    "End-to-end analysis latency",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"path"}),
		lines: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "iris_source_lines",
			Help:    "Line count of analyzed sources",
			Buckets: prometheus.ExponentialBuckets(8, 2, 10),
		}),
		toolCalls: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "iris_tool_calls",
			Help:    "Source reads per adaptive run",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
		gatherer: gatherer,
	}
}

func (p *PrometheusSink) Emit(_ context.Context, ev Event) {
	p.events.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case EventRequested:
		p.lines.Observe(float64(ev.Lines))
	case EventCompleted:
		path := string(ev.Path)
		if ev.CacheHit {
			p.cacheHits.Inc()
			path = "cache"
		}
		p.latency.WithLabelValues(path).Observe(ev.Latency.Seconds())
		if ev.ToolCalls > 0 {
			p.toolCalls.Observe(float64(ev.ToolCalls))
		}
	case EventFailed:
		p.failures.WithLabelValues(string(ev.Code)).Inc()
		p.latency.WithLabelValues("failed").Observe(ev.Latency.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
