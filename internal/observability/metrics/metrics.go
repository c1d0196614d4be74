// Package metrics exposes posting loop counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postbot/internal/posting"
)

const namespace = "postbot"

// Collector owns a private registry so tests can create as many as they like.
type Collector struct {
	reg *prometheus.Registry

	ticks    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	cursor   prometheus.Gauge
	nextRun  prometheus.Gauge
	messages prometheus.Gauge
}

var _ posting.Metrics = (*Collector)(nil)

func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Posting loop ticks by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_attempts_total",
			Help:      "Posting API calls by result.",
		}, []string{"result"}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cursor",
			Help:      "Last persisted cursor value.",
		}),
		nextRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "next_run_timestamp_seconds",
			Help:      "Unix time of the next scheduled tick.",
		}),
		messages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "messages",
			Help:      "Number of loaded messages.",
		}),
	}
	c.reg.MustRegister(
		c.ticks, c.attempts, c.cursor, c.nextRun, c.messages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Tick(outcome posting.Outcome) { c.ticks.WithLabelValues(string(outcome)).Inc() }
func (c *Collector) Attempt(result string)        { c.attempts.WithLabelValues(result).Inc() }
func (c *Collector) Cursor(v uint64)              { c.cursor.Set(float64(v)) }
func (c *Collector) NextRun(t time.Time)          { c.nextRun.Set(float64(t.Unix())) }
func (c *Collector) Messages(n int)               { c.messages.Set(float64(n)) }

// Handler serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }
