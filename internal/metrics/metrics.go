// Package metrics holds Prometheus metrics of the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lavrd/tiktok-dl-tg/internal/types"
)

const namespace = "tiktok_dl_tg"

// Outcome of a single strategy attempt. Failure outcomes are failure reasons.
const OutcomeSuccess = "success"

// Metrics methods are safe to call on nil receiver, it makes metrics optional.
type Metrics struct {
	registry *prometheus.Registry

	Resolutions      *prometheus.CounterVec
	StrategyAttempts *prometheus.CounterVec
	ResolveDuration  prometheus.Histogram
	DownloadedBytes  *prometheus.CounterVec
	Commands         *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total number of link resolutions by result and last failure reason",
		}, []string{"result", "reason"}),
		StrategyAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_attempts_total",
			Help:      "Total number of extraction attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		ResolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Duration of link resolution",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		DownloadedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Total size of successfully resolved media by strategy",
		}, []string{"strategy"}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of handled bot commands",
		}, []string{"command"}),
	}
}

func (m *Metrics) ObserveAttempt(strategy types.Strategy, outcome string) {
	if m == nil {
		return
	}
	m.StrategyAttempts.WithLabelValues(string(strategy), outcome).Inc()
}

// ObserveResolution records final result. For failures lastReason is the most specific known reason.
func (m *Metrics) ObserveResolution(result types.DownloadResult, lastReason types.FailureReason, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(elapsed.Seconds())
	if result.OK() {
		m.Resolutions.WithLabelValues(OutcomeSuccess, "").Inc()
		m.DownloadedBytes.WithLabelValues(string(result.Strategy)).Add(float64(result.SizeBytes))
		return
	}
	m.Resolutions.WithLabelValues("failure", string(lastReason)).Inc()
}

func (m *Metrics) ObserveCommand(command string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
