// Package metrics exposes Prometheus instrumentation for the session
// manager. Metrics register lazily on first use so tests that never touch
// them stay registry-clean.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions prometheus.Gauge
	loginsTotal    *prometheus.CounterVec
	evictionsTotal prometheus.Counter

	chatTurnsTotal   *prometheus.CounterVec
	chatTurnDuration prometheus.Histogram

	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "wisma_active_sessions",
					Help: "Current active session count.",
				},
			),
			loginsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wisma_logins_total",
					Help: "Total login attempts by status.",
				},
				[]string{"status"},
			),
			evictionsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "wisma_evictions_total",
					Help: "Total sessions evicted for idleness.",
				},
			),
			chatTurnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wisma_chat_turns_total",
					Help: "Total chat turns by status.",
				},
				[]string{"status"},
			),
			chatTurnDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "wisma_chat_turn_duration_seconds",
					Help:    "Chat turn duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			toolCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wisma_tool_calls_total",
					Help: "Total tool calls by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "wisma_tool_call_duration_seconds",
					Help:    "Tool call duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.loginsTotal,
			m.evictionsTotal,
			m.chatTurnsTotal,
			m.chatTurnDuration,
			m.toolCallsTotal,
			m.toolCallDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordLogin(success bool) {
	getMetrics().loginsTotal.WithLabelValues(statusLabel(success)).Inc()
}

func RecordEviction() {
	getMetrics().evictionsTotal.Inc()
}

func RecordChatTurn(duration time.Duration, success bool) {
	m := getMetrics()
	m.chatTurnsTotal.WithLabelValues(statusLabel(success)).Inc()
	m.chatTurnDuration.Observe(duration.Seconds())
}

func RecordToolCall(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolCallsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
