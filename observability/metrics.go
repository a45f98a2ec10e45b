package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording HTTP
// activity per module and route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lend",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LendingMetrics tracks ledger activity: transitions, emitted events and the
// pool level gauges refreshed after each commit.
type LendingMetrics struct {
	transitions  *prometheus.CounterVec
	events       *prometheus.CounterVec
	liquidity    prometheus.Gauge
	protocolFees prometheus.Gauge
	loans        prometheus.Gauge
	blockHeight  prometheus.Gauge
}

// Lending returns the singleton lending metrics registry.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "ledger",
				Name:      "transitions_total",
				Help:      "Count of ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Count of committed ledger events segmented by type.",
			}, []string{"type"}),
			liquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lend",
				Subsystem: "ledger",
				Name:      "total_liquidity",
				Help:      "Principal currently lent out across active loans (base units, lossy).",
			}),
			protocolFees: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lend",
				Subsystem: "ledger",
				Name:      "protocol_fees",
				Help:      "Protocol fees held by the module (base units, lossy).",
			}),
			loans: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lend",
				Subsystem: "ledger",
				Name:      "loans_total",
				Help:      "Number of loans ever created.",
			}),
			blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lend",
				Subsystem: "ledger",
				Name:      "block_height",
				Help:      "Block height observed by the last committed transaction.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.transitions,
			lendingRegistry.events,
			lendingRegistry.liquidity,
			lendingRegistry.protocolFees,
			lendingRegistry.loans,
			lendingRegistry.blockHeight,
		)
	})
	return lendingRegistry
}

// RecordTransition counts one ledger operation. errKind is empty on success
// and otherwise a stable error label.
func (m *LendingMetrics) RecordTransition(operation, errKind string) {
	if m == nil {
		return
	}
	outcome := "success"
	if errKind = strings.TrimSpace(errKind); errKind != "" {
		outcome = errKind
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// RecordEvent counts one committed event.
func (m *LendingMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

// SetPool refreshes the pool level gauges.
func (m *LendingMetrics) SetPool(liquidity, protocolFees float64, loans, height uint64) {
	if m == nil {
		return
	}
	m.liquidity.Set(liquidity)
	m.protocolFees.Set(protocolFees)
	m.loans.Set(float64(loans))
	m.blockHeight.Set(float64(height))
}
