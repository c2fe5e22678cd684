package swap

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce   sync.Once
	sharedMetrics *swapMetrics
)

type swapMetrics struct {
	requests    *prometheus.CounterVec
	statuses    *prometheus.CounterVec
	failures    *prometheus.CounterVec
	payoutError *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	ticks       prometheus.Counter
}

func metrics() *swapMetrics {
	metricsOnce.Do(func() {
		m := &swapMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "resolver_swap_requests_total",
				Help: "Swap requests processed, by route and settlement mode.",
			}, []string{"from", "to", "mode"}),
			statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "resolver_order_transitions_total",
				Help: "Order status transitions.",
			}, []string{"status"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "resolver_order_failures_total",
				Help: "Failed orders by error kind.",
			}, []string{"kind"}),
			payoutError: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "resolver_payout_errors_total",
				Help: "Monitor settlement step errors, retried on the next tick.",
			}, []string{"network", "step"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "resolver_swap_request_seconds",
				Help:    "Time spent processing a swap request.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			}, []string{"mode"}),
			ticks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "resolver_monitor_ticks_total",
				Help: "Secret reveal monitor ticks.",
			}),
		}
		prometheus.MustRegister(m.requests, m.statuses, m.failures, m.payoutError, m.duration, m.ticks)
		sharedMetrics = m
	})
	return sharedMetrics
}
