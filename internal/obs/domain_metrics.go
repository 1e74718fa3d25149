package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SmartPayRequestTotal counts SmartPay operations by outcome.
	SmartPayRequestTotal *prometheus.CounterVec
	// SmartPayRequestDuration records end-to-end SmartPay call latency in milliseconds.
	SmartPayRequestDuration *prometheus.HistogramVec
	// NotificationTotal counts inbound SmartPay notifications by result.
	NotificationTotal *prometheus.CounterVec
	// NotificationTaskTotal counts worker-side notification task outcomes.
	NotificationTaskTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers the SmartPay collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SmartPayRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_total",
			Help:      "Count of SmartPay operations by outcome.",
		}, []string{"operation", "outcome"})
		SmartPayRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_ms",
			Help:      "SmartPay operation latency in milliseconds, including signing.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"operation"})
		NotificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_total",
			Help:      "Count of inbound SmartPay notifications by result.",
		}, []string{"result"})
		NotificationTaskTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_task_total",
			Help:      "Count of processed notification tasks by result.",
		}, []string{"result"})

		SmartPayRequestTotal = mustRegisterCollector(reg, SmartPayRequestTotal)
		SmartPayRequestDuration = mustRegisterCollector(reg, SmartPayRequestDuration)
		NotificationTotal = mustRegisterCollector(reg, NotificationTotal)
		NotificationTaskTotal = mustRegisterCollector(reg, NotificationTaskTotal)
	})
}

func mustRegisterCollector[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
	return collector
}
