package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics содержит метрики consumer жизненного цикла заказов.
type LifecycleMetrics struct {
	// Счётчик входящих событий по результату обработки
	eventsConsumed *prometheus.CounterVec

	// Счётчик пропущенных дубликатов
	duplicatesSkipped prometheus.Counter

	// Гистограмма полного времени обработки события
	handleDuration prometheus.Histogram

	// Gauge активных обработок
	inFlight prometheus.Gauge
}

// NewLifecycleMetrics создаёт новый экземпляр метрик consumer.
func NewLifecycleMetrics() *LifecycleMetrics {
	return newLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		eventsConsumed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ofs_lifecycle_events_total",
			Help: "Total number of consumed order lifecycle events grouped by result",
		}, []string{"result"}),
		duplicatesSkipped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ofs_lifecycle_duplicates_total",
			Help: "Total number of duplicate event deliveries skipped by the dedup ledger",
		}),
		handleDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ofs_lifecycle_handle_duration_seconds",
			Help:    "Duration of full event handling in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ofs_lifecycle_in_flight",
			Help: "Number of events currently being handled",
		}),
	}
}

// RecordEvent увеличивает счётчик событий по результату обработки.
func (m *LifecycleMetrics) RecordEvent(result string) {
	m.eventsConsumed.WithLabelValues(result).Inc()
}

// RecordDuplicate увеличивает счётчик пропущенных дубликатов.
func (m *LifecycleMetrics) RecordDuplicate() {
	m.duplicatesSkipped.Inc()
}

// RecordHandleDuration записывает полное время обработки события.
func (m *LifecycleMetrics) RecordHandleDuration(duration time.Duration) {
	m.handleDuration.Observe(duration.Seconds())
}

// RecordInFlightStarted увеличивает количество активных обработок.
func (m *LifecycleMetrics) RecordInFlightStarted() {
	m.inFlight.Inc()
}

// RecordInFlightFinished уменьшает количество активных обработок.
func (m *LifecycleMetrics) RecordInFlightFinished() {
	m.inFlight.Dec()
}
