package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics содержит метрики validate/process pipeline.
type PipelineMetrics struct {
	// Счётчики исходов по фазам
	validateOutcomes *prometheus.CounterVec
	processOutcomes  *prometheus.CounterVec

	// Гистограммы времени выполнения фаз
	phaseDuration *prometheus.HistogramVec

	// Счётчик low-stock алертов
	lowStockAlerts prometheus.Counter
}

// NewPipelineMetrics создаёт новый экземпляр метрик pipeline.
func NewPipelineMetrics() *PipelineMetrics {
	return newPipelineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newPipelineMetricsWithRegisterer(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PipelineMetrics{
		validateOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ofs_pipeline_validate_total",
			Help: "Total number of pipeline validate runs grouped by outcome",
		}, []string{"outcome"}),
		processOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ofs_pipeline_process_total",
			Help: "Total number of pipeline process runs grouped by outcome",
		}, []string{"outcome"}),
		phaseDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ofs_pipeline_phase_duration_seconds",
			Help:    "Duration of pipeline phases in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"phase"}),
		lowStockAlerts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ofs_low_stock_alerts_total",
			Help: "Total number of low stock alerts emitted by item handlers",
		}),
	}
}

// RecordValidateOutcome увеличивает счётчик исходов validate.
func (m *PipelineMetrics) RecordValidateOutcome(outcome string) {
	m.validateOutcomes.WithLabelValues(outcome).Inc()
}

// RecordProcessOutcome увеличивает счётчик исходов process.
func (m *PipelineMetrics) RecordProcessOutcome(outcome string) {
	m.processOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPhaseDuration записывает время выполнения фазы pipeline.
func (m *PipelineMetrics) RecordPhaseDuration(phase string, duration time.Duration) {
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordLowStockAlert увеличивает счётчик low-stock алертов.
func (m *PipelineMetrics) RecordLowStockAlert() {
	m.lowStockAlerts.Inc()
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}
