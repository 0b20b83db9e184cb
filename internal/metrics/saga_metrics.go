package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики оркестрации саг.
type SagaMetrics struct {
	// Счётчики жизненного цикла, с разбивкой по типу саги
	sagaStarted   *prometheus.CounterVec
	sagaCompleted *prometheus.CounterVec
	sagaFailed    *prometheus.CounterVec

	// Длительность саги от старта до терминального состояния
	sagaDuration *prometheus.HistogramVec

	// События, проигнорированные guard'ом текущего состояния
	eventsIgnored *prometheus.CounterVec
	// Проигранные optimistic-lock гонки (доставка вернётся из шины)
	versionConflicts *prometheus.CounterVec

	// Ошибки компенсаций: компенсация не блокирует сагу, но расхождение
	// должно быть видно оператору
	compensationErrors *prometheus.CounterVec

	// Эффекты, положенные в outbox
	outboxEffects prometheus.Counter
}

// NewSagaMetrics создаёт метрики саг на DefaultRegisterer.
func NewSagaMetrics() *SagaMetrics {
	return newSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		sagaStarted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_started_total",
			Help: "Total number of sagas started",
		}, []string{"saga_type"}),
		sagaCompleted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_completed_total",
			Help: "Total number of sagas reaching Completed",
		}, []string{"saga_type"}),
		sagaFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_failed_total",
			Help: "Total number of sagas reaching Failed",
		}, []string{"saga_type"}),
		sagaDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_saga_duration_seconds",
			Help:    "Duration from saga start to a terminal state",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"saga_type"}),
		eventsIgnored: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_events_ignored_total",
			Help: "Outcome events dropped by the current-state guard (duplicates)",
		}, []string{"saga_type"}),
		versionConflicts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_version_conflicts_total",
			Help: "Optimistic lock conflicts on saga state saves",
		}, []string{"saga_type"}),
		compensationErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_compensation_errors_total",
			Help: "Compensation steps that errored internally while still emitting completion",
		}, []string{"step"}),
		outboxEffects: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_saga_outbox_effects_total",
			Help: "Total number of saga effects enqueued to the outbox",
		}),
	}
}

// RecordSagaStarted фиксирует запуск саги.
func (m *SagaMetrics) RecordSagaStarted(sagaType string) {
	if m == nil {
		return
	}
	m.sagaStarted.WithLabelValues(sagaType).Inc()
}

// RecordSagaCompleted фиксирует успешное завершение.
func (m *SagaMetrics) RecordSagaCompleted(sagaType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sagaCompleted.WithLabelValues(sagaType).Inc()
	m.sagaDuration.WithLabelValues(sagaType).Observe(duration.Seconds())
}

// RecordSagaFailed фиксирует терминальный неуспех.
func (m *SagaMetrics) RecordSagaFailed(sagaType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sagaFailed.WithLabelValues(sagaType).Inc()
	m.sagaDuration.WithLabelValues(sagaType).Observe(duration.Seconds())
}

// RecordEventIgnored фиксирует событие, отброшенное guard'ом состояния.
func (m *SagaMetrics) RecordEventIgnored(sagaType string) {
	if m == nil {
		return
	}
	m.eventsIgnored.WithLabelValues(sagaType).Inc()
}

// RecordVersionConflict фиксирует проигранную optimistic-lock гонку.
func (m *SagaMetrics) RecordVersionConflict(sagaType string) {
	if m == nil {
		return
	}
	m.versionConflicts.WithLabelValues(sagaType).Inc()
}

// RecordCompensationError фиксирует внутреннюю ошибку компенсирующего шага.
func (m *SagaMetrics) RecordCompensationError(step string) {
	if m == nil {
		return
	}
	m.compensationErrors.WithLabelValues(step).Inc()
}

// RecordOutboxEffect фиксирует эффект, положенный в outbox.
func (m *SagaMetrics) RecordOutboxEffect() {
	if m == nil {
		return
	}
	m.outboxEffects.Inc()
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
