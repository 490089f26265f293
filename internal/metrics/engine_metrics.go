package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics содержит метрики транзакционного движка заказов.
type EngineMetrics struct {
	// Счётчики операций
	usersRegistered prometheus.Counter
	ordersCreated   prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersCollected prometheus.Counter
	soldOutRejects  prometheus.Counter
	qrValidations   *prometheus.CounterVec
	txConflicts     prometheus.Counter

	// Outbox
	outboxPublished prometheus.Counter
	outboxFailed    prometheus.Counter
	outboxBacklog   prometheus.Gauge
	outboxOldestAge prometheus.Gauge

	// HTTP
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

// NewEngineMetrics создаёт метрики в default-регистраторе.
func NewEngineMetrics() *EngineMetrics {
	return newEngineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newEngineMetricsWithRegisterer(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &EngineMetrics{
		usersRegistered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "prasadam_users_registered_total",
			Help: "Total number of users registered",
		}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "prasadam_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "prasadam_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		ordersCollected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "prasadam_orders_collected_total",
			Help: "Total number of orders collected via QR validation",
		}),
		soldOutRejects: registerCounter(registerer, prometheus.CounterOpts{
			Name: "prasadam_orders_sold_out_total",
			Help: "Total number of order attempts rejected because the offering was sold out",
		}),
		qrValidations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "prasadam_qr_validations_total",
			Help: "Total number of QR validations by result",
		}, []string{"result"}),
		txConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "prasadam_tx_conflicts_total",
			Help: "Total number of storage transactions aborted after retry exhaustion",
		}),
		outboxPublished: registerCounter(registerer, prometheus.CounterOpts{
			Name: "prasadam_outbox_published_total",
			Help: "Total number of outbox events published to the broker",
		}),
		outboxFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "prasadam_outbox_failed_total",
			Help: "Total number of outbox events that failed to publish",
		}),
		outboxBacklog: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "prasadam_outbox_backlog",
			Help: "Number of outbox events waiting to be published",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "prasadam_outbox_oldest_age_seconds",
			Help: "Age of the oldest pending outbox event in seconds",
		}),
		httpDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "prasadam_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),
		httpInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "prasadam_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		}),
	}
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

// RecordUserRegistered увеличивает счётчик регистраций.
func (m *EngineMetrics) RecordUserRegistered() {
	m.usersRegistered.Inc()
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *EngineMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *EngineMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordOrderCollected увеличивает счётчик выданных заказов.
func (m *EngineMetrics) RecordOrderCollected() {
	m.ordersCollected.Inc()
}

// RecordSoldOutReject увеличивает счётчик отказов из-за исчерпанного остатка.
func (m *EngineMetrics) RecordSoldOutReject() {
	m.soldOutRejects.Inc()
}

// RecordQRValidation увеличивает счётчик валидаций QR с меткой исхода.
func (m *EngineMetrics) RecordQRValidation(result string) {
	m.qrValidations.WithLabelValues(result).Inc()
}

// RecordTxConflict увеличивает счётчик транзакций, не пережавших повторы.
func (m *EngineMetrics) RecordTxConflict() {
	m.txConflicts.Inc()
}

// RecordOutboxPublished увеличивает счётчик опубликованных событий.
func (m *EngineMetrics) RecordOutboxPublished() {
	m.outboxPublished.Inc()
}

// RecordOutboxFailed увеличивает счётчик сбойных публикаций.
func (m *EngineMetrics) RecordOutboxFailed() {
	m.outboxFailed.Inc()
}

// SetOutboxBacklog обновляет размер backlog.
func (m *EngineMetrics) SetOutboxBacklog(count int) {
	m.outboxBacklog.Set(float64(count))
}

// SetOutboxOldestAge обновляет возраст самого старого события.
func (m *EngineMetrics) SetOutboxOldestAge(age time.Duration) {
	m.outboxOldestAge.Set(age.Seconds())
}

// RecordHTTPRequest записывает длительность обработанного HTTP-запроса.
func (m *EngineMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// HTTPInFlightStarted увеличивает число активных запросов.
func (m *EngineMetrics) HTTPInFlightStarted() {
	m.httpInFlight.Inc()
}

// HTTPInFlightFinished уменьшает число активных запросов.
func (m *EngineMetrics) HTTPInFlightFinished() {
	m.httpInFlight.Dec()
}
