package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics содержит метрики переходов, массовых операций и синхронизации.
// Все методы безопасны для nil-получателя.
type FulfillmentMetrics struct {
	transitions *prometheus.CounterVec

	batchItems    *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec

	liveIntents        *prometheus.GaugeVec
	reconciliations    *prometheus.CounterVec
	snapshotIngestions *prometheus.CounterVec
	membershipChanges  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewFulfillmentMetrics регистрирует метрики в DefaultRegisterer.
func NewFulfillmentMetrics() *FulfillmentMetrics {
	return NewFulfillmentMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewFulfillmentMetricsWithRegisterer регистрирует метрики в заданном реестре.
func NewFulfillmentMetricsWithRegisterer(registerer prometheus.Registerer) *FulfillmentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &FulfillmentMetrics{
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_order_transitions_total",
			Help: "Order status transitions grouped by source, target and result.",
		}, []string{"from", "to", "result"}),
		batchItems: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_bulk_items_total",
			Help: "Bulk batch items grouped by action and result.",
		}, []string{"action", "result"}),
		batchDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_bulk_batch_duration_seconds",
			Help:    "Duration of bulk batches in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"action", "status"}),
		liveIntents: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "fulfillment_optimistic_live_intents",
			Help: "Number of unreconciled optimistic intents per membership set.",
		}, []string{"set"}),
		reconciliations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_optimistic_reconciliations_total",
			Help: "Intents resolved by reconciliation grouped by set and result.",
		}, []string{"set", "result"}),
		snapshotIngestions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_snapshot_ingestions_total",
			Help: "Membership snapshots ingested grouped by set, source and result.",
		}, []string{"set", "source", "result"}),
		membershipChanges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_membership_changes_total",
			Help: "Server side cart and wishlist changes grouped by set, operation and result.",
		}, []string{"set", "op", "result"}),
		httpRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_http_requests_total",
			Help: "HTTP requests grouped by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_timeline_events_total",
			Help: "Total number of timeline events recorded.",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_outbox_events_total",
			Help: "Total number of outbox events enqueued.",
		}),
	}
}

// RecordTransition учитывает попытку перехода статуса.
func (m *FulfillmentMetrics) RecordTransition(from, to, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, result).Inc()
}

// ObserveBatchItem учитывает результат элемента батча.
func (m *FulfillmentMetrics) ObserveBatchItem(action, result string) {
	if m == nil {
		return
	}
	m.batchItems.WithLabelValues(action, result).Inc()
}

// ObserveBatch записывает длительность завершённого батча.
func (m *FulfillmentMetrics) ObserveBatch(action, status string, seconds float64) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues(action, status).Observe(seconds)
}

// ObserveIntents выставляет число живых намерений набора.
func (m *FulfillmentMetrics) ObserveIntents(set string, live int) {
	if m == nil {
		return
	}
	m.liveIntents.WithLabelValues(set).Set(float64(live))
}

// ObserveReconciliation учитывает согласованные, просроченные и откатанные намерения.
func (m *FulfillmentMetrics) ObserveReconciliation(set, result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reconciliations.WithLabelValues(set, result).Add(float64(count))
}

// RecordSnapshotIngest учитывает приём снимка из опроса или push.
func (m *FulfillmentMetrics) RecordSnapshotIngest(set, source string, stale bool) {
	if m == nil {
		return
	}
	result := "applied"
	if stale {
		result = "stale"
	}
	m.snapshotIngestions.WithLabelValues(set, source, result).Inc()
}

// RecordMembershipChange учитывает изменение корзины или избранного на сервере.
func (m *FulfillmentMetrics) RecordMembershipChange(set, op, result string) {
	if m == nil {
		return
	}
	m.membershipChanges.WithLabelValues(set, op, result).Inc()
}

// RecordHTTPRequest учитывает обработанный HTTP запрос.
func (m *FulfillmentMetrics) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *FulfillmentMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *FulfillmentMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
