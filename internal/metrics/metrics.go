package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики сервиса сигналов
// ============================================================
//
// Экспортируются на GET /metrics.
// - приём сигналов (webhook, ручные) и отчёты советника
// - латентность HTTP и расчёта статистики
// - состояние: суммарный pnl, число websocket клиентов

const namespace = "signalhub"

// ============ Сигналы ============

// SignalsReceived - принятые сигналы по источнику
var SignalsReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "received_total",
		Help:      "Total number of received signals",
	},
	[]string{"source", "action"}, // source: webhook, manual
)

// SignalsProcessed - отчёты советника об исполнении
var SignalsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "processed_total",
		Help:      "Total number of signals marked processed by the EA",
	},
	[]string{"result"}, // success, failed
)

// SignalsRejected - отклонённые webhook запросы
var SignalsRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "rejected_total",
		Help:      "Total number of rejected webhook requests",
	},
	[]string{"reason"}, // validation, signature, rate_limit
)

// ============ HTTP ============

// HTTPRequests - количество HTTP запросов
var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	},
	[]string{"method", "route", "status"},
)

// HTTPRequestDuration - время обработки HTTP запроса
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
	[]string{"method", "route"},
)

// ============ Статистика ============

// StatsComputeDuration - время расчёта снимка статистики
var StatsComputeDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "compute_duration_seconds",
		Help:      "Time to load signals and aggregate statistics",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	},
)

// StatsCacheLookups - обращения к кешу статистики
var StatsCacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "cache_lookups_total",
		Help:      "Stats cache lookups by result",
	},
	[]string{"result"}, // hit, miss, error
)

// TotalPnL - суммарный pnl по последнему снимку
var TotalPnL = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "total_pnl",
		Help:      "Total realized PnL from the latest stats snapshot",
	},
)

// UnprocessedSignals - сигналы, ожидающие советника
var UnprocessedSignals = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "unprocessed",
		Help:      "Number of signals not yet processed by the EA",
	},
)

// ============ WebSocket ============

// WSClients - подключённые websocket клиенты
var WSClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Current number of websocket clients",
	},
)

// WSDropped - сообщения, не доставленные медленным клиентам
var WSDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "dropped_messages_total",
		Help:      "Messages dropped because a client buffer was full",
	},
)

// ============ Фоновые задачи ============

// JobRuns - запуски cron задач
var JobRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Background job runs by result",
	},
	[]string{"job", "result"},
)

// ============ Вспомогательные функции ============

// RecordSignalReceived учитывает принятый сигнал
func RecordSignalReceived(source, action string) {
	SignalsReceived.WithLabelValues(source, action).Inc()
}

// RecordSignalProcessed учитывает отчёт советника
func RecordSignalProcessed(success bool) {
	result := "failed"
	if success {
		result = "success"
	}
	SignalsProcessed.WithLabelValues(result).Inc()
}

// RecordSignalRejected учитывает отклонённый webhook
func RecordSignalRejected(reason string) {
	SignalsRejected.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest записывает запрос и его длительность
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordStatsCompute записывает расчёт статистики
func RecordStatsCompute(d time.Duration, totalPnL float64) {
	StatsComputeDuration.Observe(d.Seconds())
	TotalPnL.Set(totalPnL)
}

// RecordCacheLookup учитывает обращение к кешу: hit, miss, error
func RecordCacheLookup(result string) {
	StatsCacheLookups.WithLabelValues(result).Inc()
}

// UpdateUnprocessed обновляет число необработанных сигналов
func UpdateUnprocessed(count int) {
	UnprocessedSignals.Set(float64(count))
}

// UpdateWSClients обновляет число websocket клиентов
func UpdateWSClients(count int) {
	WSClients.Set(float64(count))
}

// RecordWSDropped учитывает потерянное сообщение
func RecordWSDropped() {
	WSDropped.Inc()
}

// RecordJobRun учитывает запуск фоновой задачи
func RecordJobRun(job string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	JobRuns.WithLabelValues(job, result).Inc()
}
