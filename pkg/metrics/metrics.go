package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Total number of queue messages handled, by outcome (count)",
		},
		[]string{"status"},
	)

	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_total",
			Help: "Total number of notification records handled, by outcome (count)",
		},
		[]string{"status"},
	)

	RecordFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_record_failures_total",
			Help: "Total number of failed records by error code and phase (count)",
		},
		[]string{"code", "phase"},
	)

	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_phase_duration_ms",
			Help:    "Duration of each ingestion phase in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"phase", "status"},
	)

	OutputRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_output_records_total",
			Help: "Total number of transformed records written, by transformer key (count)",
		},
		[]string{"transformer"},
	)

	OutputBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_output_object_bytes",
			Help:    "Size of written output objects in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
	)

	InputBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_input_object_bytes",
			Help:    "Size of fetched input objects in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
	)

	EmptyPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_empty_polls_total",
			Help: "Total number of receives that returned no messages (count)",
		},
	)

	MessageReceiveCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_message_receive_count",
			Help:    "Delivery attempt number of received messages (count)",
			Buckets: []float64{1, 2, 3, 5, 10, 25},
		},
	)

	LastSuccessTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_last_success_timestamp_seconds",
			Help: "Unix time of the last acknowledged message (seconds)",
		},
	)

	LedgerLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_ledger_lookups_total",
			Help: "Total number of ledger lookups, by result (count)",
		},
		[]string{"backend", "result"},
	)

	StorageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_storage_operations_total",
			Help: "Total number of object store operations (count)",
		},
		[]string{"backend", "operation", "status"},
	)

	StorageOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_storage_operation_duration_ms",
			Help:    "Duration of object store operations in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"backend", "operation"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"component", "operation"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failed requests through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of ops API requests checked by the rate limiter (count)",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// RegisterAll registers every collector with the default registry. Safe to
// call more than once.
func RegisterAll() {
	registerOnce.Do(func() {
		RegisterIngestMetrics()
		RegisterStorageMetrics()
		RegisterCircuitBreakerMetrics()
		RegisterHTTPMetrics()
	})
}

func RegisterIngestMetrics() {
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(RecordFailuresTotal)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(OutputRecordsTotal)
	prometheus.MustRegister(OutputBytes)
	prometheus.MustRegister(InputBytes)
	prometheus.MustRegister(EmptyPollsTotal)
	prometheus.MustRegister(MessageReceiveCount)
	prometheus.MustRegister(LastSuccessTimestamp)
	prometheus.MustRegister(RetryAttemptsTotal)
}

func RegisterStorageMetrics() {
	prometheus.MustRegister(LedgerLookupsTotal)
	prometheus.MustRegister(StorageOperationsTotal)
	prometheus.MustRegister(StorageOperationDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterHTTPMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObservePhase(phase, status string, duration time.Duration) {
	PhaseDuration.WithLabelValues(phase, status).Observe(float64(duration.Milliseconds()))
}

func IncMessage(status string) {
	MessagesTotal.WithLabelValues(status).Inc()
}

func IncRecord(status string) {
	RecordsTotal.WithLabelValues(status).Inc()
}

func IncRecordFailure(code, phase string) {
	RecordFailuresTotal.WithLabelValues(code, phase).Inc()
}

func AddOutputRecords(transformer string, n int) {
	OutputRecordsTotal.WithLabelValues(transformer).Add(float64(n))
}

func ObserveStorageOperation(backend, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	StorageOperationDuration.WithLabelValues(backend, operation).Observe(float64(duration.Milliseconds()))
}

func IncLedgerLookup(backend, result string) {
	LedgerLookupsTotal.WithLabelValues(backend, result).Inc()
}

func IncRetryAttempt(component, operation string) {
	RetryAttemptsTotal.WithLabelValues(component, operation).Inc()
}

func MarkSuccess(at time.Time) {
	LastSuccessTimestamp.Set(float64(at.Unix()))
}
