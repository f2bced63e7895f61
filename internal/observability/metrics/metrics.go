// Package metrics registers prometheus instrumentation for the settlement
// engine operations.
package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "rentledger_"

	resultSuccess = "success"
	resultError   = "error"
)

// Result labels exported for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

var (
	registerOnce sync.Once

	settlementCalculateTotal   *prometheus.CounterVec
	settlementCalculateLatency *prometheus.HistogramVec
	settlementWarnings         prometheus.Counter

	settlementFinalizeTotal   *prometheus.CounterVec
	settlementFinalizeLatency *prometheus.HistogramVec
	settlementVoidTotal       *prometheus.CounterVec
	settlementVoidLatency     *prometheus.HistogramVec

	meterExchangeTotal   *prometheus.CounterVec
	meterExchangeLatency *prometheus.HistogramVec

	ledgerEntriesTotal *prometheus.CounterVec

	settlementExportTotal   *prometheus.CounterVec
	settlementExportLatency *prometheus.HistogramVec
)

// Init registers all metrics and optional DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		settlementCalculateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_calculate_total",
				Help: "Total settlement calculations by result",
			},
			[]string{"result"},
		)
		settlementCalculateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_calculate_latency_seconds",
				Help:    "Settlement calculation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementWarnings = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_calculate_warnings_total",
				Help: "Total advisory warnings emitted by settlement calculations",
			},
		)

		settlementFinalizeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_finalize_total",
				Help: "Total settlement finalizations by result",
			},
			[]string{"result"},
		)
		settlementFinalizeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_finalize_latency_seconds",
				Help:    "Settlement finalization latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementVoidTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_void_total",
				Help: "Total settlement voids by result",
			},
			[]string{"result"},
		)
		settlementVoidLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_void_latency_seconds",
				Help:    "Settlement void latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		meterExchangeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "meter_exchange_total",
				Help: "Total meter exchanges by result",
			},
			[]string{"result"},
		)
		meterExchangeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "meter_exchange_latency_seconds",
				Help:    "Meter exchange latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		ledgerEntriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_entries_total",
				Help: "Total ledger rows posted by entry type",
			},
			[]string{"entry_type"},
		)

		settlementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_export_total",
				Help: "Total settlement exports by format and result",
			},
			[]string{"format", "result"},
		)
		settlementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_export_latency_seconds",
				Help:    "Settlement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			settlementCalculateTotal,
			settlementCalculateLatency,
			settlementWarnings,
			settlementFinalizeTotal,
			settlementFinalizeLatency,
			settlementVoidTotal,
			settlementVoidLatency,
			meterExchangeTotal,
			meterExchangeLatency,
			ledgerEntriesTotal,
			settlementExportTotal,
			settlementExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSettlementCalculate records a settlement calculation.
func ObserveSettlementCalculate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementCalculateTotal != nil {
		settlementCalculateTotal.WithLabelValues(result).Inc()
	}
	if settlementCalculateLatency != nil {
		settlementCalculateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddSettlementWarnings counts advisory warnings from a calculation.
func AddSettlementWarnings(count int) {
	if settlementWarnings != nil && count > 0 {
		settlementWarnings.Add(float64(count))
	}
}

// ObserveSettlementFinalize records a finalization attempt.
func ObserveSettlementFinalize(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementFinalizeTotal != nil {
		settlementFinalizeTotal.WithLabelValues(result).Inc()
	}
	if settlementFinalizeLatency != nil {
		settlementFinalizeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveSettlementVoid records a void attempt.
func ObserveSettlementVoid(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementVoidTotal != nil {
		settlementVoidTotal.WithLabelValues(result).Inc()
	}
	if settlementVoidLatency != nil {
		settlementVoidLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveMeterExchange records a meter exchange attempt.
func ObserveMeterExchange(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if meterExchangeTotal != nil {
		meterExchangeTotal.WithLabelValues(result).Inc()
	}
	if meterExchangeLatency != nil {
		meterExchangeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddLedgerEntries counts posted ledger rows by entry type.
func AddLedgerEntries(entryType string, count int) {
	if ledgerEntriesTotal != nil && count > 0 {
		ledgerEntriesTotal.WithLabelValues(entryType).Add(float64(count))
	}
}

// ObserveSettlementExport records a settlement export.
func ObserveSettlementExport(format, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementExportTotal != nil {
		settlementExportTotal.WithLabelValues(format, result).Inc()
	}
	if settlementExportLatency != nil {
		settlementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}
