package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type protocolMetrics struct {
	loansCreated   *prometheus.CounterVec
	loansRepaid    *prometheus.CounterVec
	loansClosed    *prometheus.CounterVec
	liquidations   *prometheus.CounterVec
	deposits       *prometheus.CounterVec
	withdrawals    *prometheus.CounterVec
	poolTotal      *prometheus.GaugeVec
	poolAvailable  *prometheus.GaugeVec
	poolAnnualRate *prometheus.GaugeVec
	rpcDuration    *prometheus.HistogramVec
}

var (
	protocolOnce     sync.Once
	protocolRegistry *protocolMetrics
)

// Protocol returns the process-wide metrics registry for lending activity.
func Protocol() *protocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &protocolMetrics{
			loansCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "laina",
				Subsystem: "loans",
				Name:      "created_total",
				Help:      "Count of loans opened, segmented by borrow pool.",
			}, []string{"pool"}),
			loansRepaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "laina",
				Subsystem: "loans",
				Name:      "repaid_total",
				Help:      "Count of partial repayments, segmented by borrow pool.",
			}, []string{"pool"}),
			loansClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "laina",
				Subsystem: "loans",
				Name:      "closed_total",
				Help:      "Count of loans settled in full, segmented by borrow pool.",
			}, []string{"pool"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "laina",
				Subsystem: "loans",
				Name:      "liquidations_total",
				Help:      "Count of liquidation executions, segmented by borrow pool.",
			}, []string{"pool"}),
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "laina",
				Subsystem: "pool",
				Name:      "deposits_total",
				Help:      "Count of lender deposits, segmented by pool.",
			}, []string{"pool"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "laina",
				Subsystem: "pool",
				Name:      "withdrawals_total",
				Help:      "Count of lender withdrawals, segmented by pool.",
			}, []string{"pool"}),
			poolTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "laina",
				Subsystem: "pool",
				Name:      "total_balance",
				Help:      "Pool total balance in token base units.",
			}, []string{"pool"}),
			poolAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "laina",
				Subsystem: "pool",
				Name:      "available_balance",
				Help:      "Pool available (not lent out) balance in token base units.",
			}, []string{"pool"}),
			poolAnnualRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "laina",
				Subsystem: "pool",
				Name:      "annual_interest_rate",
				Help:      "Current annual interest rate in 7-decimal fixed point.",
			}, []string{"pool"}),
			rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "laina",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC request latency, segmented by method.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			protocolRegistry.loansCreated,
			protocolRegistry.loansRepaid,
			protocolRegistry.loansClosed,
			protocolRegistry.liquidations,
			protocolRegistry.deposits,
			protocolRegistry.withdrawals,
			protocolRegistry.poolTotal,
			protocolRegistry.poolAvailable,
			protocolRegistry.poolAnnualRate,
			protocolRegistry.rpcDuration,
		)
	})
	return protocolRegistry
}

func normalizePool(pool string) string {
	normalized := strings.TrimSpace(strings.ToLower(pool))
	if normalized == "" {
		normalized = "unknown"
	}
	return normalized
}

// RecordLoanCreated increments the loan creation counter for the borrow pool.
func (m *protocolMetrics) RecordLoanCreated(pool string) {
	if m == nil {
		return
	}
	m.loansCreated.WithLabelValues(normalizePool(pool)).Inc()
}

// RecordLoanRepaid increments the repayment counter for the borrow pool.
func (m *protocolMetrics) RecordLoanRepaid(pool string) {
	if m == nil {
		return
	}
	m.loansRepaid.WithLabelValues(normalizePool(pool)).Inc()
}

// RecordLoanClosed increments the full-settlement counter for the borrow pool.
func (m *protocolMetrics) RecordLoanClosed(pool string) {
	if m == nil {
		return
	}
	m.loansClosed.WithLabelValues(normalizePool(pool)).Inc()
}

// RecordLiquidation increments the liquidation counter for the borrow pool.
func (m *protocolMetrics) RecordLiquidation(pool string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(normalizePool(pool)).Inc()
}

// RecordDeposit increments the deposit counter for the pool.
func (m *protocolMetrics) RecordDeposit(pool string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(normalizePool(pool)).Inc()
}

// RecordWithdrawal increments the withdrawal counter for the pool.
func (m *protocolMetrics) RecordWithdrawal(pool string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(normalizePool(pool)).Inc()
}

// SetPoolBalances publishes the pool's balance gauges. Values outside the
// float64 range lose precision, which is acceptable for dashboards.
func (m *protocolMetrics) SetPoolBalances(pool string, total, available float64) {
	if m == nil {
		return
	}
	label := normalizePool(pool)
	m.poolTotal.WithLabelValues(label).Set(total)
	m.poolAvailable.WithLabelValues(label).Set(available)
}

// SetPoolAnnualRate publishes the pool's current annual rate gauge.
func (m *protocolMetrics) SetPoolAnnualRate(pool string, rate float64) {
	if m == nil {
		return
	}
	m.poolAnnualRate.WithLabelValues(normalizePool(pool)).Set(rate)
}

// ObserveRPCDuration records the latency of one JSON-RPC request.
func (m *protocolMetrics) ObserveRPCDuration(method string, seconds float64) {
	if m == nil {
		return
	}
	if strings.TrimSpace(method) == "" {
		method = "unknown"
	}
	m.rpcDuration.WithLabelValues(method).Observe(seconds)
}
