package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "messledger"

// Ledger operation names used as label values.
const (
	OpCreateReceipt     = "create_receipt"
	OpVoidReceipt       = "void_receipt"
	OpCreateConsumption = "create_consumption"
	OpVoidConsumption   = "void_consumption"
	OpClosePeriod       = "close_period"
	OpReopenPeriod      = "reopen_period"
	OpComputeBalances   = "compute_balances"
)

// LedgerMetrics records ledger mutation outcomes. A nil *LedgerMetrics is a
// valid no-op recorder.
type LedgerMetrics struct {
	duration          *prometheus.HistogramVec
	outcomes          *prometheus.CounterVec
	lotsAllocated     prometheus.Counter
	insufficientStock prometheus.Counter
	tallyMismatches   prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of ledger operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Ledger operations by outcome.",
	}, []string{"operation", "outcome"})
	lotsAllocated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fifo_allocations_total",
		Help:      "Lot allocations written by the FIFO allocator.",
	})
	insufficientStock := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fifo_insufficient_stock_total",
		Help:      "Allocation requests rejected for insufficient stock.",
	})
	tallyMismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tally_mismatches_total",
		Help:      "Item balances whose tally check exceeded tolerance.",
	})
	reg.MustRegister(duration, outcomes, lotsAllocated, insufficientStock, tallyMismatches)
	return &LedgerMetrics{
		duration:          duration,
		outcomes:          outcomes,
		lotsAllocated:     lotsAllocated,
		insufficientStock: insufficientStock,
		tallyMismatches:   tallyMismatches,
	}
}

// Observe records the duration and outcome of an operation.
func (m *LedgerMetrics) Observe(operation string, started time.Time, err error) {
	if m == nil || m.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.outcomes.WithLabelValues(op, outcome).Inc()
}

// AddAllocations counts lots touched by an allocation.
func (m *LedgerMetrics) AddAllocations(n int) {
	if m == nil || m.lotsAllocated == nil || n <= 0 {
		return
	}
	m.lotsAllocated.Add(float64(n))
}

func (m *LedgerMetrics) IncInsufficientStock() {
	if m == nil || m.insufficientStock == nil {
		return
	}
	m.insufficientStock.Inc()
}

func (m *LedgerMetrics) IncTallyMismatch() {
	if m == nil || m.tallyMismatches == nil {
		return
	}
	m.tallyMismatches.Inc()
}

func normalizeLabel(op string) string {
	if op == "" {
		return "unknown"
	}
	return op
}
