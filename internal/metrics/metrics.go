// Package metrics holds the Prometheus collectors for the billing core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const namespace = "utilbill"

// Outcome labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

type Metrics struct {
	billsGenerated       *prometheus.CounterVec
	paymentsApplied      prometheus.Counter
	paymentsAmount       prometheus.Counter
	paymentsRejected     *prometheus.CounterVec
	paymentsRefunded     prometheus.Counter
	billsMarkedOverdue   prometheus.Counter
	lateFeesApplied      prometheus.Counter
	sweepDuration        prometheus.Histogram
	jobRuns              *prometheus.CounterVec
	eventPublishFailures *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		billsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_generated_total",
			Help:      "Bill generation attempts by result.",
		}, []string{"result"}),
		paymentsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_applied_total",
			Help:      "Payments recorded against bills.",
		}),
		paymentsAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_amount_total",
			Help:      "Sum of applied payment amounts.",
		}),
		paymentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_rejected_total",
			Help:      "Payments rejected by reason.",
		}, []string{"reason"}),
		paymentsRefunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_refunded_total",
			Help:      "Payments reversed by refund.",
		}),
		billsMarkedOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_marked_overdue_total",
			Help:      "Bills moved to OVERDUE by the sweep.",
		}),
		lateFeesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_fees_applied_total",
			Help:      "Late fee applications that changed a bill.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "overdue_sweep_duration_seconds",
			Help:      "Wall time of one overdue sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by job and result.",
		}, []string{"job", "result"}),
		eventPublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Billing events that could not be published.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.billsGenerated,
		m.paymentsApplied,
		m.paymentsAmount,
		m.paymentsRejected,
		m.paymentsRefunded,
		m.billsMarkedOverdue,
		m.lateFeesApplied,
		m.sweepDuration,
		m.jobRuns,
		m.eventPublishFailures,
	)
	return m
}

func (m *Metrics) BillGenerated(result string) {
	if m == nil {
		return
	}
	m.billsGenerated.WithLabelValues(result).Inc()
}

func (m *Metrics) PaymentApplied(amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.paymentsApplied.Inc()
	m.paymentsAmount.Add(amount.InexactFloat64())
}

func (m *Metrics) PaymentRejected(reason string) {
	if m == nil {
		return
	}
	m.paymentsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) PaymentRefunded() {
	if m == nil {
		return
	}
	m.paymentsRefunded.Inc()
}

func (m *Metrics) BillsMarkedOverdue(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.billsMarkedOverdue.Add(float64(n))
}

func (m *Metrics) LateFeeApplied() {
	if m == nil {
		return
	}
	m.lateFeesApplied.Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) JobRun(job, result string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}

func (m *Metrics) EventPublishFailed(eventType string) {
	if m == nil {
		return
	}
	m.eventPublishFailures.WithLabelValues(eventType).Inc()
}
