// Package metrics exposes prometheus instruments for the billing core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics captures allocation, billing and policy health signals.
type Metrics struct {
	allocationRuns     *prometheus.CounterVec
	allocationDuration prometheus.Observer
	invoicesIssued     prometheus.Counter
	paymentsApplied    *prometheus.CounterVec
	permissionDenials  *prometheus.CounterVec
	collaboratorErrors *prometheus.CounterVec
}

// New registers the instruments on the provided registerer (the default
// registry when nil).
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		allocationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vhod_allocation_runs_total",
			Help: "Allocation engine runs by method and outcome.",
		}, []string{"method", "outcome"}),
		allocationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vhod_allocation_duration_seconds",
			Help:    "Wall time of allocation runs.",
			Buckets: prometheus.DefBuckets,
		}),
		invoicesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "vhod_invoices_issued_total",
			Help: "Invoices issued.",
		}),
		paymentsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vhod_payments_applied_total",
			Help: "Payments applied by resulting invoice status.",
		}, []string{"status"}),
		permissionDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vhod_permission_denials_total",
			Help: "Policy resolver denials by action.",
		}, []string{"action"}),
		collaboratorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vhod_collaborator_errors_total",
			Help: "Collaborator timeouts and failures by collaborator name.",
		}, []string{"collaborator"}),
	}
}

func (m *Metrics) IncAllocationRun(method, outcome string) {
	if m == nil {
		return
	}
	m.allocationRuns.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveAllocationDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.allocationDuration.Observe(d.Seconds())
}

func (m *Metrics) IncInvoiceIssued() {
	if m == nil {
		return
	}
	m.invoicesIssued.Inc()
}

func (m *Metrics) IncPaymentApplied(status string) {
	if m == nil {
		return
	}
	m.paymentsApplied.WithLabelValues(status).Inc()
}

func (m *Metrics) IncPermissionDenial(action string) {
	if m == nil {
		return
	}
	m.permissionDenials.WithLabelValues(action).Inc()
}

func (m *Metrics) IncCollaboratorError(collaborator string) {
	if m == nil {
		return
	}
	m.collaboratorErrors.WithLabelValues(collaborator).Inc()
}
