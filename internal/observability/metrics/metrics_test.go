package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)

	m.IncAllocationRun("shares", "ok")
	m.IncAllocationRun("shares", "ok")
	m.IncAllocationRun("metered", "error")
	m.ObserveAllocationDuration(25 * time.Millisecond)
	m.IncInvoiceIssued()
	m.IncPaymentApplied("paid")
	m.IncPermissionDenial("expense.create")
	m.IncCollaboratorError("identity")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.allocationRuns.WithLabelValues("shares", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.allocationRuns.WithLabelValues("metered", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.invoicesIssued))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.paymentsApplied.WithLabelValues("paid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.permissionDenials.WithLabelValues("expense.create")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.collaboratorErrors.WithLabelValues("identity")))
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncAllocationRun("shares", "ok")
		m.IncInvoiceIssued()
		m.IncPaymentApplied("open")
		m.IncPermissionDenial("invoice.void")
		m.IncCollaboratorError("readings")
		m.ObserveAllocationDuration(time.Second)
	})
}
