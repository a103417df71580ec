package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMustNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := MustNew(reg)
	b := MustNew(reg)

	a.IncDispatch(OutcomeOK)
	b.IncDispatch(OutcomeOK)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.dispatches.WithLabelValues(OutcomeOK)))
}

func TestMetrics_Counters(t *testing.T) {
	m := MustNew(prometheus.NewRegistry())

	m.IncRun("InvalidCredentialError")
	m.IncReconciliation("change", "ok")
	m.IncReconciliation("change", "ok")
	m.ObserveRelay("200", 150*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("InvalidCredentialError")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconciliations.WithLabelValues("change", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.relayDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncDispatch(OutcomeOK)
		m.IncRun(OutcomeOK)
		m.IncReconciliation("create", "ok")
		m.ObserveRelay("200", time.Second)
	})
}
