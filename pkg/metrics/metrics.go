package metrics

import (
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus collectors for dispatch and reconciliation activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	dispatches      *prometheus.CounterVec
	relayDuration   *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
}

// MustNew constructs a Metrics instance registered with reg. Collectors already
// registered under the same name are reused, so tests and multiple services can
// share one registry.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minirpa",
			Subsystem: "orchestrator",
			Name:      "dispatches_total",
			Help:      "Dispatch requests handled, by outcome kind.",
		}, []string{"outcome"}),
		relayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "minirpa",
			Subsystem: "orchestrator",
			Name:      "relay_duration_seconds",
			Help:      "Duration of the call to the agent's /run endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minirpa",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Run requests handled, by outcome kind.",
		}, []string{"outcome"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minirpa",
			Subsystem: "agent",
			Name:      "reconciliations_total",
			Help:      "Scheduled-task reconciliations, by path taken and result.",
		}, []string{"path", "result"}),
	}
	m.dispatches = register(reg, m.dispatches)
	m.relayDuration = register(reg, m.relayDuration)
	m.runs = register(reg, m.runs)
	m.reconciliations = register(reg, m.reconciliations)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Outcome labels used with IncDispatch and IncRun.
const OutcomeOK = "ok"

// IncDispatch counts one dispatch with the given outcome ("ok" or an error kind).
func (m *Metrics) IncDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}

// ObserveRelay records the duration of one agent call.
func (m *Metrics) ObserveRelay(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.relayDuration.WithLabelValues(status).Observe(d.Seconds())
}

// IncRun counts one /run request with the given outcome.
func (m *Metrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// IncReconciliation counts one reconciliation attempt.
func (m *Metrics) IncReconciliation(path, result string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(path, result).Inc()
}

// Handler serves the registry on a hertz route.
func Handler(g prometheus.Gatherer) app.HandlerFunc {
	return adaptor.HertzHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
