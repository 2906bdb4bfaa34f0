package sim

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation name used for agent spans.
const TracerName = "github.com/inventory-sim/inventory-sim/sim"

// Observer is the observability sink handed to an Agent by its caller.
// Every field is optional: a nil Logger discards output, nil Metrics records
// nothing, and a nil Tracer is a no-op tracer. Nothing here touches
// process-wide state.
type Observer struct {
	Logger  logrus.FieldLogger
	Metrics *DecisionMetrics
	Tracer  trace.Tracer
}

func (o Observer) withDefaults() Observer {
	if o.Logger == nil {
		o.Logger = NewDiscardLogger()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer(TracerName)
	}
	return o
}

// NewDiscardLogger returns a logrus logger that writes nowhere.
func NewDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// DecisionMetrics holds the Prometheus collectors updated by agents.
type DecisionMetrics struct {
	Fits          *prometheus.CounterVec
	Decisions     *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	CacheHits     *prometheus.CounterVec
	WeightSupport *prometheus.HistogramVec
}

// NewDecisionMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewDecisionMetrics(reg prometheus.Registerer) *DecisionMetrics {
	factory := promauto.With(reg)
	return &DecisionMetrics{
		Fits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nv_agent_fits_total",
			Help: "Number of successful agent fits",
		}, []string{"agent", "weighter"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nv_decisions_total",
			Help: "Number of order-quantity decisions produced by fitted agents",
		}, []string{"agent", "weighter"}),
		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nv_unfitted_fallbacks_total",
			Help: "Number of zero decisions returned because the agent was not fitted",
		}, []string{"agent"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nv_decision_failures_total",
			Help: "Number of failed decisions by reason",
		}, []string{"agent", "reason"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nv_weight_cache_hits_total",
			Help: "Number of weight distributions served from the LRU cache",
		}, []string{"agent"}),
		WeightSupport: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nv_weight_support_size",
			Help:    "Number of positively weighted training samples per decision",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"agent"}),
	}
}

func (m *DecisionMetrics) fitted(agent string, kind WeighterKind) {
	if m == nil {
		return
	}
	m.Fits.WithLabelValues(agent, string(kind)).Inc()
}

func (m *DecisionMetrics) decided(agent string, kind WeighterKind, support int) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(agent, string(kind)).Inc()
	m.WeightSupport.WithLabelValues(agent).Observe(float64(support))
}

func (m *DecisionMetrics) fellBack(agent string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(agent).Inc()
}

func (m *DecisionMetrics) failed(agent, reason string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(agent, reason).Inc()
}

func (m *DecisionMetrics) cacheHit(agent string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(agent).Inc()
}
