package sim

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestObserver_RecordsFitAndDecisions(t *testing.T) {
	// GIVEN an agent wired to a registry, a recording tracer and a test logger
	reg := prometheus.NewRegistry()
	metrics := NewDecisionMetrics(reg)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	logger, hook := logtest.NewNullLogger()

	a, err := NewAgent(AgentConfig{
		Name:            "observed",
		Weighter:        WeighterRandomForest,
		Underage:        []float64{1},
		Overage:         []float64{1},
		Forest:          testForestConfig(WeightFunctionW1),
		WeightCacheSize: 4,
	}, Observer{Logger: logger, Metrics: metrics, Tracer: tp.Tracer(TracerName)})
	require.NoError(t, err)

	// WHEN predicting before fit, fitting, and predicting twice
	_, err = a.Predict([]float64{1})
	require.NoError(t, err)
	require.NoError(t, a.Fit(stepTrainingSet(t, 80, 10)))
	_, err = a.Predict([]float64{2})
	require.NoError(t, err)
	_, err = a.Predict([]float64{2})
	require.NoError(t, err)

	// THEN every event is counted
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Fallbacks.WithLabelValues("observed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Fits.WithLabelValues("observed", "rf")))
	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.Decisions.WithLabelValues("observed", "rf")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.CacheHits.WithLabelValues("observed")))

	// AND one span per operation was ended
	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"Agent.Predict", "Agent.Fit", "Agent.Predict", "Agent.Predict"}, names)

	// AND the fit was logged with the agent's fields
	var fitted *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "agent fitted" {
			fitted = e
		}
	}
	require.NotNil(t, fitted)
	assert.Equal(t, "observed", fitted.Data["agent"])
	assert.Equal(t, 80, fitted.Data["samples"])
}

func TestObserver_FailureSpanAndCounter(t *testing.T) {
	metrics := NewDecisionMetrics(prometheus.NewRegistry())
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	a, err := NewAgent(AgentConfig{
		Name:     "strict",
		Weighter: WeighterSAA,
		Underage: []float64{1},
		Overage:  []float64{1},
		Unfitted: UnfittedError,
	}, Observer{Metrics: metrics, Tracer: tp.Tracer(TracerName)})
	require.NoError(t, err)

	_, err = a.Predict(nil)
	require.ErrorIs(t, err, ErrModelNotFitted)

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Failures.WithLabelValues("strict", "not_fitted")))
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, otelcodes.Error, spans[0].Status().Code)
}

func TestObserver_DefaultsAreSilent(t *testing.T) {
	// A zero Observer must be usable: nil metrics, discard logger, no-op tracer.
	a := newTestAgent(t, AgentConfig{Weighter: WeighterSAA, Underage: []float64{1}, Overage: []float64{1}})
	ts, err := NewTrainingSetFromRows([][]float64{{0}}, [][]float64{{4}})
	require.NoError(t, err)
	require.NoError(t, a.Fit(ts))
	got, err := a.Predict(nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, got)
}
