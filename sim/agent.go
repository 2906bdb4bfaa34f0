package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"
)

// UnfittedPolicy decides what Predict does before the agent is fitted.
type UnfittedPolicy string

const (
	// UnfittedZero returns a zero decision of length len(service level).
	UnfittedZero UnfittedPolicy = "zero"
	// UnfittedError returns ErrModelNotFitted.
	UnfittedError UnfittedPolicy = "error"
)

// Decision is the outcome of one Decide call.
type Decision struct {
	Raw      []float64 // weighted quantiles, one per output
	Quantity []float64 // Raw after the postprocessors
	Support  int       // positively weighted training samples behind Raw
	Fallback bool      // true when Raw is the unfitted zero decision
}

// Agent is a newsvendor decision agent: it fits a sample weighter on
// historical (X, Y) and orders the weighted empirical quantile of Y at the
// critical ratio.
//
// State machine: Unfitted → Fitted via Fit or Load. Fit always starts by
// dropping the previous state, so a failed Fit leaves the agent Unfitted.
//
// An Agent has a single owner. Predict on a fitted agent only reads agent
// state (plus the optional LRU, which is itself safe for concurrent use).
type Agent struct {
	cfg      AgentConfig
	name     string
	sl       ServiceLevel
	weighter SampleWeighter
	post     []Postprocessor
	obs      Observer
	cache    *lru.Cache[string, WeightDistribution]

	fitted    bool
	y         *mat.Dense
	levels    []float64 // sl resolved to n_outputs
	nFeatures int
	nTrain    int
	quantiles []float64 // unconditional decision, saa only
}

// NewAgent validates cfg and builds an unfitted agent.
func NewAgent(cfg AgentConfig, obs Observer) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Unfitted == "" {
		cfg.Unfitted = UnfittedZero
	}
	if cfg.Name == "" {
		cfg.Name = string(cfg.Weighter)
	}
	sl, err := NewServiceLevel(cfg.Underage, cfg.Overage)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Name, err)
	}
	weighter, err := NewSampleWeighter(cfg.Weighter, cfg.Forest)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Name, err)
	}
	post, err := NewPostprocessors(cfg.Postprocess)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Name, err)
	}
	a := &Agent{
		cfg:      cfg,
		name:     cfg.Name,
		sl:       sl,
		weighter: weighter,
		post:     post,
		obs:      obs.withDefaults(),
	}
	if cfg.WeightCacheSize > 0 && cfg.Weighter != WeighterSAA {
		cache, err := lru.New[string, WeightDistribution](cfg.WeightCacheSize)
		if err != nil {
			return nil, fmt.Errorf("agent %s: weight cache: %w", cfg.Name, err)
		}
		a.cache = cache
	}
	return a, nil
}

// Name returns the agent's name (defaults to the weighter kind).
func (a *Agent) Name() string { return a.name }

// Kind returns the weighter kind.
func (a *Agent) Kind() WeighterKind { return a.weighter.Kind() }

// ServiceLevel returns the critical ratio derived from the configured costs.
func (a *Agent) ServiceLevel() ServiceLevel { return a.sl }

// Fitted reports whether the agent is in the Fitted state.
func (a *Agent) Fitted() bool { return a.fitted }

// Weighter returns the sample weighter.
func (a *Agent) Weighter() SampleWeighter { return a.weighter }

// Config returns the agent configuration with defaults applied.
func (a *Agent) Config() AgentConfig { return a.cfg }

func (a *Agent) logger() logrus.FieldLogger {
	return a.obs.Logger.WithFields(logrus.Fields{"agent": a.name, "weighter": a.Kind()})
}

func (a *Agent) reset() {
	a.fitted = false
	a.y = nil
	a.levels = nil
	a.nFeatures = 0
	a.nTrain = 0
	a.quantiles = nil
	if a.cache != nil {
		a.cache.Purge()
	}
}

// Fit trains the agent on ts, replacing any earlier fit.
func (a *Agent) Fit(ts *TrainingSet) (err error) {
	_, span := a.obs.Tracer.Start(context.Background(), "Agent.Fit", trace.WithAttributes(
		attribute.String("agent", a.name),
		attribute.String("weighter", string(a.Kind())),
	))
	defer func() { endSpan(span, err) }()

	a.reset()
	if ts == nil {
		return fmt.Errorf("agent %s: nil training set: %w", a.name, ErrInvalidShape)
	}
	span.SetAttributes(attribute.Int("samples", ts.N()), attribute.Int("features", ts.NumFeatures()))

	levels, err := a.sl.Resolve(ts.NumOutputs())
	if err != nil {
		return fmt.Errorf("agent %s: %w", a.name, err)
	}
	if err := a.weighter.Fit(ts); err != nil {
		return fmt.Errorf("agent %s: %w", a.name, err)
	}
	if a.Kind() == WeighterSAA {
		d, err := a.weighter.ComputeWeights(nil)
		if err != nil {
			return fmt.Errorf("agent %s: %w", a.name, err)
		}
		q, err := SolveWeightedQuantiles(d.Weights, d.Indices, levels, ts.Y())
		if err != nil {
			return fmt.Errorf("agent %s: %w", a.name, err)
		}
		a.quantiles = q
	}

	a.y = ts.Y()
	a.levels = levels
	a.nFeatures = ts.NumFeatures()
	a.nTrain = ts.N()
	a.fitted = true
	a.obs.Metrics.fitted(a.name, a.Kind())
	a.logger().WithFields(logrus.Fields{
		"samples":  ts.N(),
		"features": ts.NumFeatures(),
		"outputs":  ts.NumOutputs(),
	}).Info("agent fitted")
	return nil
}

// Predict returns the order quantity for one feature vector, one entry per
// output. Before Fit it returns zeros of length len(ServiceLevel()) or
// ErrModelNotFitted, depending on the unfitted policy.
func (a *Agent) Predict(x []float64) ([]float64, error) {
	d, err := a.decide(x)
	if err != nil {
		return nil, err
	}
	return d.Raw, nil
}

// DrawAction is Predict followed by the configured postprocessors.
func (a *Agent) DrawAction(x []float64) ([]float64, error) {
	d, err := a.Decide(x)
	if err != nil {
		return nil, err
	}
	return d.Quantity, nil
}

// Decide returns both the raw and postprocessed decision for x.
func (a *Agent) Decide(x []float64) (Decision, error) {
	d, err := a.decide(x)
	if err != nil {
		return Decision{}, err
	}
	q := d.Raw
	for _, p := range a.post {
		if q, err = p.Apply(q); err != nil {
			a.obs.Metrics.failed(a.name, failureReason(err))
			return Decision{}, fmt.Errorf("agent %s: postprocess: %w", a.name, err)
		}
	}
	d.Quantity = q
	return d, nil
}

// PredictBatch applies Predict to every row of x.
func (a *Agent) PredictBatch(x mat.Matrix) (*mat.Dense, error) {
	if isEmpty(x) {
		return nil, fmt.Errorf("agent %s: empty feature matrix: %w", a.name, ErrInvalidShape)
	}
	rows, _ := x.Dims()
	var out *mat.Dense
	for i := 0; i < rows; i++ {
		q, err := a.Predict(mat.Row(nil, i, x))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if out == nil {
			out = mat.NewDense(rows, len(q), nil)
		}
		out.SetRow(i, q)
	}
	return out, nil
}

func (a *Agent) decide(x []float64) (d Decision, err error) {
	_, span := a.obs.Tracer.Start(context.Background(), "Agent.Predict", trace.WithAttributes(
		attribute.String("agent", a.name),
	))
	defer func() { endSpan(span, err) }()

	if !a.fitted {
		if a.cfg.Unfitted == UnfittedError {
			a.obs.Metrics.failed(a.name, failureReason(ErrModelNotFitted))
			return Decision{}, fmt.Errorf("agent %s: %w", a.name, ErrModelNotFitted)
		}
		a.obs.Metrics.fellBack(a.name)
		a.logger().Debug("agent not fitted, returning zero decision")
		span.SetAttributes(attribute.Bool("fallback", true))
		return Decision{Raw: make([]float64, len(a.sl)), Fallback: true}, nil
	}

	if a.Kind() == WeighterSAA {
		a.obs.Metrics.decided(a.name, a.Kind(), a.nTrain)
		return Decision{Raw: append([]float64(nil), a.quantiles...), Support: a.nTrain}, nil
	}

	w, err := a.weights(x)
	if err != nil {
		a.obs.Metrics.failed(a.name, failureReason(err))
		return Decision{}, fmt.Errorf("agent %s: %w", a.name, err)
	}
	q, err := SolveWeightedQuantiles(w.Weights, w.Indices, a.levels, a.y)
	if err != nil {
		a.obs.Metrics.failed(a.name, failureReason(err))
		return Decision{}, fmt.Errorf("agent %s: %w", a.name, err)
	}
	span.SetAttributes(attribute.Int("support", w.Len()))
	a.obs.Metrics.decided(a.name, a.Kind(), w.Len())
	return Decision{Raw: q, Support: w.Len()}, nil
}

// weights consults the LRU before the weighter. Cached distributions are
// shared between callers and never mutated.
func (a *Agent) weights(x []float64) (WeightDistribution, error) {
	if a.cache == nil {
		return a.weighter.ComputeWeights(x)
	}
	key := featureKey(x)
	if d, ok := a.cache.Get(key); ok {
		a.obs.Metrics.cacheHit(a.name)
		return d, nil
	}
	d, err := a.weighter.ComputeWeights(x)
	if err != nil {
		return WeightDistribution{}, err
	}
	a.cache.Add(key, d)
	return d, nil
}

// featureKey encodes the exact bit pattern of x. 0.0 and -0.0 map to
// different keys; they route identically, so that only costs a cache miss.
func featureKey(x []float64) string {
	b := make([]byte, 8*len(x))
	for i, v := range x {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return string(b)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrModelNotFitted):
		return "not_fitted"
	case errors.Is(err, ErrQuantileNotFound):
		return "quantile_not_found"
	case errors.Is(err, ErrInvalidShape):
		return "invalid_shape"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "other"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
