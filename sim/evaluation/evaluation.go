// Package evaluation benchmarks decision agents on a held-out split by their
// realized newsvendor (pinball) cost.
package evaluation

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/inventory-sim/inventory-sim/sim"
	"github.com/inventory-sim/inventory-sim/sim/trace"
)

// Decider produces order decisions. *sim.Agent satisfies it.
type Decider interface {
	Name() string
	Kind() sim.WeighterKind
	Decide(x []float64) (sim.Decision, error)
}

// PinballCost returns the per-SKU newsvendor cost
// cu*max(d-q, 0) + co*max(q-d, 0). Costs of length 1 apply to every SKU.
func PinballCost(quantity, demand, underage, overage []float64) ([]float64, error) {
	if len(quantity) != len(demand) {
		return nil, fmt.Errorf("pinball cost: %d quantities for %d demands: %w", len(quantity), len(demand), sim.ErrInvalidShape)
	}
	if err := checkCosts(underage, overage, len(demand)); err != nil {
		return nil, err
	}
	cost := make([]float64, len(demand))
	for k := range demand {
		cu, co := costAt(underage, k), costAt(overage, k)
		cost[k] = cu*math.Max(demand[k]-quantity[k], 0) + co*math.Max(quantity[k]-demand[k], 0)
	}
	return cost, nil
}

// AgentResult is one agent's cost on the evaluation split.
type AgentResult struct {
	Agent      string    `json:"agent"`
	Weighter   string    `json:"weighter"`
	Periods    int       `json:"periods"`
	TotalCost  float64   `json:"total_cost"`
	MeanCost   float64   `json:"mean_cost"` // per period, summed over SKUs
	CostPerSKU []float64 `json:"cost_per_sku"`
	Fallbacks  int       `json:"fallbacks"`
}

// Report is the outcome of one Evaluate call.
type Report struct {
	RunID     string              `json:"run_id"`
	StartedAt time.Time           `json:"started_at"`
	WallTime  string              `json:"wall_time"`
	Agents    []AgentResult       `json:"agents"`
	Summary   *trace.TraceSummary `json:"trace_summary,omitempty"`
}

// Best returns the agent with the lowest mean cost, or nil for an empty report.
func (r *Report) Best() *AgentResult {
	var best *AgentResult
	for i := range r.Agents {
		if best == nil || r.Agents[i].MeanCost < best.MeanCost {
			best = &r.Agents[i]
		}
	}
	return best
}

// Evaluate decides every row of x with each decider and charges the
// postprocessed order against the matching row of demand. Decisions are
// recorded into tr when it is non-nil and enabled.
func Evaluate(deciders []Decider, x, demand *mat.Dense, underage, overage []float64, tr *trace.DecisionTrace) (*Report, error) {
	if x == nil || demand == nil || x.IsEmpty() || demand.IsEmpty() {
		return nil, fmt.Errorf("evaluate: empty evaluation split: %w", sim.ErrInvalidShape)
	}
	rows, _ := x.Dims()
	dr, nSKU := demand.Dims()
	if rows != dr {
		return nil, fmt.Errorf("evaluate: X has %d rows, demand has %d: %w", rows, dr, sim.ErrInvalidShape)
	}
	if err := checkCosts(underage, overage, nSKU); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{RunID: uuid.NewString(), StartedAt: start}
	for _, d := range deciders {
		res := AgentResult{Agent: d.Name(), Weighter: string(d.Kind()), Periods: rows, CostPerSKU: make([]float64, nSKU)}
		periodCost := make([]float64, rows)
		for i := 0; i < rows; i++ {
			dec, err := d.Decide(mat.Row(nil, i, x))
			if err != nil {
				return nil, fmt.Errorf("evaluate %s: row %d: %w", d.Name(), i, err)
			}
			dem := mat.Row(nil, i, demand)
			cost, err := PinballCost(dec.Quantity, dem, underage, overage)
			if err != nil {
				return nil, fmt.Errorf("evaluate %s: row %d: %w", d.Name(), i, err)
			}
			floats.Add(res.CostPerSKU, cost)
			periodCost[i] = floats.Sum(cost)
			if dec.Fallback {
				res.Fallbacks++
			}
			tr.RecordDecision(trace.DecisionRecord{
				Agent:    d.Name(),
				Period:   i,
				Quantity: dec.Quantity,
				Demand:   dem,
				Cost:     periodCost[i],
				Support:  dec.Support,
				Fallback: dec.Fallback,
			})
		}
		res.TotalCost = floats.Sum(periodCost)
		res.MeanCost = stat.Mean(periodCost, nil)
		report.Agents = append(report.Agents, res)
	}
	report.WallTime = time.Since(start).String()
	if tr != nil && tr.Config.Enabled() {
		report.Summary = trace.Summarize(tr)
	}
	return report, nil
}

func checkCosts(underage, overage []float64, n int) error {
	for _, c := range [][]float64{underage, overage} {
		if len(c) != 1 && len(c) != n {
			return fmt.Errorf("%d costs for %d SKUs: %w", len(c), n, sim.ErrInvalidShape)
		}
	}
	return nil
}

func costAt(c []float64, k int) float64 {
	if len(c) == 1 {
		return c[0]
	}
	return c[k]
}
