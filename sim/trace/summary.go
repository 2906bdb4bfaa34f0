package trace

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// AgentSummary aggregates the decisions of one agent.
type AgentSummary struct {
	Decisions   int     `json:"decisions"`
	Fallbacks   int     `json:"fallbacks"`
	MeanCost    float64 `json:"mean_cost"`
	MaxCost     float64 `json:"max_cost"`
	MeanSupport float64 `json:"mean_support"`
}

// TraceSummary aggregates statistics from a DecisionTrace.
type TraceSummary struct {
	TotalFits      int                      `json:"total_fits"`
	TotalDecisions int                      `json:"total_decisions"`
	FallbackCount  int                      `json:"fallback_count"`
	Agents         []string                 `json:"agents"` // sorted
	PerAgent       map[string]*AgentSummary `json:"per_agent"`
}

// Summarize computes aggregate statistics from a DecisionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(dt *DecisionTrace) *TraceSummary {
	summary := &TraceSummary{
		Agents:   make([]string, 0),
		PerAgent: make(map[string]*AgentSummary),
	}
	if dt == nil {
		return summary
	}

	summary.TotalFits = len(dt.Fits)
	summary.TotalDecisions = len(dt.Decisions)

	costs := make(map[string][]float64)
	support := make(map[string][]float64)
	for _, d := range dt.Decisions {
		s, ok := summary.PerAgent[d.Agent]
		if !ok {
			s = &AgentSummary{}
			summary.PerAgent[d.Agent] = s
			summary.Agents = append(summary.Agents, d.Agent)
		}
		s.Decisions++
		if d.Fallback {
			s.Fallbacks++
			summary.FallbackCount++
		}
		if d.Cost > s.MaxCost {
			s.MaxCost = d.Cost
		}
		costs[d.Agent] = append(costs[d.Agent], d.Cost)
		support[d.Agent] = append(support[d.Agent], float64(d.Support))
	}
	for name, s := range summary.PerAgent {
		s.MeanCost = stat.Mean(costs[name], nil)
		s.MeanSupport = stat.Mean(support[name], nil)
	}
	sort.Strings(summary.Agents)

	return summary
}
