package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every fit and every order decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Enabled reports whether records should be collected.
func (c TraceConfig) Enabled() bool {
	return c.Level == TraceLevelDecisions
}

// DecisionTrace collects fit and decision records during an experiment run.
type DecisionTrace struct {
	Config    TraceConfig
	Fits      []FitRecord
	Decisions []DecisionRecord
}

// NewDecisionTrace creates a DecisionTrace ready for recording.
func NewDecisionTrace(config TraceConfig) *DecisionTrace {
	return &DecisionTrace{
		Config:    config,
		Fits:      make([]FitRecord, 0),
		Decisions: make([]DecisionRecord, 0),
	}
}

// RecordFit appends a fit record. No-op when tracing is disabled.
func (dt *DecisionTrace) RecordFit(record FitRecord) {
	if dt == nil || !dt.Config.Enabled() {
		return
	}
	dt.Fits = append(dt.Fits, record)
}

// RecordDecision appends a decision record. No-op when tracing is disabled.
func (dt *DecisionTrace) RecordDecision(record DecisionRecord) {
	if dt == nil || !dt.Config.Enabled() {
		return
	}
	dt.Decisions = append(dt.Decisions, record)
}
