package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inventory-sim/inventory-sim/sim"
	"github.com/inventory-sim/inventory-sim/sim/dataset"
	"github.com/inventory-sim/inventory-sim/sim/evaluation"
	_ "github.com/inventory-sim/inventory-sim/sim/forest" // registers the rf and dt leaf models
	"github.com/inventory-sim/inventory-sim/sim/trace"
)

// agentConfigFile is written next to each saved model so `decide` can
// rebuild the agent.
const agentConfigFile = "agent.yaml"

var (
	// CLI flags for the experiment
	configPath   string    // Experiment YAML
	seed         int64     // Seed for synthetic data and forest random_state
	logLevel     string    // Log verbosity level
	dataPath     string    // Feature CSV
	targetsPath  string    // Demand CSV
	useSynthetic bool      // Generate the table instead of reading CSVs
	agentList    string    // Comma-separated weighter kinds
	underage     []float64 // Underage cost per SKU (or one shared)
	overage      []float64 // Overage cost per SKU (or one shared)
	testFraction float64   // Share of rows held out for evaluation
	saveDir      string    // Directory receiving one sub-directory per fitted agent
	metricsFile  string    // Prometheus text-format output
	traceLevel   string    // Decision trace level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "inventory-sim",
	Short: "Data-driven newsvendor decision agents",
}

// runCmd fits every agent on the train split and benchmarks it on the test split
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fit agents and report their newsvendor cost on held-out demand",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		cfg, err := experimentFromFlags(cmd)
		if err != nil {
			logrus.Fatalf("Invalid experiment: %v", err)
		}

		reg := prometheus.NewRegistry()
		obs := sim.Observer{Logger: logrus.StandardLogger(), Metrics: sim.NewDecisionMetrics(reg)}

		logrus.Infof("Starting experiment with %d agents, seed=%d, cu=%v, co=%v",
			len(cfg.Agents), cfg.Seed, cfg.Underage, cfg.Overage)

		report, err := runExperiment(cfg, obs, saveDir)
		if err != nil {
			logrus.Fatalf("Experiment failed: %v", err)
		}
		if err := writeJSON(os.Stdout, report); err != nil {
			logrus.Fatalf("Writing report failed: %v", err)
		}
		if metricsFile != "" {
			if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
				logrus.Fatalf("Writing metrics failed: %v", err)
			}
		}
		if best := report.Best(); best != nil {
			logrus.Infof("Experiment complete. Lowest mean cost: %s (%.4f)", best.Agent, best.MeanCost)
		}
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// experimentFromFlags loads --config (if any) and lets explicitly set flags
// override it. Without a file every flag applies.
func experimentFromFlags(cmd *cobra.Command) (*ExperimentConfig, error) {
	cfg := &ExperimentConfig{}
	fromFile := configPath != ""
	if fromFile {
		loaded, err := LoadExperimentConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	use := func(name string) bool { return !fromFile || cmd.Flags().Changed(name) }

	if use("seed") {
		cfg.Seed = seed
	}
	if use("cu") || cfg.Underage == nil {
		cfg.Underage = underage
	}
	if use("co") || cfg.Overage == nil {
		cfg.Overage = overage
	}
	if use("agents") || len(cfg.Agents) == 0 {
		agents, err := AgentsFromKinds(agentList)
		if err != nil {
			return nil, err
		}
		cfg.Agents = agents
	}
	if use("trace-level") {
		cfg.TraceLevel = traceLevel
	}
	if use("test-fraction") {
		cfg.Data.TestFraction = testFraction
	}
	switch {
	case useSynthetic:
		cfg.Data = DataConfig{
			TestFraction: cfg.Data.TestFraction,
			Synthetic:    &dataset.SyntheticConfig{Rows: 500, SKUs: max(len(cfg.Underage), len(cfg.Overage)), Features: 3},
		}
	case dataPath != "" || targetsPath != "":
		cfg.Data.X, cfg.Data.Y, cfg.Data.Synthetic = dataPath, targetsPath, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runExperiment fits each agent on the train split, optionally saves it under
// saveDir/<agent name>, and evaluates all agents on the test split.
func runExperiment(cfg *ExperimentConfig, obs sim.Observer, saveDir string) (*evaluation.Report, error) {
	data, err := cfg.loadData()
	if err != nil {
		return nil, fmt.Errorf("loading data: %w", err)
	}
	if data.LenTest() == 0 {
		return nil, fmt.Errorf("no test rows to evaluate on: %w", sim.ErrInvalidArgument)
	}
	ts, err := data.TrainingSet()
	if err != nil {
		return nil, fmt.Errorf("training set: %w", err)
	}
	logrus.Debugf("Split: %d train, %d val, %d test rows", data.LenTrain(), data.LenVal(), data.LenTest())

	tr := trace.NewDecisionTrace(trace.TraceConfig{Level: trace.TraceLevel(cfg.TraceLevel)})
	deciders := make([]evaluation.Decider, 0, len(cfg.Agents))
	for _, ac := range cfg.ResolvedAgents() {
		agent, err := sim.NewAgent(ac, obs)
		if err != nil {
			return nil, err
		}
		if err := agent.Fit(ts); err != nil {
			return nil, fmt.Errorf("fitting %s: %w", agent.Name(), err)
		}
		tr.RecordFit(trace.FitRecord{
			Agent:    agent.Name(),
			Weighter: string(agent.Kind()),
			Samples:  ts.N(),
			Features: ts.NumFeatures(),
		})
		if saveDir != "" {
			if err := saveAgent(agent, filepath.Join(saveDir, agent.Name())); err != nil {
				return nil, err
			}
		}
		deciders = append(deciders, agent)
	}

	testX, testY := data.Test()
	return evaluation.Evaluate(deciders, testX, testY, cfg.Underage, cfg.Overage, tr)
}

// saveAgent writes the fitted model and the agent config that rebuilds it.
func saveAgent(agent *sim.Agent, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := agent.Save(dir, true); err != nil {
		return err
	}
	data, err := yaml.Marshal(agent.Config())
	if err != nil {
		return fmt.Errorf("encoding agent config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, agentConfigFile), data, 0o644)
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&configPath, "config", "", "Path to experiment YAML")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for synthetic data and forest random_state")
	runCmd.Flags().StringVar(&dataPath, "data", "", "Feature CSV (one row per period)")
	runCmd.Flags().StringVar(&targetsPath, "targets", "", "Demand CSV (one column per SKU)")
	runCmd.Flags().BoolVar(&useSynthetic, "synthetic", false, "Generate a synthetic feature-dependent demand table")
	runCmd.Flags().StringVar(&agentList, "agents", "saa,rf", "Comma-separated weighters (saa, rf, dt)")
	runCmd.Flags().Float64SliceVar(&underage, "cu", []float64{1}, "Underage cost per SKU, or one shared value")
	runCmd.Flags().Float64SliceVar(&overage, "co", []float64{1}, "Overage cost per SKU, or one shared value")
	runCmd.Flags().Float64Var(&testFraction, "test-fraction", defaultTestFraction, "Share of rows held out when test_index_start is unset")
	runCmd.Flags().StringVar(&saveDir, "save-dir", "", "Save each fitted agent under <dir>/<agent name>")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Decision trace level (none, decisions)")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
