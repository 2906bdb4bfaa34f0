package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inventory-sim/inventory-sim/sim"
)

var (
	modelDir     string
	decideAgent  string
	featureQuery []float64
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Load a saved agent and print the order decision for one feature vector",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		dec, err := decideOnce(filepath.Join(modelDir, decideAgent), featureQuery)
		if err != nil {
			logrus.Fatalf("Decide failed: %v", err)
		}
		if err := writeDecision(os.Stdout, decideAgent, dec); err != nil {
			logrus.Fatalf("Writing decision failed: %v", err)
		}
	},
}

// decisionOutput is the JSON printed by `decide`.
type decisionOutput struct {
	Agent    string    `json:"agent"`
	Raw      []float64 `json:"raw"`
	Quantity []float64 `json:"quantity"`
	Support  int       `json:"support"`
}

// decideOnce rebuilds the agent saved in dir and decides for x.
func decideOnce(dir string, x []float64) (sim.Decision, error) {
	cfg, err := sim.LoadAgentConfig(filepath.Join(dir, agentConfigFile))
	if err != nil {
		return sim.Decision{}, err
	}
	agent, err := sim.NewAgent(*cfg, sim.Observer{Logger: logrus.StandardLogger()})
	if err != nil {
		return sim.Decision{}, err
	}
	if err := agent.Load(dir); err != nil {
		return sim.Decision{}, err
	}
	dec, err := agent.Decide(x)
	if err != nil {
		return sim.Decision{}, fmt.Errorf("agent %s: %w", agent.Name(), err)
	}
	return dec, nil
}

func writeDecision(w io.Writer, agent string, dec sim.Decision) error {
	return writeJSON(w, decisionOutput{Agent: agent, Raw: dec.Raw, Quantity: dec.Quantity, Support: dec.Support})
}

func init() {
	decideCmd.Flags().StringVar(&modelDir, "model-dir", "", "Directory passed as --save-dir to run")
	decideCmd.Flags().StringVar(&decideAgent, "agent", "", "Agent name (sub-directory of --model-dir)")
	decideCmd.Flags().Float64SliceVar(&featureQuery, "features", nil, "Comma-separated feature vector")
	_ = decideCmd.MarkFlagRequired("model-dir")
	_ = decideCmd.MarkFlagRequired("agent")

	rootCmd.AddCommand(decideCmd)
}
