package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inventory-sim/inventory-sim/sim"
	"github.com/inventory-sim/inventory-sim/sim/dataset"
)

var (
	genRows     int
	genSKUs     int
	genFeatures int
	genSeed     int64
	genOutX     string
	genOutY     string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a synthetic feature-dependent demand table as two CSV files",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg := dataset.SyntheticConfig{Rows: genRows, SKUs: genSKUs, Features: genFeatures}
		if err := generateTables(cfg, genSeed, genOutX, genOutY); err != nil {
			logrus.Fatalf("Generate failed: %v", err)
		}
		logrus.Infof("Wrote %d rows to %s and %s", genRows, genOutX, genOutY)
	},
}

func generateTables(cfg dataset.SyntheticConfig, seed int64, outX, outY string) error {
	x, y, err := dataset.GenerateSynthetic(cfg, sim.NewExperimentKey(seed))
	if err != nil {
		return err
	}
	_, nf := x.Dims()
	_, ns := y.Dims()
	if err := dataset.WriteMatrixCSV(outX, x, dataset.ColumnNames("x", nf)); err != nil {
		return err
	}
	return dataset.WriteMatrixCSV(outY, y, dataset.ColumnNames("sku", ns))
}

func init() {
	generateCmd.Flags().IntVar(&genRows, "rows", 500, "Number of periods")
	generateCmd.Flags().IntVar(&genSKUs, "skus", 1, "Number of demand columns")
	generateCmd.Flags().IntVar(&genFeatures, "features", 3, "Number of feature columns")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 42, "Seed for the table")
	generateCmd.Flags().StringVar(&genOutX, "out-x", "x.csv", "Feature CSV output path")
	generateCmd.Flags().StringVar(&genOutY, "out-y", "y.csv", "Demand CSV output path")

	rootCmd.AddCommand(generateCmd)
}
