package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/poi-ingest/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "poi-ingest",
	Short: "Load OpenStreetMap points of interest into a self-widening table",
	Long: `Queries an Overpass endpoint for every country and tag filter of the plan,
infers a flat column set from each response, widens the data table with any new
columns and inserts one row per element plus one GeoJSON row per batch.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
