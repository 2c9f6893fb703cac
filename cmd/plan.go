package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/poi-ingest/internal/ingest"
	"github.com/sells-group/poi-ingest/internal/overpass"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the queries an ingest run would send",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applyIngestFlags(cmd, cfg); err != nil {
			return err
		}
		plan, err := cfg.Plan()
		if err != nil {
			return err
		}
		return printPlan(cmd, plan, cfg.Overpass.TimeoutSecs)
	},
}

func init() {
	planCmd.Flags().String("plan", "", "YAML plan file (overrides ingest.countries and ingest.filters)")
	planCmd.Flags().StringSlice("country", nil, "countries to query (repeatable)")
	planCmd.Flags().StringSlice("filter", nil, "key=value tag filters to query (repeatable)")
	rootCmd.AddCommand(planCmd)
}

func printPlan(cmd *cobra.Command, plan ingest.Plan, timeoutSecs int) error {
	out := cmd.OutOrStdout()
	for _, spec := range plan.Batches() {
		q := overpass.BuildQuery(timeoutSecs, spec.Place, spec.Filter.Key, spec.Filter.Value)
		if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", spec.Place, spec.Filter, q); err != nil {
			return err
		}
	}
	return nil
}
