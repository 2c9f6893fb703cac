package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/poi-ingest/internal/config"
	"github.com/sells-group/poi-ingest/internal/fetcher"
	"github.com/sells-group/poi-ingest/internal/ingest"
	"github.com/sells-group/poi-ingest/internal/overpass"
	"github.com/sells-group/poi-ingest/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch every planned batch and load it into the data table",
	Long: `Drops the data table, then runs each (country, filter) batch in order.

A batch whose fetch or decode fails is logged and skipped. A failed schema
change or insert statement stops the run. Use --strict to exit non-zero
when any batch was skipped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyIngestFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		plan, err := cfg.Plan()
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}

		client := newOverpassClient(cfg.Overpass)
		zap.L().Info("starting ingest",
			zap.String("endpoint", client.Endpoint()),
			zap.String("store", cfg.Store.Driver),
			zap.String("table", st.Table()),
			zap.Strings("countries", plan.Countries),
			zap.Int("filters", len(plan.Filters)),
		)

		return runIngest(ctx, ingest.NewEngine(client, st), st, plan, cfg.Ingest.Strict)
	},
}

func init() {
	ingestCmd.Flags().Bool("strict", false, "exit non-zero when any batch was skipped")
	ingestCmd.Flags().String("plan", "", "YAML plan file (overrides ingest.countries and ingest.filters)")
	ingestCmd.Flags().StringSlice("country", nil, "countries to query (repeatable)")
	ingestCmd.Flags().StringSlice("filter", nil, "key=value tag filters to query (repeatable)")
	rootCmd.AddCommand(ingestCmd)
}

// applyIngestFlags copies explicitly set flags over the loaded config.
func applyIngestFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("strict") {
		strict, err := flags.GetBool("strict")
		if err != nil {
			return eris.Wrap(err, "ingest: --strict")
		}
		c.Ingest.Strict = strict
	}
	if flags.Changed("plan") {
		path, err := flags.GetString("plan")
		if err != nil {
			return eris.Wrap(err, "ingest: --plan")
		}
		c.Ingest.PlanFile = path
	}
	if flags.Changed("country") {
		countries, err := flags.GetStringSlice("country")
		if err != nil {
			return eris.Wrap(err, "ingest: --country")
		}
		c.Ingest.Countries = countries
	}
	if flags.Changed("filter") {
		filters, err := flags.GetStringSlice("filter")
		if err != nil {
			return eris.Wrap(err, "ingest: --filter")
		}
		c.Ingest.Filters = filters
	}
	return nil
}

func newOverpassClient(oc config.OverpassConfig) *overpass.Client {
	return overpass.NewClient(newOverpassFetcher(oc), oc.URL, time.Duration(oc.TimeoutSecs)*time.Second)
}

// newOverpassFetcher builds the HTTP fetcher with the configured rate applied
// to the endpoint host, overriding the built-in limiter of public instances.
func newOverpassFetcher(oc config.OverpassConfig) *fetcher.HTTPFetcher {
	opts := fetcher.HTTPOptions{
		UserAgent:  oc.UserAgent,
		Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
		MaxRetries: oc.MaxRetries,
		Rate:       rate.Limit(oc.RatePerSec),
	}
	if oc.RatePerSec > 0 {
		endpoint := oc.URL
		if endpoint == "" {
			endpoint = overpass.DefaultEndpoint
		}
		opts.RateLimiters = map[string]*fetcher.AdaptiveLimiter{
			fetcher.HostOf(endpoint): fetcher.NewAdaptiveLimiter(opts.Rate, max(1, int(oc.RatePerSec))),
		}
	}
	return fetcher.NewHTTPFetcher(opts)
}

// runIngest runs the plan and always closes the store before returning.
func runIngest(ctx context.Context, eng *ingest.Engine, st store.Store, plan ingest.Plan, strict bool) error {
	defer func() {
		if err := st.Close(); err != nil {
			zap.L().Warn("close store failed", zap.Error(err))
			return
		}
		zap.L().Info("store closed")
	}()

	report, err := eng.Run(ctx, plan)
	if err != nil {
		return eris.Wrap(err, "ingest")
	}

	for _, b := range report.Batches {
		zap.L().Debug("batch outcome",
			zap.String("country", b.Spec.Place),
			zap.String("filter", b.Spec.Filter.String()),
			zap.String("status", string(b.Status)),
			zap.Int("columns_added", b.ColumnsAdded),
			zap.Int("rows_inserted", b.RowsInserted),
			zap.Int("rows_failed", b.RowsFailed),
		)
	}

	if strict && report.Skipped() > 0 {
		return eris.Errorf("ingest: %d of %d batches skipped", report.Skipped(), len(report.Batches))
	}
	return nil
}
