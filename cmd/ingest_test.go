package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/poi-ingest/internal/config"
	"github.com/sells-group/poi-ingest/internal/ingest"
	"github.com/sells-group/poi-ingest/internal/model"
	"github.com/sells-group/poi-ingest/internal/overpass"
	"github.com/sells-group/poi-ingest/internal/store"
)

// stubSource fails every fetch whose query names a country in down.
type stubSource struct {
	down map[string]bool
}

func (s stubSource) BuildQuery(place, key, value string) string { return place }

func (s stubSource) Fetch(_ context.Context, query string) ([]byte, error) {
	if s.down[query] {
		return nil, errors.New("http 504")
	}
	return []byte(query), nil
}

func (s stubSource) Decode(_ []byte, ann model.Annotations) (model.Batch, error) {
	return model.Batch{Annotations: ann}, nil
}

// closeTracker records whether the store was closed.
type closeTracker struct {
	store.Store
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return c.Store.Close()
}

func newTrackedStore(t *testing.T) *closeTracker {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "data.sqlite"), "")
	require.NoError(t, err)
	return &closeTracker{Store: st}
}

func testPlan(countries ...string) ingest.Plan {
	return ingest.Plan{
		Countries: countries,
		Filters:   []ingest.Filter{{Key: "amenity", Value: "hospital"}},
	}
}

func TestRunIngest_SkippedBatchIsNotAnError(t *testing.T) {
	st := newTrackedStore(t)
	src := stubSource{down: map[string]bool{"Nigeria": true}}

	err := runIngest(context.Background(), ingest.NewEngine(src, st), st, testPlan("Nigeria", "Ghana"), false)
	require.NoError(t, err)
	assert.True(t, st.closed)
}

func TestRunIngest_StrictFailsOnSkippedBatch(t *testing.T) {
	st := newTrackedStore(t)
	src := stubSource{down: map[string]bool{"Nigeria": true}}

	err := runIngest(context.Background(), ingest.NewEngine(src, st), st, testPlan("Nigeria", "Ghana"), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 batches skipped")
	assert.True(t, st.closed)
}

func TestRunIngest_StrictAllDone(t *testing.T) {
	st := newTrackedStore(t)

	err := runIngest(context.Background(), ingest.NewEngine(stubSource{}, st), st, testPlan("Ghana"), true)
	require.NoError(t, err)
}

func TestRunIngest_FatalClosesStore(t *testing.T) {
	st := newTrackedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runIngest(ctx, ingest.NewEngine(stubSource{}, st), st, testPlan("Ghana"), false)
	require.Error(t, err)
	assert.True(t, st.closed)
}

func TestOpenStore(t *testing.T) {
	st, err := openStore(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "x.sqlite"),
		Table:       "pois",
	})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.Equal(t, "pois", st.Table())

	_, err = openStore(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver: mysql")
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Bool("strict", false, "")
	cmd.Flags().String("plan", "", "")
	cmd.Flags().StringSlice("country", nil, "")
	cmd.Flags().StringSlice("filter", nil, "")
	return cmd
}

func TestApplyIngestFlags(t *testing.T) {
	cmd := newFlagCommand()
	require.NoError(t, cmd.Flags().Parse([]string{
		"--strict", "--country", "Togo", "--country", "Benin", "--filter", "amenity=clinic",
	}))

	c := &config.Config{Ingest: config.IngestConfig{
		Countries: []string{"Ghana"},
		Filters:   []string{"amenity=hospital"},
		PlanFile:  "keep.yaml",
	}}
	require.NoError(t, applyIngestFlags(cmd, c))

	assert.True(t, c.Ingest.Strict)
	assert.Equal(t, []string{"Togo", "Benin"}, c.Ingest.Countries)
	assert.Equal(t, []string{"amenity=clinic"}, c.Ingest.Filters)
	assert.Equal(t, "keep.yaml", c.Ingest.PlanFile)
}

func TestApplyIngestFlags_UnsetKeepsConfig(t *testing.T) {
	cmd := newFlagCommand()
	require.NoError(t, cmd.Flags().Parse(nil))

	c := &config.Config{Ingest: config.IngestConfig{Countries: []string{"Ghana"}, Strict: true}}
	require.NoError(t, applyIngestFlags(cmd, c))

	assert.True(t, c.Ingest.Strict)
	assert.Equal(t, []string{"Ghana"}, c.Ingest.Countries)
}

func TestPrintPlan(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	p := ingest.Plan{
		Countries: []string{"Ghana", "Nigeria"},
		Filters: []ingest.Filter{
			{Key: "amenity", Value: "hospital"},
			{Key: "amenity", Value: "hospital"},
		},
	}
	require.NoError(t, printPlan(cmd, p, 60))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Ghana\tamenity=hospital\t[out:json][timeout:'60'];"))
	assert.Contains(t, lines[1], `area["name"="Nigeria"]`)
}

func TestNewOverpassClient(t *testing.T) {
	c := newOverpassClient(config.OverpassConfig{TimeoutSecs: 25, MaxRetries: 1, RatePerSec: 1})
	assert.Equal(t, "http://overpass-api.de/api/interpreter", c.Endpoint())
	assert.Contains(t, c.BuildQuery("Ghana", "amenity", "school"), "[timeout:'25']")
}

func TestApplyIngestFlags_WrongFlagType(t *testing.T) {
	cmd := &cobra.Command{Use: "ingest"}
	cmd.Flags().Bool("strict", false, "")
	cmd.Flags().Int("plan", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--plan", "3"}))

	err := applyIngestFlags(cmd, &config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: --plan")
}

func TestApplyIngestFlags_WrongCountryType(t *testing.T) {
	cmd := &cobra.Command{Use: "ingest"}
	cmd.Flags().Bool("strict", false, "")
	cmd.Flags().String("country", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--country", "Ghana"}))

	c := &config.Config{Ingest: config.IngestConfig{Countries: []string{"Togo"}}}
	err := applyIngestFlags(cmd, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: --country")
	assert.Equal(t, []string{"Togo"}, c.Ingest.Countries)
}

func TestNewOverpassFetcher_ConfiguredRateReachesEndpoint(t *testing.T) {
	f := newOverpassFetcher(config.OverpassConfig{TimeoutSecs: 60, RatePerSec: 5})
	assert.Equal(t, rate.Limit(5), f.Limit(overpass.DefaultEndpoint))

	f = newOverpassFetcher(config.OverpassConfig{
		URL:         "http://localhost:12345/api/interpreter",
		TimeoutSecs: 60,
		RatePerSec:  2.5,
	})
	assert.Equal(t, rate.Limit(2.5), f.Limit("http://localhost:12345/api/interpreter"))
	// Public instances not in use keep their built-in limit.
	assert.Equal(t, rate.Limit(1), f.Limit(overpass.DefaultEndpoint))
}
