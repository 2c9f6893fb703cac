package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/poi-ingest/internal/ingest"
)

// Config holds the full application configuration.
type Config struct {
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// OverpassConfig configures the Overpass interpreter endpoint.
type OverpassConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// IngestConfig configures the query plan of a run.
type IngestConfig struct {
	Countries []string `yaml:"countries" mapstructure:"countries"`
	// Filters are "key=value" pairs, e.g. "amenity=hospital".
	Filters  []string `yaml:"filters" mapstructure:"filters"`
	PlanFile string   `yaml:"plan_file" mapstructure:"plan_file"`
	// Strict makes skipped batches fail the process.
	Strict bool `yaml:"strict" mapstructure:"strict"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("overpass.url", "http://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 60)
	v.SetDefault("overpass.max_retries", 1)
	v.SetDefault("overpass.rate_per_sec", 1.0)
	v.SetDefault("overpass.user_agent", "poi-ingest/1.0")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data.sqlite")
	v.SetDefault("store.table", "data")
	v.SetDefault("ingest.countries", []string{"Nigeria", "Ghana", "South Africa"})
	v.SetDefault("ingest.filters", []string{
		"amenity=hospital",
		"amenity=police",
		"amenity=fire_station",
		"amenity=school",
		"amenity=university",
		"office=government",
	})
	v.SetDefault("ingest.plan_file", "")
	v.SetDefault("ingest.strict", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if c.Overpass.TimeoutSecs <= 0 {
		return eris.Errorf("config: overpass.timeout_secs must be positive, got %d", c.Overpass.TimeoutSecs)
	}
	if c.Ingest.PlanFile != "" {
		return nil
	}
	_, err := c.Plan()
	return err
}

// Plan returns the query plan: the plan file if one is set, otherwise the
// countries and filters of the ingest section.
func (c *Config) Plan() (ingest.Plan, error) {
	if c.Ingest.PlanFile != "" {
		return ingest.LoadPlan(c.Ingest.PlanFile)
	}
	filters, err := ingest.ParseFilters(c.Ingest.Filters)
	if err != nil {
		return ingest.Plan{}, eris.Wrap(err, "config: ingest.filters")
	}
	p := ingest.Plan{Countries: c.Ingest.Countries, Filters: filters}
	if err := p.Validate(); err != nil {
		return ingest.Plan{}, eris.Wrap(err, "config: ingest")
	}
	return p, nil
}

// InitLogger initializes the global zap logger. Progress lines go to stdout.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.OutputPaths = []string{"stdout"}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
