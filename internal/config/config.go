package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pulp-price-forecast/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig                `mapstructure:"app"`
	Logging   logging.Config           `mapstructure:"logging"`
	Database  DatabaseConfig           `mapstructure:"database"`
	Scheduler SchedulerConfig          `mapstructure:"scheduler"`
	Fetcher   FetcherConfig            `mapstructure:"fetcher"`
	Curve     CurveConfig              `mapstructure:"curve"`
	Forecast  ForecastConfig           `mapstructure:"forecast"`
	Products  map[string]ProductConfig `mapstructure:"products"`
	Alerting  AlertingConfig           `mapstructure:"alerting"`
	Export    ExportConfig             `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the daily pipeline cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// FetcherConfig covers the contract-quote source.
type FetcherConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// Curve-building strategies accepted by CurveConfig.Strategy.
const (
	CurveStrategySmoothness = "smoothness"
	CurveStrategySpline     = "spline"
)

// CurveConfig selects the curve-building strategy.
type CurveConfig struct {
	// Strategy is "smoothness" (exact constrained optimization, the
	// default) or "spline" (fast natural-cubic approximation).
	Strategy string `mapstructure:"strategy"`
}

// ForecastConfig tunes the ensemble.
type ForecastConfig struct {
	HorizonDays       int     `mapstructure:"horizon_days"`
	SavedHorizons     []int   `mapstructure:"saved_horizons"`
	AdaptWeights      bool    `mapstructure:"adapt_weights"`
	FuturesWeight     float64 `mapstructure:"futures_weight"`
	StatisticalWeight float64 `mapstructure:"statistical_weight"`
	ReversionWeight   float64 `mapstructure:"mean_reversion_weight"`
	ValidationDays    int     `mapstructure:"validation_days"`
	GARCHBands        bool    `mapstructure:"garch_bands"`
}

// ProductConfig carries the per-product price envelope and equilibrium.
// NBSK and BEK trade in different ranges, and the envelopes moved when
// the market switched to spot-based futures, so these are configuration
// rather than constants.
type ProductConfig struct {
	MinPrice       float64 `mapstructure:"min_price"`
	MaxPrice       float64 `mapstructure:"max_price"`
	MaxDailyChange float64 `mapstructure:"max_daily_change"`
	LongTermMean   float64 `mapstructure:"long_term_mean"`
	HalfLifeDays   int     `mapstructure:"half_life_days"`
}

// AlertingConfig defines pipeline-event alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PULPWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pulpwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70756C70))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("fetcher.base_url", "https://futures.norexco.com/api/v1")
	v.SetDefault("fetcher.request_timeout", "30s")
	v.SetDefault("fetcher.user_agent", "pulpwatcher/1.0")

	v.SetDefault("curve.strategy", CurveStrategySmoothness)

	v.SetDefault("forecast.horizon_days", 365)
	v.SetDefault("forecast.saved_horizons", []int{30, 60, 90, 120, 180, 270, 365})
	v.SetDefault("forecast.adapt_weights", true)
	v.SetDefault("forecast.garch_bands", false)
	v.SetDefault("forecast.futures_weight", 0.50)
	v.SetDefault("forecast.statistical_weight", 0.30)
	v.SetDefault("forecast.mean_reversion_weight", 0.20)
	v.SetDefault("forecast.validation_days", 30)

	// Spot-based futures regime envelopes. Legacy PIX/DAP contracts
	// traded higher; override per deployment when re-running history.
	v.SetDefault("products.NBSK.min_price", 500.0)
	v.SetDefault("products.NBSK.max_price", 1200.0)
	v.SetDefault("products.NBSK.max_daily_change", 50.0)
	v.SetDefault("products.NBSK.long_term_mean", 1100.0)
	v.SetDefault("products.NBSK.half_life_days", 180)
	v.SetDefault("products.BEK.min_price", 400.0)
	v.SetDefault("products.BEK.max_price", 1000.0)
	v.SetDefault("products.BEK.max_daily_change", 50.0)
	v.SetDefault("products.BEK.long_term_mean", 900.0)
	v.SetDefault("products.BEK.half_life_days", 180)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Forecast.HorizonDays <= 0 {
		return fmt.Errorf("forecast.horizon_days must be greater than zero")
	}
	switch strings.ToLower(c.Curve.Strategy) {
	case CurveStrategySmoothness, CurveStrategySpline:
	default:
		return fmt.Errorf("curve.strategy must be \"smoothness\" or \"spline\", got %q", c.Curve.Strategy)
	}
	if len(c.Products) == 0 {
		return fmt.Errorf("at least one product must be configured")
	}
	for name, p := range c.Products {
		if p.MinPrice >= p.MaxPrice {
			return fmt.Errorf("products.%s: min_price must be below max_price", name)
		}
		if p.LongTermMean <= 0 {
			return fmt.Errorf("products.%s: long_term_mean must be positive", name)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ProductNames lists configured products in deterministic order.
func (c *Config) ProductNames() []string {
	names := make([]string, 0, len(c.Products))
	for name := range c.Products {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
