package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mandi-advisor/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	History   HistoryConfig   `mapstructure:"history"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Collector CollectorConfig `mapstructure:"collector"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
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
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AcquireTimeout  time.Duration `mapstructure:"acquire_timeout"`
	Bootstrap       bool          `mapstructure:"bootstrap"`
	BootstrapLock   int64         `mapstructure:"bootstrap_lock_key"`
}

// FallbackConfig locates the local document store.
type FallbackConfig struct {
	Dir        string `mapstructure:"dir"`
	HistoryCap int    `mapstructure:"history_cap"`
	ChecksCap  int    `mapstructure:"checks_cap"`
}

// HistoryConfig tunes time-series reads.
type HistoryConfig struct {
	DefaultDays int `mapstructure:"default_days"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FeedConfig captures the government price feed connectivity.
type FeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ResourceID     string        `mapstructure:"resource_id"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
	Limit          int           `mapstructure:"limit"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CollectorConfig governs the scheduled ingestion loop.
type CollectorConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	Regions       []string      `mapstructure:"regions"`
	LockKey       int64         `mapstructure:"advisory_lock_key"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
}

// AlertingConfig defines where SELL notices go.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery.
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

// Region is a state/district pair parsed from collector.regions.
type Region struct {
	State    string
	District string
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MANDI")
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
	v.SetDefault("app.name", "mandi-advisor")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// DATABASE_URL / POSTGRES_URL are honoured through the dsn binding below.
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "30s")
	v.SetDefault("database.acquire_timeout", "10s")
	v.SetDefault("database.bootstrap", true)
	v.SetDefault("database.bootstrap_lock_key", int64(0x6d616e64))
	_ = v.BindEnv("database.dsn", "MANDI_DATABASE_DSN", "DATABASE_URL", "POSTGRES_URL")

	v.SetDefault("fallback.dir", "data")
	v.SetDefault("fallback.history_cap", 90)
	v.SetDefault("fallback.checks_cap", 500)

	v.SetDefault("history.default_days", 30)

	v.SetDefault("http.addr", ":3000")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.request_timeout", "25s")

	v.SetDefault("feed.base_url", "https://api.data.gov.in/resource")
	v.SetDefault("feed.resource_id", "9ef84268-d588-465a-a308-a864a43d0070")
	v.SetDefault("feed.request_timeout", "15s")
	v.SetDefault("feed.requests_per_sec", 2.0)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.limit", 500)
	v.SetDefault("feed.user_agent", "Mozilla/5.0")
	_ = v.BindEnv("feed.api_key", "MANDI_FEED_API_KEY", "APMC_API_KEY")

	v.SetDefault("collector.interval", "24h")
	v.SetDefault("collector.align_to_bucket", true)
	v.SetDefault("collector.startup_delay", "0s")
	v.SetDefault("collector.regions", []string{})
	v.SetDefault("collector.advisory_lock_key", int64(0x636f6c6c))
	v.SetDefault("collector.run_on_start", false)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 90)
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
	if c.Fallback.Dir == "" {
		return fmt.Errorf("fallback.dir must be set")
	}
	if c.Fallback.HistoryCap <= 0 {
		return fmt.Errorf("fallback.history_cap must be greater than zero")
	}
	if c.Fallback.ChecksCap <= 0 {
		return fmt.Errorf("fallback.checks_cap must be greater than zero")
	}
	if c.History.DefaultDays <= 0 {
		return fmt.Errorf("history.default_days must be greater than zero")
	}
	if c.Database.AcquireTimeout <= 0 {
		return fmt.Errorf("database.acquire_timeout must be greater than zero")
	}
	if c.Collector.Interval <= 0 {
		return fmt.Errorf("collector.interval must be greater than zero")
	}
	if c.Feed.RequestsPerSec <= 0 {
		return fmt.Errorf("feed.requests_per_sec must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if _, err := c.Collector.ParseRegions(); err != nil {
		return err
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

// ParseRegions splits "State/District" entries.
func (c CollectorConfig) ParseRegions() ([]Region, error) {
	regions := make([]Region, 0, len(c.Regions))
	for _, raw := range c.Regions {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		state, district, ok := strings.Cut(raw, "/")
		state, district = strings.TrimSpace(state), strings.TrimSpace(district)
		if !ok || state == "" || district == "" {
			return nil, fmt.Errorf("collector.regions entry %q must look like State/District", raw)
		}
		regions = append(regions, Region{State: state, District: district})
	}
	return regions, nil
}

// ResolveDays returns either the caller's window or the configured default.
func (c *Config) ResolveDays(days int) int {
	if days > 0 {
		return days
	}
	return c.History.DefaultDays
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
