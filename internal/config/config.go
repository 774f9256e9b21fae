package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Temporal  TemporalConfig  `yaml:"temporal" mapstructure:"temporal"`
	Mapbox    MapboxConfig    `yaml:"mapbox" mapstructure:"mapbox"`
	Assessor  AssessorConfig  `yaml:"assessor" mapstructure:"assessor"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Resend    ResendConfig    `yaml:"resend" mapstructure:"resend"`
	Rates     RatesConfig     `yaml:"rates" mapstructure:"rates"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Lookup    LookupConfig    `yaml:"lookup" mapstructure:"lookup"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP status API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// TemporalConfig configures the workflow runtime connection.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// MapboxConfig holds the geocoding connector settings.
type MapboxConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Country string `yaml:"country" mapstructure:"country"`
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// AssessorConfig holds the county assessor endpoints.
type AssessorConfig struct {
	SearchURL      string  `yaml:"search_url" mapstructure:"search_url"`
	ExportURL      string  `yaml:"export_url" mapstructure:"export_url"`
	DetailsBaseURL string  `yaml:"details_base_url" mapstructure:"details_base_url"`
	ResultsPerPage int     `yaml:"results_per_page" mapstructure:"results_per_page"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ResendConfig holds notification email settings. Notification is skipped
// when To is empty.
type ResendConfig struct {
	Key  string `yaml:"key" mapstructure:"key"`
	From string `yaml:"from" mapstructure:"from"`
	To   string `yaml:"to" mapstructure:"to"`
}

// RatesConfig holds the per-field adjustment start rates passed into the
// appraise step and echoed back in the result's assumptions.
type RatesConfig struct {
	GLARateStart          float64 `yaml:"gla_rate_start" mapstructure:"gla_rate_start"`
	BedroomStart          float64 `yaml:"bedroom_start" mapstructure:"bedroom_start"`
	BathFullStart         float64 `yaml:"bath_full_start" mapstructure:"bath_full_start"`
	BathHalfStart         float64 `yaml:"bath_half_start" mapstructure:"bath_half_start"`
	BasementFinishedStart float64 `yaml:"basement_finished_start" mapstructure:"basement_finished_start"`
	GarageRateStart       float64 `yaml:"garage_rate_start" mapstructure:"garage_rate_start"`
	LotMethod             string  `yaml:"lot_method" mapstructure:"lot_method"`
	TimeAdjMonthlyStart   float64 `yaml:"time_adj_monthly_start" mapstructure:"time_adj_monthly_start"`
}

// CacheConfig holds per-function-class TTLs for the idempotent cache.
type CacheConfig struct {
	GeocodeTTLDays       int `yaml:"geocode_ttl_days" mapstructure:"geocode_ttl_days"`
	AddressSearchTTLDays int `yaml:"address_search_ttl_days" mapstructure:"address_search_ttl_days"`
	ScrapeTTLDays        int `yaml:"scrape_ttl_days" mapstructure:"scrape_ttl_days"`
	AppraisalTTLDays     int `yaml:"appraisal_ttl_days" mapstructure:"appraisal_ttl_days"`
}

// LookupConfig bounds fan-out over comparable candidates.
type LookupConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("APPRAISAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credentials default to empty so env overrides bind during
	// Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("mapbox.token", "")
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("resend.key", "")
	v.SetDefault("resend.to", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "appraisal")
	v.SetDefault("mapbox.base_url", "https://api.mapbox.com/search/geocode/v6")
	v.SetDefault("mapbox.country", "us")
	v.SetDefault("mapbox.limit", 1)
	v.SetDefault("assessor.search_url", "https://lookups.sccmo.org/assessor/search")
	v.SetDefault("assessor.export_url", "https://lookups.sccmo.org/assessor/export")
	v.SetDefault("assessor.details_base_url", "https://lookups.sccmo.org/assessor/details")
	v.SetDefault("assessor.results_per_page", 3)
	v.SetDefault("assessor.rate_per_second", 2.0)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("resend.from", "results@notify.appraisement.co")
	v.SetDefault("rates.gla_rate_start", 90)
	v.SetDefault("rates.bedroom_start", 4000)
	v.SetDefault("rates.bath_full_start", 5000)
	v.SetDefault("rates.bath_half_start", 2500)
	v.SetDefault("rates.basement_finished_start", 35)
	v.SetDefault("rates.garage_rate_start", 20)
	v.SetDefault("rates.lot_method", "lump_sum")
	v.SetDefault("rates.time_adj_monthly_start", 0.004)
	v.SetDefault("cache.geocode_ttl_days", 7)
	v.SetDefault("cache.address_search_ttl_days", 7)
	v.SetDefault("cache.scrape_ttl_days", 30)
	v.SetDefault("cache.appraisal_ttl_days", 7)
	v.SetDefault("lookup.max_concurrent", 5)
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

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

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
