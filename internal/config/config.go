package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Watchlist  WatchlistConfig  `mapstructure:"watchlist"`
	Learning   LearningConfig   `mapstructure:"learning"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Risk       RiskConfig       `mapstructure:"risk"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the shared quote/sentiment cache
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings: the scheduler's pause/resume
// control plane and the alert fan-out bus (§4.7, §6).
type NATSConfig struct {
	URL             string `mapstructure:"url"`
	ControlSubject  string `mapstructure:"control_subject"`
	AlertSubject    string `mapstructure:"alert_subject"`
	EnableJetStream bool   `mapstructure:"enable_jetstream"`
}

// LLMConfig contains LLM gateway settings consumed by the LLM-backed agent
type LLMConfig struct {
	Gateway       string  `mapstructure:"gateway"`        // "bifrost"
	Endpoint      string  `mapstructure:"endpoint"`       // "http://localhost:8080/v1/chat/completions"
	PrimaryModel  string  `mapstructure:"primary_model"`  // "claude-sonnet-4-20250514"
	FallbackModel string  `mapstructure:"fallback_model"` // "gpt-4-turbo"
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	EnableCaching bool    `mapstructure:"enable_caching"`
	Timeout       int     `mapstructure:"timeout"` // ms
}

// WatchlistConfig is the set of tickers the scheduler's jobs iterate over
// (§4.7).
type WatchlistConfig struct {
	Tickers []string `mapstructure:"tickers"`
}

// LearningConfig carries the system_config learning gates from §6: the
// knobs that govern whether LearningLoop applies a weight update
// automatically or defers to human review.
type LearningConfig struct {
	AutoLearningEnabled  bool               `mapstructure:"auto_learning_enabled"`
	HumanReviewRequired  bool               `mapstructure:"human_review_required"`
	MinConfidenceForAuto float64            `mapstructure:"min_confidence_for_auto"`
	MaxWeightChangeDaily float64            `mapstructure:"max_weight_change_daily"`
	WeightMinBound       float64            `mapstructure:"weight_min_bound"`
	WeightMaxBound       float64            `mapstructure:"weight_max_bound"`
	TimeframeWeights     map[string]float64 `mapstructure:"timeframe_weights"` // keys "7","30","90"
	FreezeDurationDays   int                `mapstructure:"freeze_duration_days"`
}

// SchedulerConfig tunes the cron job surface from §4.7.
type SchedulerConfig struct {
	Timezone            string        `mapstructure:"timezone"` // "America/New_York"
	PerAgentDeadline    time.Duration `mapstructure:"per_agent_deadline"`
	JobWallClockDeadline time.Duration `mapstructure:"job_wall_clock_deadline"`
}

// RiskConfig contains portfolio sizing defaults RiskTranslator reads when
// no per-account portfolio value is supplied.
type RiskConfig struct {
	DefaultPortfolioValue float64 `mapstructure:"default_portfolio_value"`
	MinConfidence         float64 `mapstructure:"min_confidence"`
}

// APIConfig contains REST API settings for the thin external surface (§6).
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SIGNALFORGE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "signalforge")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "signalforge")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.control_subject", "signalforge.control")
	v.SetDefault("nats.alert_subject", "signalforge.alerts")
	v.SetDefault("nats.enable_jetstream", true)

	v.SetDefault("llm.gateway", "bifrost")
	v.SetDefault("llm.endpoint", "http://localhost:8080/v1/chat/completions")
	v.SetDefault("llm.primary_model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.fallback_model", "gpt-4-turbo")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.enable_caching", true)
	v.SetDefault("llm.timeout", 15000)

	v.SetDefault("watchlist.tickers", []string{"NVDA", "MSFT", "GOOGL", "META", "AMZN"})

	v.SetDefault("learning.auto_learning_enabled", false)
	v.SetDefault("learning.human_review_required", true)
	v.SetDefault("learning.min_confidence_for_auto", 0.80)
	v.SetDefault("learning.max_weight_change_daily", 0.10)
	v.SetDefault("learning.weight_min_bound", 0.30)
	v.SetDefault("learning.weight_max_bound", 2.00)
	v.SetDefault("learning.timeframe_weights", map[string]float64{"7": 0.4, "30": 0.4, "90": 0.2})
	v.SetDefault("learning.freeze_duration_days", 3)

	v.SetDefault("scheduler.timezone", "America/New_York")
	v.SetDefault("scheduler.per_agent_deadline", 12*time.Second)
	v.SetDefault("scheduler.job_wall_clock_deadline", 4*time.Minute)

	v.SetDefault("risk.default_portfolio_value", 100000.0)
	v.SetDefault("risk.min_confidence", 0.3)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Note: Comprehensive validation is in validator.go; Config.Validate() is
// called during Load().

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetTimeout returns the LLM timeout as time.Duration
func (c *LLMConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// TimeframeWeightsAsInts converts the string-keyed config map (viper
// can't key a map by int from YAML/env) to the int-keyed
// learning.TimeframeWeights shape.
func (c *LearningConfig) TimeframeWeightsAsInts() map[int]float64 {
	out := make(map[int]float64, len(c.TimeframeWeights))
	for k, w := range c.TimeframeWeights {
		var days int
		if _, err := fmt.Sscanf(k, "%d", &days); err != nil {
			continue
		}
		out[days] = w
	}
	return out
}
