//nolint:goconst // Test files use repeated strings for clarity
package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "signalforge",
			Version:     "0.1.0",
			Environment: "development",
			LogLevel:    "info",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "secure_password",
			Database: "signalforge",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		NATS: NATSConfig{
			URL:             "nats://localhost:4222",
			ControlSubject:  "signalforge.control",
			AlertSubject:    "signalforge.alerts",
			EnableJetStream: true,
		},
		LLM: LLMConfig{
			Gateway:       "bifrost",
			Endpoint:      "http://localhost:8080/v1/chat/completions",
			PrimaryModel:  "claude-sonnet-4",
			FallbackModel: "gpt-4-turbo",
			Temperature:   0.7,
			MaxTokens:     2000,
			EnableCaching: true,
			Timeout:       30000,
		},
		Watchlist: WatchlistConfig{
			Tickers: []string{"NVDA", "MSFT"},
		},
		Learning: LearningConfig{
			AutoLearningEnabled:  false,
			HumanReviewRequired:  true,
			MinConfidenceForAuto: 0.80,
			MaxWeightChangeDaily: 0.10,
			WeightMinBound:       0.30,
			WeightMaxBound:       2.00,
			TimeframeWeights:     map[string]float64{"7": 0.4, "30": 0.4, "90": 0.2},
			FreezeDurationDays:   3,
		},
		Scheduler: SchedulerConfig{
			Timezone:             "America/New_York",
			PerAgentDeadline:     12 * time.Second,
			JobWallClockDeadline: 4 * time.Minute,
		},
		Risk: RiskConfig{
			DefaultPortfolioValue: 100000.0,
			MinConfidence:         0.3,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 9100,
			EnableMetrics:  true,
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := getValidConfig()
	err := cfg.Validate()
	assert.NoError(t, err, "Valid configuration should not produce errors")
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "missing app name",
			modify:      func(c *Config) { c.App.Name = "" },
			expectError: "app.name",
		},
		{
			name:        "missing environment",
			modify:      func(c *Config) { c.App.Environment = "" },
			expectError: "app.environment",
		},
		{
			name:        "invalid environment",
			modify:      func(c *Config) { c.App.Environment = "invalid_env" },
			expectError: "Invalid environment",
		},
		{
			name:        "missing log level",
			modify:      func(c *Config) { c.App.LogLevel = "" },
			expectError: "app.log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{name: "missing host", modify: func(c *Config) { c.Database.Host = "" }, expectError: "database.host"},
		{name: "missing port", modify: func(c *Config) { c.Database.Port = 0 }, expectError: "database.port"},
		{name: "invalid port - too high", modify: func(c *Config) { c.Database.Port = 70000 }, expectError: "Invalid port"},
		{name: "invalid port - negative", modify: func(c *Config) { c.Database.Port = -1 }, expectError: "Invalid port"},
		{name: "missing user", modify: func(c *Config) { c.Database.User = "" }, expectError: "database.user"},
		{name: "missing database name", modify: func(c *Config) { c.Database.Database = "" }, expectError: "database.database"},
		{
			name: "missing password in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.Password = ""
			},
			expectError: "password is required",
		},
		{name: "invalid pool size", modify: func(c *Config) { c.Database.PoolSize = 0 }, expectError: "pool size must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRedis(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{name: "missing host", modify: func(c *Config) { c.Redis.Host = "" }, expectError: "redis.host"},
		{name: "missing port", modify: func(c *Config) { c.Redis.Port = 0 }, expectError: "redis.port"},
		{name: "invalid port", modify: func(c *Config) { c.Redis.Port = 70000 }, expectError: "Invalid port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateNATS(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{name: "missing URL", modify: func(c *Config) { c.NATS.URL = "" }, expectError: "nats.url"},
		{name: "invalid URL format", modify: func(c *Config) { c.NATS.URL = "http://localhost:4222" }, expectError: "must start with 'nats://'"},
		{name: "missing control subject", modify: func(c *Config) { c.NATS.ControlSubject = "" }, expectError: "nats.control_subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateLLM(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{name: "missing gateway", modify: func(c *Config) { c.LLM.Gateway = "" }, expectError: "llm.gateway"},
		{name: "missing endpoint", modify: func(c *Config) { c.LLM.Endpoint = "" }, expectError: "llm.endpoint"},
		{name: "missing primary model", modify: func(c *Config) { c.LLM.PrimaryModel = "" }, expectError: "llm.primary_model"},
		{name: "invalid temperature - too low", modify: func(c *Config) { c.LLM.Temperature = -0.1 }, expectError: "Invalid temperature"},
		{name: "invalid temperature - too high", modify: func(c *Config) { c.LLM.Temperature = 2.5 }, expectError: "Invalid temperature"},
		{name: "invalid max_tokens", modify: func(c *Config) { c.LLM.MaxTokens = 0 }, expectError: "max_tokens must be at least 1"},
		{name: "invalid timeout", modify: func(c *Config) { c.LLM.Timeout = 500 }, expectError: "timeout must be at least 1000ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateWatchlist(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "empty watchlist",
			modify:      func(c *Config) { c.Watchlist.Tickers = nil },
			expectError: "At least one ticker is required",
		},
		{
			name:        "duplicate ticker",
			modify:      func(c *Config) { c.Watchlist.Tickers = []string{"NVDA", "NVDA"} },
			expectError: "Duplicate ticker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateLearning(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{name: "non-positive weight_min_bound", modify: func(c *Config) { c.Learning.WeightMinBound = 0 }, expectError: "weight_min_bound must be positive"},
		{
			name:        "max_bound below min_bound",
			modify:      func(c *Config) { c.Learning.WeightMaxBound = c.Learning.WeightMinBound },
			expectError: "weight_max_bound must exceed weight_min_bound",
		},
		{name: "confidence out of range", modify: func(c *Config) { c.Learning.MinConfidenceForAuto = 1.5 }, expectError: "Invalid min_confidence_for_auto"},
		{name: "daily change cap out of range", modify: func(c *Config) { c.Learning.MaxWeightChangeDaily = 0 }, expectError: "Invalid max_weight_change_daily"},
		{name: "negative freeze duration", modify: func(c *Config) { c.Learning.FreezeDurationDays = -1 }, expectError: "freeze_duration_days cannot be negative"},
		{
			name:        "timeframe weights don't sum to one",
			modify:      func(c *Config) { c.Learning.TimeframeWeights = map[string]float64{"7": 0.5, "30": 0.5, "90": 0.5} },
			expectError: "must sum to 1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateScheduler(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{name: "missing timezone", modify: func(c *Config) { c.Scheduler.Timezone = "" }, expectError: "scheduler timezone is required"},
		{name: "non-positive per-agent deadline", modify: func(c *Config) { c.Scheduler.PerAgentDeadline = 0 }, expectError: "per_agent_deadline must be positive"},
		{name: "non-positive job deadline", modify: func(c *Config) { c.Scheduler.JobWallClockDeadline = 0 }, expectError: "job_wall_clock_deadline must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRisk(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{name: "non-positive portfolio value", modify: func(c *Config) { c.Risk.DefaultPortfolioValue = 0 }, expectError: "default_portfolio_value must be greater than 0"},
		{name: "invalid min_confidence - too low", modify: func(c *Config) { c.Risk.MinConfidence = -0.1 }, expectError: "Invalid min_confidence"},
		{name: "invalid min_confidence - too high", modify: func(c *Config) { c.Risk.MinConfidence = 1.5 }, expectError: "Invalid min_confidence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateAPI(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{name: "missing port", modify: func(c *Config) { c.API.Port = 0 }, expectError: "api.port"},
		{name: "invalid port - too high", modify: func(c *Config) { c.API.Port = 70000 }, expectError: "Invalid port"},
		{name: "invalid port - negative", modify: func(c *Config) { c.API.Port = -1 }, expectError: "Invalid port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateEnvironmentRequirements(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "SSL disabled in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.SSLMode = "disable"
			},
			expectError: "SSL must be enabled for database in production",
		},
		{
			name: "auto-learning without human review in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Learning.AutoLearningEnabled = true
				c.Learning.HumanReviewRequired = false
			},
			expectError: "auto_learning_enabled without human_review_required is not allowed in production",
		},
		{
			name: "DATABASE_URL missing in production with incomplete config",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.Host = ""
				_ = os.Unsetenv("DATABASE_URL")
			},
			expectError: "DATABASE_URL is required in production",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errors := ValidationErrors{
		{Field: "field1", Message: "error message 1"},
		{Field: "field2", Message: "error message 2"},
		{Field: "field3", Message: "error message 3"},
	}

	errMsg := errors.Error()

	assert.Contains(t, errMsg, "Configuration validation failed with 3 error(s)")
	assert.Contains(t, errMsg, "1. field1: error message 1")
	assert.Contains(t, errMsg, "2. field2: error message 2")
	assert.Contains(t, errMsg, "3. field3: error message 3")
	assert.Contains(t, errMsg, "Please fix the above errors and try again")
}

func TestValidationErrors_Empty(t *testing.T) {
	errors := ValidationErrors{}
	assert.Equal(t, "", errors.Error())
}

func TestValidateAndLoad(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	invalidConfig := `
app:
  name: ""
  environment: "development"
  log_level: "info"
watchlist:
  tickers: []
`
	_, err = tmpfile.WriteString(invalidConfig)
	require.NoError(t, err)
	_ = tmpfile.Close()

	_, err = Load(tmpfile.Name())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "app.name") || strings.Contains(err.Error(), "ticker"))
}
