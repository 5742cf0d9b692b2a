package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateWatchlist()...)
	errors = append(errors, c.validateLearning()...)
	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateRisk()...)
	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: "Environment is required (development, staging, or production)",
		})
	} else {
		validEnvs := []string{"development", "staging", "production"}
		valid := false
		for _, env := range validEnvs {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
			})
		}
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	if c.Database.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: "Database port is required",
		})
	} else if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Database.Port),
		})
	}

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in non-development environments",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	if c.Redis.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: "Redis port is required",
		})
	} else if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://'",
		})
	}

	if c.NATS.ControlSubject == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.control_subject",
			Message: "NATS control subject is required for scheduler pause/resume",
		})
	}

	return errors
}

func (c *Config) validateLLM() ValidationErrors {
	var errors ValidationErrors

	if c.LLM.Gateway == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.gateway",
			Message: "LLM gateway is required",
		})
	}

	if c.LLM.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.endpoint",
			Message: "LLM endpoint is required",
		})
	}

	if c.LLM.PrimaryModel == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.primary_model",
			Message: "LLM primary model is required",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("Invalid temperature %.2f. Must be between 0-2", c.LLM.Temperature),
		})
	}

	if c.LLM.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "LLM max_tokens must be at least 1",
		})
	}

	if c.LLM.Timeout < 1000 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout",
			Message: "LLM timeout must be at least 1000ms",
		})
	}

	return errors
}

func (c *Config) validateWatchlist() ValidationErrors {
	var errors ValidationErrors

	if len(c.Watchlist.Tickers) == 0 {
		errors = append(errors, ValidationError{
			Field:   "watchlist.tickers",
			Message: "At least one ticker is required",
		})
	}

	seen := make(map[string]bool, len(c.Watchlist.Tickers))
	for _, ticker := range c.Watchlist.Tickers {
		if ticker == "" {
			errors = append(errors, ValidationError{
				Field:   "watchlist.tickers",
				Message: "Ticker entries cannot be empty",
			})
			continue
		}
		if seen[ticker] {
			errors = append(errors, ValidationError{
				Field:   "watchlist.tickers",
				Message: fmt.Sprintf("Duplicate ticker '%s' in watchlist", ticker),
			})
		}
		seen[ticker] = true
	}

	return errors
}

func (c *Config) validateLearning() ValidationErrors {
	var errors ValidationErrors
	l := c.Learning

	if l.WeightMinBound <= 0 {
		errors = append(errors, ValidationError{
			Field:   "learning.weight_min_bound",
			Message: "weight_min_bound must be positive",
		})
	}

	if l.WeightMaxBound <= l.WeightMinBound {
		errors = append(errors, ValidationError{
			Field:   "learning.weight_max_bound",
			Message: "weight_max_bound must exceed weight_min_bound",
		})
	}

	if l.MinConfidenceForAuto < 0 || l.MinConfidenceForAuto > 1 {
		errors = append(errors, ValidationError{
			Field:   "learning.min_confidence_for_auto",
			Message: fmt.Sprintf("Invalid min_confidence_for_auto %.2f. Must be between 0-1", l.MinConfidenceForAuto),
		})
	}

	if l.MaxWeightChangeDaily <= 0 || l.MaxWeightChangeDaily > 1 {
		errors = append(errors, ValidationError{
			Field:   "learning.max_weight_change_daily",
			Message: fmt.Sprintf("Invalid max_weight_change_daily %.2f. Must be between 0-1", l.MaxWeightChangeDaily),
		})
	}

	if l.FreezeDurationDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "learning.freeze_duration_days",
			Message: "freeze_duration_days cannot be negative",
		})
	}

	sum := 0.0
	for _, w := range l.TimeframeWeights {
		sum += w
	}
	if len(l.TimeframeWeights) > 0 && (sum < 0.99 || sum > 1.01) {
		errors = append(errors, ValidationError{
			Field:   "learning.timeframe_weights",
			Message: fmt.Sprintf("timeframe_weights must sum to 1.0, got %.4f", sum),
		})
	}

	return errors
}

func (c *Config) validateScheduler() ValidationErrors {
	var errors ValidationErrors

	if c.Scheduler.Timezone == "" {
		errors = append(errors, ValidationError{
			Field:   "scheduler.timezone",
			Message: "scheduler timezone is required",
		})
	}

	if c.Scheduler.PerAgentDeadline <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.per_agent_deadline",
			Message: "per_agent_deadline must be positive",
		})
	}

	if c.Scheduler.JobWallClockDeadline <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.job_wall_clock_deadline",
			Message: "job_wall_clock_deadline must be positive",
		})
	}

	return errors
}

func (c *Config) validateRisk() ValidationErrors {
	var errors ValidationErrors

	if c.Risk.DefaultPortfolioValue <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.default_portfolio_value",
			Message: "default_portfolio_value must be greater than 0",
		})
	}

	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		errors = append(errors, ValidationError{
			Field:   "risk.min_confidence",
			Message: fmt.Sprintf("Invalid min_confidence %.2f. Must be between 0-1", c.Risk.MinConfidence),
		})
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if c.API.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: "API port is required",
		})
	} else if c.API.Port < 1 || c.API.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.API.Port),
		})
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment == "production" {
		secretErrors := ValidateProductionSecrets(c)
		errors = append(errors, secretErrors...)

		if c.Database.SSLMode == "disable" {
			errors = append(errors, ValidationError{
				Field:   "database.ssl_mode",
				Message: "SSL must be enabled for database in production",
			})
		}

		if c.Learning.AutoLearningEnabled && !c.Learning.HumanReviewRequired {
			errors = append(errors, ValidationError{
				Field:   "learning.human_review_required",
				Message: "auto_learning_enabled without human_review_required is not allowed in production",
			})
		}
	}

	criticalEnvVars := []string{
		"DATABASE_URL",
	}

	for _, envVar := range criticalEnvVars {
		if os.Getenv(envVar) == "" && c.App.Environment == "production" {
			if envVar == "DATABASE_URL" {
				if c.Database.Host != "" && c.Database.Database != "" {
					continue
				}
			}

			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("env.%s", envVar),
				Message: fmt.Sprintf("Environment variable %s is required in production", envVar),
			})
		}
	}

	return errors
}

// ValidateAndLoad loads and validates configuration
func ValidateAndLoad(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
