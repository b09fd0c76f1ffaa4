package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/irfndi/cashflow-ai-go/internal/forecasting"
)

type Config struct {
	Environment string            `mapstructure:"environment"`
	LogLevel    string            `mapstructure:"log_level"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Forecasting ForecastingConfig `mapstructure:"forecasting"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	ShutdownTimeout string   `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ForecastingConfig holds the pipeline tunables and the service-level limits
// around it.
type ForecastingConfig struct {
	LagOffsets         []int   `mapstructure:"lag_offsets"`
	RollingWindows     []int   `mapstructure:"rolling_windows"`
	RecentWindow       int     `mapstructure:"recent_window"`
	RandomSeed         int64   `mapstructure:"random_seed"`
	NEstimators        int     `mapstructure:"n_estimators"`
	ForestMaxDepth     int     `mapstructure:"forest_max_depth"`
	BoostingMaxDepth   int     `mapstructure:"boosting_max_depth"`
	LearningRate       float64 `mapstructure:"learning_rate"`
	ValidationFraction float64 `mapstructure:"validation_fraction"`
	TrialBudget        int     `mapstructure:"trial_budget"`
	CVFolds            int     `mapstructure:"cv_folds"`
	TrainingDays       int     `mapstructure:"training_days"`
	DefaultHorizonDays int     `mapstructure:"default_horizon_days"`
	MaxHorizonDays     int     `mapstructure:"max_horizon_days"`
	ConfidenceLevel    float64 `mapstructure:"confidence_level"`
	ModelCacheSize     int     `mapstructure:"model_cache_size"`
	ModelTTL           string  `mapstructure:"model_ttl"`
	GenerationTimeout  string  `mapstructure:"generation_timeout"`
}

type CacheConfig struct {
	ForecastTTL string `mapstructure:"forecast_ttl"`
}

type TelemetryConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Exporter        string  `mapstructure:"exporter"`
	ServiceName     string  `mapstructure:"service_name"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPLogsEnabled bool    `mapstructure:"otlp_logs_enabled"`
	SampleRate      float64 `mapstructure:"sample_rate"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("database.database_url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL environment variable: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the values Load cannot express as defaults.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"server.shutdown_timeout":        c.Server.ShutdownTimeout,
		"cache.forecast_ttl":             c.Cache.ForecastTTL,
		"forecasting.generation_timeout": c.Forecasting.GenerationTimeout,
		"forecasting.model_ttl":          c.Forecasting.ModelTTL,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s duration: %w", name, err)
		}
	}

	f := c.Forecasting
	if f.TrainingDays < 1 {
		return fmt.Errorf("forecasting.training_days must be positive, got %d", f.TrainingDays)
	}
	if f.MaxHorizonDays < 1 || f.DefaultHorizonDays < 1 || f.DefaultHorizonDays > f.MaxHorizonDays {
		return fmt.Errorf("forecasting.default_horizon_days must be in [1, %d], got %d",
			f.MaxHorizonDays, f.DefaultHorizonDays)
	}
	if f.ConfidenceLevel <= 0 || f.ConfidenceLevel >= 1 {
		return fmt.Errorf("forecasting.confidence_level must be in (0, 1), got %v", f.ConfidenceLevel)
	}
	if f.ModelCacheSize < 1 {
		return fmt.Errorf("forecasting.model_cache_size must be positive, got %d", f.ModelCacheSize)
	}
	if err := f.ToCoreConfig().Validate(); err != nil {
		return fmt.Errorf("invalid forecasting configuration: %w", err)
	}
	return nil
}

// ToCoreConfig maps the service settings onto the pipeline configuration.
// Zero values keep the pipeline defaults.
func (f ForecastingConfig) ToCoreConfig() forecasting.Config {
	cfg := forecasting.DefaultConfig()
	if len(f.LagOffsets) > 0 {
		cfg.LagOffsets = append([]int(nil), f.LagOffsets...)
	}
	if len(f.RollingWindows) > 0 {
		cfg.RollingWindows = append([]int(nil), f.RollingWindows...)
	}
	if f.RecentWindow > 0 {
		cfg.RecentWindow = f.RecentWindow
	}
	cfg.Seed = f.RandomSeed
	if f.NEstimators > 0 {
		cfg.RandomForest.NEstimators = f.NEstimators
		cfg.XGBoost.NEstimators = f.NEstimators
		cfg.LightGBM.NEstimators = f.NEstimators
	}
	if f.ForestMaxDepth > 0 {
		cfg.RandomForest.MaxDepth = f.ForestMaxDepth
	}
	if f.BoostingMaxDepth > 0 {
		cfg.XGBoost.MaxDepth = f.BoostingMaxDepth
		cfg.LightGBM.MaxDepth = f.BoostingMaxDepth
	}
	if f.LearningRate > 0 {
		cfg.XGBoost.LearningRate = f.LearningRate
		cfg.LightGBM.LearningRate = f.LearningRate
	}
	cfg.ValidationFraction = f.ValidationFraction
	if f.TrialBudget > 0 {
		cfg.TrialBudget = f.TrialBudget
	}
	if f.CVFolds > 0 {
		cfg.CVFolds = f.CVFolds
	}
	return cfg
}

// Duration parses a configured duration, falling back when it is empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "cashflow_ai")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Forecasting
	viper.SetDefault("forecasting.lag_offsets", []int{1, 7, 30})
	viper.SetDefault("forecasting.rolling_windows", []int{7, 30, 90})
	viper.SetDefault("forecasting.recent_window", 10)
	viper.SetDefault("forecasting.random_seed", 42)
	viper.SetDefault("forecasting.n_estimators", 100)
	viper.SetDefault("forecasting.forest_max_depth", 10)
	viper.SetDefault("forecasting.boosting_max_depth", 6)
	viper.SetDefault("forecasting.learning_rate", 0.1)
	viper.SetDefault("forecasting.validation_fraction", 0.2)
	viper.SetDefault("forecasting.trial_budget", 100)
	viper.SetDefault("forecasting.cv_folds", 5)
	viper.SetDefault("forecasting.training_days", 365)
	viper.SetDefault("forecasting.default_horizon_days", 30)
	viper.SetDefault("forecasting.max_horizon_days", 365)
	viper.SetDefault("forecasting.confidence_level", 0.95)
	viper.SetDefault("forecasting.model_cache_size", 128)
	viper.SetDefault("forecasting.model_ttl", "24h")
	viper.SetDefault("forecasting.generation_timeout", "10m")

	// Cache
	viper.SetDefault("cache.forecast_ttl", "1h")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.service_name", "cashflow-ai-go")
	viper.SetDefault("telemetry.exporter", "otlp")
	viper.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	viper.SetDefault("telemetry.otlp_logs_enabled", false)
	viper.SetDefault("telemetry.sample_rate", 0.2)
}
