package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
	Cache    CacheConfig    `yaml:"cache" envconfig:"CACHE"`
	Forecast ForecastConfig `yaml:"forecast" envconfig:"FORECAST"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	AdminKeyHash   string          `yaml:"admin_key_hash" envconfig:"ADMIN_KEY_HASH"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output string `yaml:"output" envconfig:"OUTPUT" default:"console"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	RawDir       string `yaml:"raw_dir" envconfig:"RAW_DIR" default:"data/raw"`
	ProcessedDir string `yaml:"processed_dir" envconfig:"PROCESSED_DIR" default:"data/processed"`
	FeaturesDir  string `yaml:"features_dir" envconfig:"FEATURES_DIR" default:"data/features"`
	ModelsDir    string `yaml:"models_dir" envconfig:"MODELS_DIR" default:"models"`
	ReportsDir   string `yaml:"reports_dir" envconfig:"REPORTS_DIR" default:"reports"`
}

// CacheConfig contains Redis cache configuration
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ENABLED" default:"false"`
	URL      string        `yaml:"url" envconfig:"URL" default:"redis://localhost:6379"`
	MaxLocal int           `yaml:"max_local" envconfig:"MAX_LOCAL" default:"10000"`
	TTL      time.Duration `yaml:"ttl" envconfig:"TTL" default:"1h"`
}

// ForecastConfig contains the forecasting pipeline configuration
type ForecastConfig struct {
	Horizon         int     `yaml:"horizon" envconfig:"HORIZON" default:"90"`
	TrainDays       int     `yaml:"train_days" envconfig:"TRAIN_DAYS" default:"365"`
	ValidDays       int     `yaml:"valid_days" envconfig:"VALID_DAYS" default:"90"`
	GapDays         int     `yaml:"gap_days" envconfig:"GAP_DAYS" default:"0"`
	CVSplits        int     `yaml:"cv_splits" envconfig:"CV_SPLITS" default:"3"`
	StepDays        int     `yaml:"step_days" envconfig:"STEP_DAYS" default:"30"`
	RMSLEThreshold  float64 `yaml:"rmsle_threshold" envconfig:"RMSLE_THRESHOLD" default:"0.5"`
	ShrinkageLambda float64 `yaml:"shrinkage_lambda" envconfig:"SHRINKAGE_LAMBDA" default:"0.1"`
	ProportionDays  int     `yaml:"proportion_days" envconfig:"PROPORTION_DAYS" default:"90"`
	FeatureSetFile  string  `yaml:"feature_set_file" envconfig:"FEATURE_SET_FILE"`
}

// Load loads configuration from environment variables and an optional YAML file
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SF", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// The file overlays env-derived defaults: only keys present in the
	// file are overwritten.
	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		if err := overlayFromFile(configFile, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// overlayFromFile unmarshals a YAML file over an existing configuration
func overlayFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getConfigFilePath returns the config file path, honoring SF_CONFIG_FILE
func getConfigFilePath() string {
	if path := os.Getenv("SF_CONFIG_FILE"); path != "" {
		return path
	}
	return "config.yaml"
}

// validate performs sanity checks on the loaded configuration
func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Forecast.Horizon <= 0 {
		return fmt.Errorf("forecast horizon must be positive, got %d", c.Forecast.Horizon)
	}

	if c.Forecast.TrainDays <= 0 || c.Forecast.ValidDays <= 0 {
		return fmt.Errorf("train_days and valid_days must be positive, got %d and %d",
			c.Forecast.TrainDays, c.Forecast.ValidDays)
	}

	if c.Forecast.GapDays < 0 {
		return fmt.Errorf("gap_days must not be negative, got %d", c.Forecast.GapDays)
	}

	if c.Forecast.CVSplits <= 0 {
		return fmt.Errorf("cv_splits must be positive, got %d", c.Forecast.CVSplits)
	}

	if c.Forecast.ShrinkageLambda < 0 || c.Forecast.ShrinkageLambda > 1 {
		return fmt.Errorf("shrinkage_lambda must be in [0,1], got %f", c.Forecast.ShrinkageLambda)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// EnsureDirs creates the configured data directories if they do not exist
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.Paths.ProcessedDir,
		c.Paths.FeaturesDir,
		c.Paths.ModelsDir,
		c.Paths.ReportsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ModelPath returns the path of a model artifact file
func (c *Config) ModelPath(filename string) string {
	return filepath.Join(c.Paths.ModelsDir, filename)
}

// ReportPath returns the path of a report artifact file
func (c *Config) ReportPath(filename string) string {
	return filepath.Join(c.Paths.ReportsDir, filename)
}
