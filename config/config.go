package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Session    SessionConfig    `mapstructure:"session"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Grading    GradingConfig    `mapstructure:"grading"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxUploadMB   int64         `mapstructure:"max_upload_mb"`
	MaxConcurrent int64         `mapstructure:"max_concurrent_extractions"`
}

// DatabaseConfig holds database connection configuration.
// Only used when session.store is "postgres".
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// StorageConfig holds upload blob storage configuration
type StorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// SessionConfig holds session key-value store configuration
type SessionConfig struct {
	Store         string        `mapstructure:"store"` // memory, file, or postgres
	FilePath      string        `mapstructure:"file_path"`
	MemoryMaxKB   int           `mapstructure:"memory_max_kb"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ExtractionConfig holds column extraction defaults
type ExtractionConfig struct {
	TargetSheet      string `mapstructure:"target_sheet"`
	EmptyStreakLimit int    `mapstructure:"empty_streak_limit"`
}

// GradingConfig holds grading-tool template configuration
type GradingConfig struct {
	TemplatesDir string `mapstructure:"templates_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		// .env is optional, log but don't fail
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("BOM_SERVICE")

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// loadEnvFile loads a .env file from known locations into the process env
func loadEnvFile() error {
	envPaths := []string{".", "./config"}

	for _, path := range envPaths {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			if err := loadDotEnvFile(envFile); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			value = strings.Trim(value, "\"'")
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "DATABASE_URL")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")

	v.BindEnv("logging.level", "LOG_LEVEL")

	v.BindEnv("storage.base_path", "STORAGE_PATH")
	v.BindEnv("session.store", "SESSION_STORE")
	v.BindEnv("grading.templates_dir", "GRADING_TEMPLATES_DIR")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("server.max_concurrent_extractions", 10)

	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst_size", 20)

	v.SetDefault("storage.base_path", "./data/uploads")

	v.SetDefault("session.store", "file")
	v.SetDefault("session.file_path", "./data/sessions")
	v.SetDefault("session.memory_max_kb", 0)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.sweep_interval", 10*time.Minute)

	v.SetDefault("extraction.target_sheet", "Piling Information")
	v.SetDefault("extraction.empty_streak_limit", 25)

	v.SetDefault("grading.templates_dir", "./templates")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if cfg := Get(); cfg != nil && cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}
