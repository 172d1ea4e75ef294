package restmodel

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the server and tools
type Config struct {
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Generator GeneratorConfig `json:"generator" yaml:"generator"`
	Export    ExportConfig    `json:"export" yaml:"export"`
	Mock      MockConfig      `json:"mock" yaml:"mock"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Database        string        `json:"database" yaml:"database"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"sslMode" yaml:"sslMode"`
	MaxConnections  int           `json:"maxConnections" yaml:"maxConnections"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime" yaml:"connMaxIdleTime"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	// UseIAM replaces Password with a short-lived DSQL auth token.
	UseIAM    bool   `json:"useIAM" yaml:"useIAM"`
	AWSRegion string `json:"awsRegion" yaml:"awsRegion"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Port            string        `json:"port" yaml:"port"`
	AllowedOrigins  []string      `json:"allowedOrigins" yaml:"allowedOrigins"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
}

// CacheConfig contains compiled schema cache settings
type CacheConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Addr      string        `json:"addr" yaml:"addr"`
	Password  string        `json:"password" yaml:"password"`
	DB        int           `json:"db" yaml:"db"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"`
	KeyPrefix string        `json:"keyPrefix" yaml:"keyPrefix"`
}

// GeneratorConfig selects and tunes the random instance generator
type GeneratorConfig struct {
	// Mode is "local" or "remote".
	Mode             string        `json:"mode" yaml:"mode"`
	Endpoint         string        `json:"endpoint" yaml:"endpoint"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	FailureThreshold int           `json:"failureThreshold" yaml:"failureThreshold"`
	FailureWindow    time.Duration `json:"failureWindow" yaml:"failureWindow"`
	OpenDuration     time.Duration `json:"openDuration" yaml:"openDuration"`
	Seed             int64         `json:"seed" yaml:"seed"`
}

// ExportConfig contains S3 artifact export settings
type ExportConfig struct {
	Bucket          string `json:"bucket" yaml:"bucket"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"accessKeyId" yaml:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey" yaml:"secretAccessKey"`
	UsePathStyle    bool   `json:"usePathStyle" yaml:"usePathStyle"`
}

// MockConfig contains mock serving settings
type MockConfig struct {
	ValidateBodies bool `json:"validateBodies" yaml:"validateBodies"`
	// AttributeOrder is "alphabetical" or "declaration".
	AttributeOrder string `json:"attributeOrder" yaml:"attributeOrder"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	MeterName string `json:"meterName" yaml:"meterName"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "restmodel",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
		},
		Server: ServerConfig{
			Port:            "8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			TTL:       10 * time.Minute,
			KeyPrefix: "restmodel:schema:",
		},
		Generator: GeneratorConfig{
			Mode:             "local",
			Timeout:          5 * time.Second,
			FailureThreshold: 5,
			FailureWindow:    30 * time.Second,
			OpenDuration:     15 * time.Second,
			Seed:             1,
		},
		Export: ExportConfig{
			Prefix: "schemas/",
			Region: "us-east-1",
		},
		Mock: MockConfig{
			ValidateBodies: false,
			AttributeOrder: "alphabetical",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:   false,
			MeterName: "restmodel",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}

	if c.Database.MaxIdleConns > c.Database.MaxConnections {
		return &ConfigError{Field: "database.maxIdleConns", Message: "must be less than or equal to maxConnections"}
	}

	if c.Database.UseIAM && c.Database.AWSRegion == "" {
		return &ConfigError{Field: "database.awsRegion", Message: "is required when useIAM is set"}
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return &ConfigError{Field: "cache.addr", Message: "is required when the cache is enabled"}
	}

	switch c.Generator.Mode {
	case "local":
	case "remote":
		if c.Generator.Endpoint == "" {
			return &ConfigError{Field: "generator.endpoint", Message: "is required in remote mode"}
		}
	default:
		return &ConfigError{Field: "generator.mode", Message: "must be one of local, remote"}
	}

	if c.Generator.Timeout <= 0 {
		return &ConfigError{Field: "generator.timeout", Message: "must be greater than 0"}
	}

	if c.Generator.FailureThreshold <= 0 {
		return &ConfigError{Field: "generator.failureThreshold", Message: "must be greater than 0"}
	}

	switch c.Mock.AttributeOrder {
	case "alphabetical", "declaration":
	default:
		return &ConfigError{Field: "mock.attributeOrder", Message: "must be one of alphabetical, declaration"}
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be one of json, console"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}

// LoadConfig builds a Config from defaults, the optional YAML file at path, a
// .env file in the working directory, and RESTMODEL_* environment variables,
// in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Database.Host = envString("RESTMODEL_DB_HOST", cfg.Database.Host)
	cfg.Database.Port = envInt("RESTMODEL_DB_PORT", cfg.Database.Port)
	cfg.Database.Database = envString("RESTMODEL_DB_NAME", cfg.Database.Database)
	cfg.Database.Username = envString("RESTMODEL_DB_USER", cfg.Database.Username)
	cfg.Database.Password = envString("RESTMODEL_DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SSLMode = envString("RESTMODEL_DB_SSL_MODE", cfg.Database.SSLMode)
	cfg.Database.MaxConnections = envInt("RESTMODEL_DB_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.UseIAM = envBool("RESTMODEL_DB_USE_IAM", cfg.Database.UseIAM)
	cfg.Database.AWSRegion = envString("RESTMODEL_DB_AWS_REGION", cfg.Database.AWSRegion)

	cfg.Server.Port = envString("RESTMODEL_PORT", cfg.Server.Port)

	cfg.Cache.Enabled = envBool("RESTMODEL_CACHE_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.Addr = envString("RESTMODEL_REDIS_ADDR", cfg.Cache.Addr)
	cfg.Cache.Password = envString("RESTMODEL_REDIS_PASSWORD", cfg.Cache.Password)
	cfg.Cache.DB = envInt("RESTMODEL_REDIS_DB", cfg.Cache.DB)

	cfg.Generator.Mode = envString("RESTMODEL_GENERATOR_MODE", cfg.Generator.Mode)
	cfg.Generator.Endpoint = envString("RESTMODEL_GENERATOR_ENDPOINT", cfg.Generator.Endpoint)
	cfg.Generator.Timeout = envDuration("RESTMODEL_GENERATOR_TIMEOUT", cfg.Generator.Timeout)

	cfg.Export.Bucket = envString("RESTMODEL_EXPORT_BUCKET", cfg.Export.Bucket)
	cfg.Export.Region = envString("RESTMODEL_EXPORT_REGION", cfg.Export.Region)
	cfg.Export.Endpoint = envString("RESTMODEL_EXPORT_ENDPOINT", cfg.Export.Endpoint)
	cfg.Export.AccessKeyID = envString("RESTMODEL_EXPORT_ACCESS_KEY_ID", cfg.Export.AccessKeyID)
	cfg.Export.SecretAccessKey = envString("RESTMODEL_EXPORT_SECRET_ACCESS_KEY", cfg.Export.SecretAccessKey)

	cfg.Mock.ValidateBodies = envBool("RESTMODEL_MOCK_VALIDATE_BODIES", cfg.Mock.ValidateBodies)

	cfg.Logging.Level = envString("RESTMODEL_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envString("RESTMODEL_LOG_FORMAT", cfg.Logging.Format)

	cfg.Telemetry.Enabled = envBool("RESTMODEL_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
