// Package config loads application configuration from environment
// variables with the FIELDWORK_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
	Track    TrackConfig
	Export   ExportConfig
	SSO      SSOConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds Postgres configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	ConnTimeout time.Duration
}

// RedisConfig holds Redis configuration for distributed rate limiting
type RedisConfig struct {
	Addr              string
	Password          string
	DB                int
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// TrackConfig holds outbound sync configuration for the Track tables
// service
type TrackConfig struct {
	Enabled  bool
	URL      string
	Token    string
	Schedule string
}

// ExportConfig holds CSV export and S3 archival configuration
type ExportConfig struct {
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// SSOConfig holds OIDC single-sign-on configuration
type SSOConfig struct {
	Enabled      bool
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// DefaultOrgID is the organization newly provisioned users join
	DefaultOrgID int64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("FIELDWORK_HOST", "0.0.0.0"),
			Port:            getEnv("FIELDWORK_PORT", "8080"),
			ReadTimeout:     getEnvDuration("FIELDWORK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("FIELDWORK_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("FIELDWORK_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("FIELDWORK_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:         getEnv("FIELDWORK_POSTGRES_URL", ""),
			ReplicaURLs: splitNonEmpty(getEnv("FIELDWORK_POSTGRES_REPLICA_URLS", "")),
			MaxConns:    getEnvInt("FIELDWORK_POSTGRES_MAX_CONNS", 25),
			MinConns:    getEnvInt("FIELDWORK_POSTGRES_MIN_CONNS", 5),
			ConnTimeout: getEnvDuration("FIELDWORK_POSTGRES_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:              getEnv("FIELDWORK_REDIS_ADDR", ""),
			Password:          getEnv("FIELDWORK_REDIS_PASSWORD", ""),
			DB:                getEnvInt("FIELDWORK_REDIS_DB", 0),
			RateLimitEnabled:  getEnvBool("FIELDWORK_RATE_LIMIT_ENABLED", true),
			RateLimitRequests: getEnvInt("FIELDWORK_RATE_LIMIT_REQUESTS", 300),
			RateLimitWindow:   getEnvDuration("FIELDWORK_RATE_LIMIT_WINDOW", time.Minute),
		},
		Logging: LoggingConfig{
			Level: getEnv("FIELDWORK_LOG_LEVEL", "info"),
		},
		Track: TrackConfig{
			Enabled:  getEnvBool("FIELDWORK_TRACK_ENABLED", false),
			URL:      getEnv("FIELDWORK_TRACK_URL", ""),
			Token:    getEnv("FIELDWORK_TRACK_TOKEN", ""),
			Schedule: getEnv("FIELDWORK_TRACK_SCHEDULE", "0 2 * * *"),
		},
		Export: ExportConfig{
			S3Bucket:    getEnv("FIELDWORK_EXPORT_S3_BUCKET", ""),
			S3Region:    getEnv("FIELDWORK_EXPORT_S3_REGION", "us-east-1"),
			S3Endpoint:  getEnv("FIELDWORK_EXPORT_S3_ENDPOINT", ""),
			S3AccessKey: getEnv("FIELDWORK_EXPORT_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("FIELDWORK_EXPORT_S3_SECRET_KEY", ""),
		},
		SSO: SSOConfig{
			Enabled:      getEnvBool("FIELDWORK_SSO_ENABLED", false),
			IssuerURL:    getEnv("FIELDWORK_SSO_ISSUER_URL", ""),
			ClientID:     getEnv("FIELDWORK_SSO_CLIENT_ID", ""),
			ClientSecret: getEnv("FIELDWORK_SSO_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("FIELDWORK_SSO_REDIRECT_URL", ""),
			DefaultOrgID: getEnvInt64("FIELDWORK_SSO_DEFAULT_ORG_ID", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and coherent
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("FIELDWORK_POSTGRES_URL is required")
	}
	if c.Redis.RateLimitEnabled && c.Redis.RateLimitRequests <= 0 {
		return fmt.Errorf("FIELDWORK_RATE_LIMIT_REQUESTS must be positive")
	}
	if c.Track.Enabled {
		if c.Track.URL == "" {
			return fmt.Errorf("FIELDWORK_TRACK_URL is required when sync is enabled")
		}
		if c.Track.Token == "" {
			return fmt.Errorf("FIELDWORK_TRACK_TOKEN is required when sync is enabled")
		}
	}
	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" || c.SSO.ClientID == "" || c.SSO.ClientSecret == "" {
			return fmt.Errorf("FIELDWORK_SSO_ISSUER_URL, FIELDWORK_SSO_CLIENT_ID and FIELDWORK_SSO_CLIENT_SECRET are required when SSO is enabled")
		}
		if c.SSO.DefaultOrgID <= 0 {
			return fmt.Errorf("FIELDWORK_SSO_DEFAULT_ORG_ID is required when SSO is enabled")
		}
	}
	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
