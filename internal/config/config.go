package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	WhatsApp WhatsAppConfig
	Tracking TrackingConfig
	Dispatch DispatchConfig
	Security SecurityConfig
	Realtime RealtimeConfig
	LogLevel string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port               string
	Host               string
	CORSAllowedOrigins []string
}

// DatabaseConfig holds the order store configuration
type DatabaseConfig struct {
	Path string
}

// WhatsAppConfig holds WhatsApp configuration
type WhatsAppConfig struct {
	DBPath      string
	AutoConnect bool
	PrintQR     bool
	SendTimeout time.Duration
	EventBuffer int
}

// TrackingConfig holds carrier lookup configuration
type TrackingConfig struct {
	APIURL       string
	APIKey       string
	Timeout      time.Duration
	RetryCount   int
	PollInterval time.Duration
}

// DispatchConfig holds notification dispatch configuration
type DispatchConfig struct {
	Interval time.Duration
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	APIKey string
}

// RealtimeConfig holds dashboard channel configuration
type RealtimeConfig struct {
	SendBuffer   int
	PingInterval time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "3000"),
			Host:               getEnv("HOST", "0.0.0.0"),
			CORSAllowedOrigins: parseStringList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			Path: getEnv("APP_DB_PATH", "./db/rastreio.db"),
		},
		WhatsApp: WhatsAppConfig{
			DBPath:      getEnv("WA_DB_PATH", "./db/whatsmeow.db"),
			AutoConnect: parseBool(getEnv("WA_AUTO_CONNECT", "true"), true),
			PrintQR:     parseBool(getEnv("WA_PRINT_QR", "true"), true),
			SendTimeout: parseDuration(getEnv("WA_SEND_TIMEOUT", "20s"), 20*time.Second),
			EventBuffer: parseInt(getEnv("WA_EVENT_BUFFER", "256"), 256),
		},
		Tracking: TrackingConfig{
			APIURL:       getEnv("TRACKING_API_URL", "https://api.siterastreio.com.br/track"),
			APIKey:       getEnv("SITERASTREIO_API_KEY", ""),
			Timeout:      parseDuration(getEnv("TRACKING_TIMEOUT", "15s"), 15*time.Second),
			RetryCount:   parseInt(getEnv("TRACKING_RETRY_COUNT", "2"), 2),
			PollInterval: parseDuration(getEnv("TRACKING_POLL_INTERVAL", "5m"), 5*time.Minute),
		},
		Dispatch: DispatchConfig{
			Interval: parseDuration(getEnv("DISPATCH_INTERVAL", "1m"), time.Minute),
		},
		Security: SecurityConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		Realtime: RealtimeConfig{
			SendBuffer:   parseInt(getEnv("WS_SEND_BUFFER", "64"), 64),
			PingInterval: parseDuration(getEnv("WS_PING_INTERVAL", "30s"), 30*time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Dispatch.Interval <= 0 {
		return fmt.Errorf("DISPATCH_INTERVAL must be positive")
	}
	if c.Tracking.PollInterval <= 0 {
		return fmt.Errorf("TRACKING_POLL_INTERVAL must be positive")
	}
	if c.WhatsApp.SendTimeout <= 0 {
		return fmt.Errorf("WA_SEND_TIMEOUT must be positive")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	return nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseInt parses string to int with default value
func parseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// parseBool parses string to bool with default value
func parseBool(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// parseDuration parses string to time.Duration with default value
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// parseStringList parses comma-separated string to slice
func parseStringList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
