package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"lottery/database"
	"lottery/models"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Transport configuration
	GRPCAddr    string // Listen address of the gRPC host surface
	NATSServers string // NATS server addresses (comma-separated), empty disables forwarding

	// Lottery configuration
	MaxPlayers            int                // Capacity of newly initialized rounds
	RoundLayout           models.RoundLayout // Layout of newly initialized rounds
	AllowUnverifiedPayout bool               // Let counter rounds pay the claimed payee unchecked
	SettleInterval        time.Duration      // Round age at which the worker settles it, 0 disables

	// Observability configuration
	OTelEnabled          bool
	OTelExporterType     string // "console", "otlp" or "none"
	OTelOTLPEndpoint     string
	OTelExportIntervalMS int

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// NATSServerList splits NATSServers into individual addresses
func (c *Config) NATSServerList() []string {
	var servers []string
	for _, s := range strings.Split(c.NATSServers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return servers
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		GRPCAddr:    getEnvWithDefault("GRPC_ADDR", ":9090"),
		NATSServers: os.Getenv("NATS_SERVERS"),

		MaxPlayers:            models.DefaultMaxPlayers,
		RoundLayout:           models.RoundLayoutRoster,
		AllowUnverifiedPayout: os.Getenv("ALLOW_UNVERIFIED_PAYOUT") == "true",

		OTelEnabled:          os.Getenv("OTEL_ENABLED") == "true",
		OTelExporterType:     getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:     getEnvWithDefault("OTEL_OTLP_ENDPOINT", "localhost:4317"),
		OTelExportIntervalMS: 30000,

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if maxPlayers := os.Getenv("MAX_PLAYERS"); maxPlayers != "" {
		parsed, err := strconv.Atoi(maxPlayers)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_PLAYERS %q: %w", maxPlayers, err)
		}
		config.MaxPlayers = parsed
	}
	if layout := os.Getenv("ROUND_LAYOUT"); layout != "" {
		parsed, err := models.ParseRoundLayout(layout)
		if err != nil {
			return nil, err
		}
		config.RoundLayout = parsed
	}
	if interval := os.Getenv("SETTLE_INTERVAL"); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid SETTLE_INTERVAL %q: %w", interval, err)
		}
		config.SettleInterval = parsed
	}
	if ms := os.Getenv("OTEL_EXPORT_INTERVAL_MS"); ms != "" {
		if parsed, err := strconv.Atoi(ms); err == nil && parsed > 0 {
			config.OTelExportIntervalMS = parsed
		}
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.MaxPlayers <= 0 || c.MaxPlayers > models.MaxRosterCapacity {
		return fmt.Errorf("MAX_PLAYERS must be between 1 and %d, got %d", models.MaxRosterCapacity, c.MaxPlayers)
	}
	if !c.RoundLayout.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidLayout, c.RoundLayout)
	}
	if c.SettleInterval < 0 {
		return fmt.Errorf("SETTLE_INTERVAL cannot be negative")
	}
	switch c.OTelExporterType {
	case "console", "otlp", "none":
	default:
		return fmt.Errorf("unsupported OTEL_EXPORTER_TYPE %q", c.OTelExporterType)
	}

	if c.Environment != "test" {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
			return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}
	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		GRPCAddr:             ":0",
		MaxPlayers:           models.DefaultMaxPlayers,
		RoundLayout:          models.RoundLayoutRoster,
		OTelExporterType:     "none",
		OTelExportIntervalMS: 30000,
		LogLevel:             "debug",
		LogFormat:            "text",
		Environment:          "test",
	}
}
