package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Provider names understood by the adapter registry.
const (
	ProviderOpenRouter  = "openrouter"
	ProviderGemini      = "gemini"
	ProviderHuggingFace = "huggingface"
	ProviderReplicate   = "replicate"
)

// Usage store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	UsageStore    UsageStoreConfig
	Dispatch      DispatchConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxUploadBytes  int64
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// RedisConfig holds the connection settings for the redis usage store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// UsageStoreConfig selects where per-credential usage counters are persisted.
type UsageStoreConfig struct {
	Backend    string
	SQLitePath string

	// Days of usage history kept before the cleanup worker purges it
	RetentionDays   int
	CleanupInterval time.Duration
}

// Retention returns the retention window as a duration.
func (u UsageStoreConfig) Retention() time.Duration {
	return time.Duration(u.RetentionDays) * 24 * time.Hour
}

// DispatchConfig controls the failover loop of the provider dispatcher.
type DispatchConfig struct {
	MaxAttempts int
	CallTimeout time.Duration
	Timezone    string
}

// ProviderConfig holds the settings of one upstream image provider.
// A provider with no APIKeys is not instantiated.
type ProviderConfig struct {
	Name       string
	APIKeys    []string
	BaseURL    string
	Model      string
	DailyLimit int // 0 means unlimited
	Timeout    time.Duration

	// OpenRouter attribution headers
	Referer string
	Title   string

	// Replicate prediction polling
	PollInterval time.Duration
	MaxPolls     int
}

// ProvidersConfig holds image provider configurations
type ProvidersConfig struct {
	OpenRouter  ProviderConfig
	Gemini      ProviderConfig
	HuggingFace ProviderConfig
	Replicate   ProviderConfig
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_BYTES", 20<<20)),
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", ""),
		},
		UsageStore: UsageStoreConfig{
			Backend:    strings.ToLower(getEnv("USAGE_STORE", StoreSQLite)),
			SQLitePath: getEnv("SQLITE_PATH", "data/usage.db"),

			RetentionDays:   getEnvAsInt("USAGE_RETENTION_DAYS", 7),
			CleanupInterval: getEnvAsDuration("USAGE_CLEANUP_INTERVAL", 6*time.Hour),
		},
		Dispatch: DispatchConfig{
			MaxAttempts: getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 3),
			CallTimeout: getEnvAsDuration("DISPATCH_CALL_TIMEOUT", 5*time.Minute),
			Timezone:    getEnv("USAGE_TIMEZONE", "UTC"),
		},
		Providers: ProvidersConfig{
			OpenRouter: loadProviderConfig(ProviderOpenRouter, "OPENROUTER",
				"https://openrouter.ai/api/v1", "google/gemini-2.5-flash-image-preview", 100),
			Gemini: loadProviderConfig(ProviderGemini, "GEMINI",
				"https://generativelanguage.googleapis.com/v1beta", "gemini-2.0-flash-exp", 1500),
			HuggingFace: loadProviderConfig(ProviderHuggingFace, "HUGGINGFACE",
				"https://api-inference.huggingface.co", "stabilityai/stable-diffusion-xl-base-1.0", 1000),
			Replicate: loadProviderConfig(ProviderReplicate, "REPLICATE",
				"https://api.replicate.com/v1",
				"stability-ai/sdxl:39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b", 50),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	cfg.Providers.OpenRouter.Referer = getEnv("OPENROUTER_REFERER", "https://imagegen-gateway.local")
	cfg.Providers.OpenRouter.Title = getEnv("OPENROUTER_TITLE", "Image Gen Gateway")
	cfg.Providers.Replicate.PollInterval = getEnvAsDuration("REPLICATE_POLL_INTERVAL", 5*time.Second)
	cfg.Providers.Replicate.MaxPolls = getEnvAsInt("REPLICATE_MAX_POLLS", 60)

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.UsageStore.Backend {
	case StoreMemory, StoreRedis:
	case StoreSQLite:
		if c.UsageStore.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite usage store")
		}
	case StorePostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	default:
		return fmt.Errorf("unknown usage store %q", c.UsageStore.Backend)
	}

	if c.UsageStore.RetentionDays < 1 {
		return fmt.Errorf("usage retention must be at least 1 day")
	}
	if c.UsageStore.CleanupInterval <= 0 {
		return fmt.Errorf("usage cleanup interval must be positive")
	}

	if c.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("dispatch max attempts must be at least 1")
	}
	if _, err := time.LoadLocation(c.Dispatch.Timezone); err != nil {
		return fmt.Errorf("invalid usage timezone %q: %w", c.Dispatch.Timezone, err)
	}

	// At least one provider credential required in production
	if c.IsProduction() && len(c.Providers.Enabled()) == 0 {
		return fmt.Errorf("at least one image provider must be configured in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// All returns every provider configuration in a fixed order.
func (p ProvidersConfig) All() []ProviderConfig {
	return []ProviderConfig{p.OpenRouter, p.Gemini, p.HuggingFace, p.Replicate}
}

// Enabled returns the providers that have at least one credential.
func (p ProvidersConfig) Enabled() []ProviderConfig {
	return lo.Filter(p.All(), func(pc ProviderConfig, _ int) bool {
		return len(pc.APIKeys) > 0
	})
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "imagegen"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadProviderConfig reads <PREFIX>_API_KEYS (or <PREFIX>_API_KEY) and the
// per-provider overrides.
func loadProviderConfig(name, prefix, baseURL, model string, dailyLimit int) ProviderConfig {
	raw := getEnv(prefix+"_API_KEYS", getEnv(prefix+"_API_KEY", ""))
	return ProviderConfig{
		Name:       name,
		APIKeys:    ParseCredentials(raw),
		BaseURL:    strings.TrimRight(getEnv(prefix+"_BASE_URL", baseURL), "/"),
		Model:      getEnv(prefix+"_MODEL", model),
		DailyLimit: getEnvAsInt(prefix+"_DAILY_LIMIT", dailyLimit),
		Timeout:    getEnvAsDuration(prefix+"_TIMEOUT", 2*time.Minute),
	}
}

// ParseCredentials splits a comma-separated credential list, trimming
// whitespace and dropping empty entries.
func ParseCredentials(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	values := ParseCredentials(os.Getenv(key))
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
