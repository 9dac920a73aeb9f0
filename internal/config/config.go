package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/util"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Gemini   GeminiConfig
	OpenAI   OpenAIConfig
	Apify    ApifyConfig
	Storage  StorageConfig
	Scrape   ScrapeConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN renders a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	EnableFallback bool
}

type ApifyConfig struct {
	Token        string
	BaseURL      string
	ActorID      string
	PollInterval time.Duration
	BatchSize    int
}

type StorageConfig struct {
	Bucket          string
	CredentialsJSON string
	CredentialsFile string
	PublicBaseURL   string
}

// Enabled reports whether media caching to GCS is configured.
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

type ScrapeConfig struct {
	MaxVideoCount   int
	ExploreLinkPage bool
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:        getEnv("SERVER_ADDR", ":8080"),
			CORSOrigins: util.SplitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "outreach"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "outreach"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", constants.AIInputLimits.DefaultModel),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			EnableFallback: getEnvBool("OPENAI_ENABLE_FALLBACK", true),
		},
		Apify: ApifyConfig{
			Token:        getEnv("APIFY_TOKEN", ""),
			BaseURL:      getEnv("APIFY_BASE_URL", constants.ApifyConfig.BaseURL),
			ActorID:      getEnv("APIFY_ACTOR_ID", constants.ApifyConfig.ActorID),
			PollInterval: getEnvDuration("APIFY_POLL_INTERVAL", constants.ScrapeConfig.PollInterval),
			BatchSize:    getEnvInt("APIFY_BATCH_SIZE", constants.ScrapeConfig.BatchSize),
		},
		Storage: StorageConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsJSON: getEnv("GCS_CREDENTIALS_JSON", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			PublicBaseURL:   getEnv("GCS_PUBLIC_BASE_URL", "https://storage.googleapis.com"),
		},
		Scrape: ScrapeConfig{
			MaxVideoCount:   getEnvInt("SCRAPE_MAX_VIDEO_COUNT", constants.ScrapeConfig.MaxVideoCount),
			ExploreLinkPage: getEnvBool("SCRAPE_EXPLORE_LINK_PAGE", false),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks what the process needs to boot. Provider credentials
// (Gemini, Apify) are checked lazily so a missing key fails the run, not the server.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("SERVER_ADDR is required")
	}
	if c.Postgres.Host == "" || c.Postgres.Database == "" {
		return fmt.Errorf("POSTGRES_HOST and POSTGRES_DB are required")
	}
	if c.Apify.BatchSize <= 0 || c.Apify.BatchSize > constants.ScrapeConfig.BatchSize {
		return fmt.Errorf("APIFY_BATCH_SIZE must be between 1 and %d", constants.ScrapeConfig.BatchSize)
	}
	if c.Apify.PollInterval <= 0 {
		return fmt.Errorf("APIFY_POLL_INTERVAL must be positive")
	}
	if c.Scrape.MaxVideoCount <= 0 {
		return fmt.Errorf("SCRAPE_MAX_VIDEO_COUNT must be positive")
	}
	if c.Storage.Enabled() && c.Storage.CredentialsJSON == "" && c.Storage.CredentialsFile == "" {
		return fmt.Errorf("GCS_CREDENTIALS_JSON or GCS_CREDENTIALS_FILE is required when GCS_BUCKET is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("5s") or plain seconds ("5").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
