package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Otel     OtelConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	EventLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string
	Connection      string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	Verbose         bool
}

// OtelConfig controls request tracing. Tracing is off unless Enabled.
type OtelConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

// EngineConfig tunes the connection lifecycle rules.
type EngineConfig struct {
	FreeConnectionLimit int
	StoreReadTimeout    time.Duration
	WriteRetryAttempts  int
	PendingTTL          time.Duration
	ExpirySweepInterval time.Duration
	MessageMaxLength    int
	NoteMaxLength       int
	EventsTopic         string
	VersionCacheTTL     time.Duration
	DedupWindow         time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	cfg := &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			EventLogFilePath:   getEnv("EVENT_LOG_FILE_PATH", "logs/events.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Connection:      getEnv("DB_CONNECTION_STRING", ""),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			Verbose:         getEnvAsBool("DB_LOG_SQL", false),
		},
		Engine: EngineConfig{
			FreeConnectionLimit: getEnvAsInt("FREE_CONNECTION_LIMIT", 3),
			StoreReadTimeout:    getEnvAsDuration("STORE_READ_TIMEOUT", 15*time.Second),
			WriteRetryAttempts:  clamp(getEnvAsInt("WRITE_RETRY_ATTEMPTS", 2), 1, 2),
			PendingTTL:          getEnvAsDuration("PENDING_TTL", 30*24*time.Hour),
			ExpirySweepInterval: getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", time.Hour),
			MessageMaxLength:    getEnvAsInt("MESSAGE_MAX_LENGTH", 4000),
			NoteMaxLength:       getEnvAsInt("NOTE_MAX_LENGTH", 2000),
			EventsTopic:         getEnv("EVENTS_TOPIC", "connection.events"),
			VersionCacheTTL:     getEnvAsDuration("VERSION_CACHE_TTL", time.Minute),
			DedupWindow:         getEnvAsDuration("DEDUP_WINDOW", 10*time.Minute),
		},
		Otel: OtelConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "care-connect-backend"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
	}
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Validate reports every problem at once so a misconfigured deploy fails with one message.
func (c *Config) Validate() error {
	var errs []error
	if c.App.JwtSecret == "" && c.App.Environment != "development" && c.App.Environment != "test" {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Connection == "" {
			errs = append(errs, errors.New("DB_CONNECTION_STRING is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or memory, got %q", c.Database.Driver))
	}
	if c.Engine.FreeConnectionLimit < 0 {
		errs = append(errs, errors.New("FREE_CONNECTION_LIMIT must not be negative"))
	}
	if c.Engine.StoreReadTimeout <= 0 {
		errs = append(errs, errors.New("STORE_READ_TIMEOUT must be positive"))
	}
	if c.Engine.PendingTTL <= 0 || c.Engine.ExpirySweepInterval <= 0 {
		errs = append(errs, errors.New("PENDING_TTL and EXPIRY_SWEEP_INTERVAL must be positive"))
	}
	if c.Engine.MessageMaxLength <= 0 || c.Engine.NoteMaxLength <= 0 {
		errs = append(errs, errors.New("MESSAGE_MAX_LENGTH and NOTE_MAX_LENGTH must be positive"))
	}
	if c.Otel.Enabled && (c.Otel.Endpoint == "" || c.Otel.ServiceName == "") {
		errs = append(errs, errors.New("OTEL_EXPORTER_OTLP_ENDPOINT and OTEL_SERVICE_NAME are required when tracing is enabled"))
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be between 0 and 1"))
	}
	if c.Engine.DedupWindow <= 0 {
		errs = append(errs, errors.New("DEDUP_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
