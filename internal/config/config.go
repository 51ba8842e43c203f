package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel string

	OTLPEndpoint string

	RedisURL string

	// Webhook ingest rate limit, enforced per line code when redis is
	// configured. Zero disables it.
	WebhookRate  float64
	WebhookBurst int

	FTP FTPConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// SeedCruiseLines is a semicolon separated code=name list created on
	// startup, e.g. "7=Royal Caribbean;16=Cunard".
	SeedCruiseLines string

	Memory MemoryConfig
}

// FTPConfig describes the supplier transfer channel.
type FTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	PoolSize int

	ConnectTimeout  time.Duration
	KeepAliveEvery  time.Duration
	IdleThreshold   time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// MemoryConfig holds the supervisor thresholds in bytes.
type MemoryConfig struct {
	PollInterval     time.Duration
	WarningBytes     uint64
	CriticalBytes    uint64
	RestartBytes     uint64
	DrainWaitOnExit  time.Duration
	CriticalCooldown time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "cruisesync"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		LogLevel: getenv("LOG_LEVEL", "info"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		RedisURL: getenv("REDIS_URL", "redis://localhost:6379"),

		WebhookRate:  getenvFloat("WEBHOOK_RATE_PER_SECOND", 5),
		WebhookBurst: getenvInt("WEBHOOK_BURST", 10),

		FTP: FTPConfig{
			Host:     getenv("SUPPLIER_FTP_HOST", "ftpeu1prod.traveltek.net"),
			Port:     getenv("SUPPLIER_FTP_PORT", "22"),
			User:     getenv("SUPPLIER_FTP_USER", ""),
			Password: getenv("SUPPLIER_FTP_PASSWORD", ""),
			PoolSize: getenvInt("SUPPLIER_FTP_POOL_SIZE", 4),

			ConnectTimeout:  getenvDuration("SUPPLIER_FTP_CONNECT_TIMEOUT", 20*time.Second),
			KeepAliveEvery:  getenvDuration("SUPPLIER_FTP_KEEPALIVE_EVERY", 30*time.Second),
			IdleThreshold:   getenvDuration("SUPPLIER_FTP_IDLE_THRESHOLD", 60*time.Second),
			BreakerFailures: getenvInt("SUPPLIER_FTP_BREAKER_FAILURES", 5),
			BreakerCooldown: getenvDuration("SUPPLIER_FTP_BREAKER_COOLDOWN", 2*time.Minute),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "cruisesync"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		SeedCruiseLines: getenv("SEED_CRUISE_LINES", ""),

		Memory: MemoryConfig{
			PollInterval:     getenvDuration("MEMORY_POLL_INTERVAL", 30*time.Second),
			WarningBytes:     getenvUint64("MEMORY_WARNING_BYTES", 1<<30),
			CriticalBytes:    getenvUint64("MEMORY_CRITICAL_BYTES", 3*(1<<29)),
			RestartBytes:     getenvUint64("MEMORY_RESTART_BYTES", 1<<31),
			DrainWaitOnExit:  getenvDuration("MEMORY_DRAIN_WAIT", 30*time.Second),
			CriticalCooldown: getenvDuration("MEMORY_CRITICAL_COOLDOWN", 15*time.Second),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvUint64(key string, def uint64) uint64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
