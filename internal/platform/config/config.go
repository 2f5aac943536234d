// Package config reads process configuration from the environment. A .env
// file in the working directory, when present, is loaded first and never
// overrides variables that are already set.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Server    Server
	Log       Log
	Database  Database
	Redis     RedisConfig
	Kafka     Kafka
	Registry  Registry
	RateLimit RateLimit
	Billing   Billing
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	AdminToken        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type Log struct {
	Level  string
	Format string
}

// Database is optional; an empty URL selects in-memory stores.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// StoreTimeout bounds every persistence call made on the request path.
	StoreTimeout time.Duration
}

// RedisConfig is optional; an empty URL disables Redis-backed stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka is optional; no brokers disables the audit stream.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

type Registry struct {
	CacheMaxAgeDays int
	ProviderTimeout time.Duration
	Coalesce        bool

	BrasilAPIURL string
	OpenCNPJURL  string
	CNPJaURL     string
	CNPJaToken   string
	ReceitaWSURL string
	// ReceitaWSPerMinute throttles the public ReceitaWS tier client-side.
	ReceitaWSPerMinute int
}

type RateLimit struct {
	// DefaultPerSecond applies to accounts without a plan.
	DefaultPerSecond int
	Window           time.Duration
	SweepInterval    time.Duration
}

type Billing struct {
	// DefaultCostMillis is charged per lookup when an account has no plan.
	DefaultCostMillis int64
	// WelcomeBonusMillis is granted to every new account.
	WelcomeBonusMillis int64
}

// Load reads .env (if any) and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:              getEnv("CNPJOTA_ADDR", ":8080"),
			AdminToken:        getEnv("ADMIN_API_TOKEN", ""),
			ReadHeaderTimeout: getDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ShutdownTimeout:   getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: Log{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: Database{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			StoreTimeout:    getDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    getList("KAFKA_BROKERS"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "cnpjota.queries"),
		},
		Registry: Registry{
			CacheMaxAgeDays:    getInt("CNPJ_CACHE_DAYS", 15),
			ProviderTimeout:    getDuration("PROVIDER_TIMEOUT", 10*time.Second),
			Coalesce:           getBool("LOOKUP_COALESCE", false),
			BrasilAPIURL:       getEnv("BRASILAPI_URL", ""),
			OpenCNPJURL:        getEnv("OPENCNPJ_URL", ""),
			CNPJaURL:           getEnv("CNPJA_URL", ""),
			CNPJaToken:         getEnv("CNPJA_API_TOKEN", ""),
			ReceitaWSURL:       getEnv("RECEITAWS_URL", ""),
			ReceitaWSPerMinute: getInt("RECEITAWS_PER_MINUTE", 3),
		},
		RateLimit: RateLimit{
			DefaultPerSecond: getInt("API_RATE_LIMIT_PER_SECOND", 2),
			Window:           getDuration("API_RATE_LIMIT_WINDOW", time.Second),
			SweepInterval:    getDuration("API_RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		},
		Billing: Billing{
			DefaultCostMillis:  getInt64("DEFAULT_CREDIT_COST_MILLIS", 330),
			WelcomeBonusMillis: getInt64("WELCOME_BONUS_MILLIS", 100_000),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

// getDuration accepts Go durations ("1500ms") or bare milliseconds ("1500").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
