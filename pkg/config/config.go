package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database (optional, detection/backtest audit trail)
	Database DatabaseConfig

	// Redis (optional, result cache + API rate limit)
	Redis RedisConfig

	// Regime engine
	Regime RegimeConfig

	// API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database URL was provided
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// RegimeConfig holds regime detection and backtest defaults
type RegimeConfig struct {
	ConfigPath        string  // regime YAML (empty = embedded default)
	MacroDataPath     string  // macro JSON array
	ReturnsDataPath   string  // return series JSON
	SmoothingFactor   float64 // EMA weight on previous posterior
	SmoothingOverride bool    // SMOOTHING_FACTOR set, wins over the YAML value
	RiskFreeRate      float64 // annual, used for Sharpe
	InitialCapital    float64
	Rebalance         string // monthly, quarterly, annual
	RefreshSchedule   string // cron (with seconds)
	CacheTTL          time.Duration
}

// APIConfig holds HTTP API settings
type APIConfig struct {
	RateLimit    float64 // requests per second per client
	RateBurst    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration // covers POST /api/backtest

	// TrustedProxies IPs/CIDRs whose X-Forwarded-For is honoured (empty = never)
	TrustedProxies []string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Regime: RegimeConfig{
			ConfigPath:        getEnv("REGIME_CONFIG_PATH", ""),
			MacroDataPath:     getEnv("MACRO_DATA_PATH", "data/macro.json"),
			ReturnsDataPath:   getEnv("RETURNS_DATA_PATH", ""),
			SmoothingFactor:   getEnvAsFloat("SMOOTHING_FACTOR", 0.3),
			SmoothingOverride: os.Getenv("SMOOTHING_FACTOR") != "",
			RiskFreeRate:      getEnvAsFloat("RISK_FREE_RATE", 0.0),
			InitialCapital:    getEnvAsFloat("INITIAL_CAPITAL", 100_000),
			Rebalance:         getEnv("REBALANCE_FREQUENCY", "monthly"),
			RefreshSchedule:   getEnv("REFRESH_SCHEDULE", "0 0 6 1 * *"),
			CacheTTL:          getEnvAsDuration("REGIME_CACHE_TTL", "24h"),
		},

		API: APIConfig{
			RateLimit:    getEnvAsFloat("API_RATE_LIMIT", 20),
			RateBurst:    getEnvAsInt("API_RATE_BURST", 40),
			ReadTimeout:  getEnvAsDuration("API_READ_TIMEOUT", "15s"),
			WriteTimeout: getEnvAsDuration("API_WRITE_TIMEOUT", "150s"),

			TrustedProxies: getEnvAsList("API_TRUSTED_PROXIES"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Regime.SmoothingFactor < 0 || c.Regime.SmoothingFactor > 1 {
		return fmt.Errorf("SMOOTHING_FACTOR must be in [0, 1], got %v", c.Regime.SmoothingFactor)
	}

	switch c.Regime.Rebalance {
	case "monthly", "quarterly", "annual":
	default:
		return fmt.Errorf("REBALANCE_FREQUENCY must be one of: monthly, quarterly, annual")
	}

	if c.Regime.InitialCapital <= 0 {
		return fmt.Errorf("INITIAL_CAPITAL must be > 0")
	}

	if c.API.RateLimit <= 0 || c.API.RateBurst <= 0 {
		return fmt.Errorf("API_RATE_LIMIT and API_RATE_BURST must be > 0")
	}

	for _, p := range c.API.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("API_TRUSTED_PROXIES: invalid IP or CIDR %q", p)
		}
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsList comma-separated values, blanks dropped
func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
