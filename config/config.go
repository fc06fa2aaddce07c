package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// API credentials are NOT configured here: they arrive at runtime through the
// configure endpoint and are persisted under DataDir.
type Config struct {
	// HTTP
	ListenAddr string

	// Trading
	Product             string
	CandleLimit         int
	TradeAmountUSD      float64
	ConfidenceThreshold float64
	StrategyCron        string

	// Storage
	DataDir    string
	SQLitePath string

	// Series cache: in-process by default, Redis when REDIS_ADDR is set.
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	// Exchange API override, mainly for tests and sandboxes.
	ExchangeBaseURL string

	LogLevel string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env file")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		Product:             getEnv("PRODUCT", "BTC-USD"),
		CandleLimit:         getEnvInt("CANDLE_LIMIT", 300),
		TradeAmountUSD:      getEnvFloat("TRADE_AMOUNT_USD", 100),
		ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.6),
		StrategyCron:        getEnv("STRATEGY_CRON", "0 * * * *"),

		DataDir:    getEnv("DATA_DIR", "data"),
		SQLitePath: getEnv("SQLITE_PATH", "data/tradedeck.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CacheTTL:      getEnvDuration("CACHE_TTL", time.Minute),

		ExchangeBaseURL: getEnv("EXCHANGE_BASE_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return fallback
	}
	return d
}
