package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// JWT configuration
	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Redis configuration
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// WhatsApp engine configuration
	WhatsApp struct {
		BridgeURL        string
		BufferWindow     time.Duration
		MaxRetries       int
		SendDelayPerChar time.Duration
		ApologyText      string
	}

	// AI provider configuration
	AI struct {
		RunPollInterval time.Duration
		RunMaxPolls     int
		Greeting        string
	}

	// Cache settings
	Cache struct {
		StatsTTL time.Duration
		MaxSize  int
	}

	// Metrics configuration
	Metrics struct {
		Enabled bool
		Port    string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "8081")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
		instance.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+instance.Server.Port)

		// Database config
		instance.Database.Host = getEnvString("DB_HOST", "localhost")
		instance.Database.Port = getEnvString("DB_PORT", "5432")
		instance.Database.User = getEnvString("DB_USER", "postgres")
		instance.Database.Password = getEnvString("DB_PASSWORD", "postgres")
		instance.Database.Name = getEnvString("DB_NAME", "zapgpt")
		instance.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
		instance.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
		instance.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

		// JWT config
		instance.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
		instance.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

		// Security config
		instance.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
		instance.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
		instance.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
		instance.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")

		// Redis config
		instance.Redis.Addr = getEnvString("REDIS_URL", "")
		instance.Redis.Password = getEnvString("REDIS_PASSWORD", "")
		instance.Redis.DB = getEnvInt("REDIS_DB", 0)

		// WhatsApp engine config
		instance.WhatsApp.BridgeURL = getEnvString("WPP_BRIDGE_URL", "ws://localhost:21465/ws")
		instance.WhatsApp.BufferWindow = getEnvDuration("MESSAGE_BUFFER_WINDOW", 15*time.Second)
		instance.WhatsApp.MaxRetries = getEnvInt("AI_MAX_RETRIES", 3)
		instance.WhatsApp.SendDelayPerChar = getEnvDuration("SEND_DELAY_PER_CHAR", 100*time.Millisecond)
		instance.WhatsApp.ApologyText = getEnvString("APOLOGY_TEXT",
			"Desculpe, não consegui processar sua mensagem no momento. Tente novamente.")

		// AI provider config
		instance.AI.RunPollInterval = getEnvDuration("OPENAI_RUN_POLL_INTERVAL", 3*time.Second)
		instance.AI.RunMaxPolls = getEnvInt("OPENAI_RUN_MAX_POLLS", 30)
		instance.AI.Greeting = getEnvString("AI_GREETING", "Olá! Pode me chamar a qualquer hora 😊")

		// Cache settings
		instance.Cache.StatsTTL = getEnvDuration("STATS_CACHE_TTL", 30*time.Second)
		instance.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)

		// Metrics config
		instance.Metrics.Enabled = getEnvBool("METRICS_ENABLED", true)
		instance.Metrics.Port = getEnvString("METRICS_PORT", "2112")
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
