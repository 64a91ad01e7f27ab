package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Payment   PaymentConfig
	Booking   BookingConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	SMS       SMSConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Security  SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	RunMigrations      bool
}

// JWTConfig holds the settings used to verify bearer credentials
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// PaymentConfig holds Stripe Checkout configuration
type PaymentConfig struct {
	SecretKey      string // sk_... (SECRET - never expose to client)
	PublishableKey string // pk_... returned by GET /payments/config
	WebhookSecret  string // whsec_... used to verify webhook signatures
	ClientURL      string // Frontend base URL used for success/cancel redirects
	Currency       string
	SessionTTL     time.Duration
	Timeout        time.Duration // Upper bound for a single gateway call
}

// BookingConfig holds pricing and booking-flow settings
type BookingConfig struct {
	CleaningFee float64
	ServiceFee  float64
	AllowDirect bool // Enables POST /bookings without payment
}

// RedisConfig holds availability cache configuration. Empty Addr disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// KafkaConfig holds event publishing configuration. No brokers disables publishing.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Mode     string // "dev" logs messages, "production" sends them
	Method   string // "url" or "api_v2"
	APIURL   string
	ESMSQK   string // Dialog URL message key (for URL method)
	Username string
	Password string
	Mask     string
}

// RateLimitConfig holds guest lookup throttling configuration
type RateLimitConfig struct {
	MaxReferenceAttempts int
	ReferenceWindow      time.Duration
	MaxIPAttempts        int
	IPWindow             time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog   bool
	EnableAuditLog     bool
	AuditRetentionDays int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			RunMigrations:      getEnvAsBool("DATABASE_RUN_MIGRATIONS", true),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Payment: PaymentConfig{
			SecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			PublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			WebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
			ClientURL:      strings.TrimRight(getEnv("CLIENT_URL", "http://localhost:5173"), "/"),
			Currency:       strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
			SessionTTL:     time.Duration(getEnvAsInt("CHECKOUT_SESSION_TTL_MINUTES", 30)) * time.Minute,
			Timeout:        time.Duration(getEnvAsInt("PAYMENT_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Booking: BookingConfig{
			CleaningFee: getEnvAsFloat("CLEANING_FEE", 50),
			ServiceFee:  getEnvAsFloat("SERVICE_FEE", 80),
			AllowDirect: getEnvAsBool("BOOKING_ALLOW_DIRECT", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: time.Duration(getEnvAsInt("AVAILABILITY_CACHE_TTL_SECONDS", 60)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvAsSlice("KAFKA_BROKERS", nil),
			TopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		},
		SMS: SMSConfig{
			Mode:     getEnv("SMS_MODE", "dev"),
			Method:   getEnv("DIALOG_SMS_METHOD", "url"),
			APIURL:   getEnv("DIALOG_SMS_API_URL", "https://e-sms.dialog.lk/api/v2"),
			ESMSQK:   getEnv("DIALOG_SMS_ESMSQK", ""),
			Username: getEnv("DIALOG_SMS_USERNAME", ""),
			Password: getEnv("DIALOG_SMS_PASSWORD", ""),
			Mask:     getEnv("DIALOG_SMS_MASK", "Staylet"),
		},
		RateLimit: RateLimitConfig{
			MaxReferenceAttempts: getEnvAsInt("GUEST_LOOKUP_MAX_REFERENCE_ATTEMPTS", 5),
			ReferenceWindow:      time.Duration(getEnvAsInt("GUEST_LOOKUP_REFERENCE_WINDOW_MINUTES", 15)) * time.Minute,
			MaxIPAttempts:        getEnvAsInt("GUEST_LOOKUP_MAX_IP_ATTEMPTS", 30),
			IPWindow:             time.Duration(getEnvAsInt("GUEST_LOOKUP_IP_WINDOW_MINUTES", 60)) * time.Minute,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Stripe-Signature"}),
		},
		Security: SecurityConfig{
			EnableRequestLog:   getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:     getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
			AuditRetentionDays: getEnvAsInt("AUDIT_RETENTION_DAYS", 90),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Payment.SessionTTL < 30*time.Minute {
		// Stripe rejects checkout sessions that expire sooner than 30 minutes
		return fmt.Errorf("CHECKOUT_SESSION_TTL_MINUTES must be at least 30")
	}

	if c.Payment.Timeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT_SECONDS must be positive")
	}

	if c.Booking.CleaningFee < 0 || c.Booking.ServiceFee < 0 {
		return fmt.Errorf("CLEANING_FEE and SERVICE_FEE cannot be negative")
	}

	if c.IsProduction() {
		if c.Payment.SecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required in production")
		}
		if c.Payment.WebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
		}
	}

	// Validate SMS configuration only in production mode
	if c.SMS.Mode == "production" {
		switch c.SMS.Method {
		case "url":
			if c.SMS.ESMSQK == "" {
				return fmt.Errorf("DIALOG_SMS_ESMSQK is required for URL method in production mode")
			}
		case "api_v2":
			if c.SMS.APIURL == "" || c.SMS.Username == "" || c.SMS.Password == "" {
				return fmt.Errorf("DIALOG_SMS_API_URL, DIALOG_SMS_USERNAME and DIALOG_SMS_PASSWORD are required for API v2 method")
			}
		default:
			return fmt.Errorf("invalid SMS method: %s (must be 'url' or 'api_v2')", c.SMS.Method)
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
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
		log.Printf("Invalid number value for %s, using default: %.2f", key, defaultValue)
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
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
