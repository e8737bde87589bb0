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
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Security configuration
	Security SecurityConfig

	// Booking rules
	Booking BookingConfig

	// Background jobs
	Maintenance MaintenanceConfig

	// Redis seat locks and seat map cache
	Redis RedisConfig

	// Kafka booking events
	Kafka KafkaConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Ticket SMS configuration
	SMS SMSConfig

	// Ticket delivery
	Ticket TicketConfig
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
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog bool
	EnableAuditLog   bool
}

// BookingConfig holds hold and cancellation rules
type BookingConfig struct {
	Currency            string
	DefaultHoldDuration time.Duration
	MaxHoldDuration     time.Duration
	MaxSeatsPerLeg      int
	CancellationCutoff  time.Duration // Non-admin cancellations closed this long before departure
	PolicyFile          string        // Optional YAML with refund tiers
}

// MaintenanceConfig holds background job schedules
type MaintenanceConfig struct {
	OrphanGrace       time.Duration
	CleanupSpec       string // cron spec with seconds
	AutoCompleteSpec  string
	HoldSweepInterval time.Duration
	BatchSize         int
	EnableCron        bool
}

// RedisConfig holds Redis connection settings. Empty Addr disables Redis.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	LockTTL    time.Duration
	SeatMapTTL time.Duration
}

// KafkaConfig holds Kafka settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers       []string
	BookingTopic  string
	TicketTopic   string
	ConsumerGroup string
}

// PaymentConfig holds online gateway settings
type PaymentConfig struct {
	Environment   string // "sandbox" or "production"
	GatewayURL    string
	MerchantKey   string
	MerchantToken string // SECRET - never expose to client
	Timeout       time.Duration
}

// SMSConfig holds ticket SMS gateway settings
type SMSConfig struct {
	Mode   string // "dev" logs messages, "production" sends them
	APIURL string
	APIKey string
	Sender string
}

// TicketConfig selects how issued tickets reach the booker
type TicketConfig struct {
	Dispatch  string // "inline" renders and sends in-process, "kafka" hands off to cmd/notifier
	OutputDir string // Rendered PDFs are written here when set
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
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 20),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsSeconds("DATABASE_CONN_MAX_LIFETIME", 300),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", "ebus-auth"),
			AccessTokenExpiry: getEnvAsSeconds("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
		Security: SecurityConfig{
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
		},
		Booking: BookingConfig{
			Currency:            getEnv("BOOKING_CURRENCY", "NPR"),
			DefaultHoldDuration: getEnvAsSeconds("HOLD_DURATION_SECONDS", 600),
			MaxHoldDuration:     getEnvAsSeconds("MAX_HOLD_DURATION_SECONDS", 1800),
			MaxSeatsPerLeg:      getEnvAsInt("MAX_SEATS_PER_LEG", 10),
			CancellationCutoff:  time.Duration(getEnvAsInt("CANCELLATION_CUTOFF_HOURS", 2)) * time.Hour,
			PolicyFile:          getEnv("CANCELLATION_POLICY_FILE", ""),
		},
		Maintenance: MaintenanceConfig{
			OrphanGrace:       time.Duration(getEnvAsInt("ORPHAN_GRACE_MINUTES", 30)) * time.Minute,
			CleanupSpec:       getEnv("CRON_CLEANUP_SPEC", "0 */5 * * * *"),
			AutoCompleteSpec:  getEnv("CRON_AUTOCOMPLETE_SPEC", "0 */15 * * * *"),
			HoldSweepInterval: getEnvAsSeconds("HOLD_SWEEP_INTERVAL_SECONDS", 60),
			BatchSize:         getEnvAsInt("MAINTENANCE_BATCH_SIZE", 200),
			EnableCron:        getEnvAsBool("ENABLE_CRON", true),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			LockTTL:    getEnvAsSeconds("REDIS_SEAT_LOCK_TTL_SECONDS", 10),
			SeatMapTTL: getEnvAsSeconds("REDIS_SEAT_MAP_TTL_SECONDS", 15),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvAsSlice("KAFKA_BROKERS", nil),
			BookingTopic:  getEnv("KAFKA_BOOKING_TOPIC", "ebus.booking-events"),
			TicketTopic:   getEnv("KAFKA_TICKET_TOPIC", "ebus.ticket-issued"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "ebus-notifier"),
		},
		Payment: PaymentConfig{
			Environment:   getEnv("PAYMENT_ENVIRONMENT", "sandbox"),
			GatewayURL:    getEnv("PAYMENT_GATEWAY_URL", ""),
			MerchantKey:   getEnv("PAYMENT_MERCHANT_KEY", ""),
			MerchantToken: getEnv("PAYMENT_MERCHANT_TOKEN", ""),
			Timeout:       getEnvAsSeconds("PAYMENT_TIMEOUT_SECONDS", 30),
		},
		SMS: SMSConfig{
			Mode:   getEnv("SMS_MODE", "dev"),
			APIURL: getEnv("SMS_API_URL", ""),
			APIKey: getEnv("SMS_API_KEY", ""),
			Sender: getEnv("SMS_SENDER", "eBus"),
		},
		Ticket: TicketConfig{
			Dispatch:  getEnv("TICKET_DISPATCH", "inline"),
			OutputDir: getEnv("TICKET_OUTPUT_DIR", ""),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.DefaultHoldDuration < 300*time.Second {
		return fmt.Errorf("HOLD_DURATION_SECONDS must be at least 300")
	}

	if c.Booking.MaxHoldDuration < c.Booking.DefaultHoldDuration {
		return fmt.Errorf("MAX_HOLD_DURATION_SECONDS must not be below HOLD_DURATION_SECONDS")
	}

	if c.Booking.MaxSeatsPerLeg <= 0 {
		return fmt.Errorf("MAX_SEATS_PER_LEG must be positive")
	}

	if c.Maintenance.OrphanGrace <= 0 {
		return fmt.Errorf("ORPHAN_GRACE_MINUTES must be positive")
	}

	// Gateway credentials only matter outside development
	if c.Server.Environment == "production" && c.Payment.GatewayURL != "" {
		if c.Payment.MerchantKey == "" || c.Payment.MerchantToken == "" {
			return fmt.Errorf("PAYMENT_MERCHANT_KEY and PAYMENT_MERCHANT_TOKEN are required when PAYMENT_GATEWAY_URL is set")
		}
	}

	if c.SMS.Mode == "production" && (c.SMS.APIURL == "" || c.SMS.APIKey == "") {
		return fmt.Errorf("SMS_API_URL and SMS_API_KEY are required in production SMS mode")
	}

	if c.Ticket.Dispatch != "inline" && c.Ticket.Dispatch != "kafka" {
		return fmt.Errorf("TICKET_DISPATCH must be inline or kafka")
	}

	if c.Ticket.Dispatch == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when TICKET_DISPATCH is kafka")
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

func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
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
