package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreDynamoDB = "dynamodb"
)

// Event publisher backends.
const (
	EventsLog  = "log"
	EventsSQS  = "sqs"
	EventsAMQP = "amqp"
)

// Config holds application configuration. It is built once at startup and
// passed by value to the components that need it.
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	StoreBackend   string
	DatabaseURL    string
	MongoURI       string
	DatabaseName   string
	DocumentsTable string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	LockTTL       time.Duration
	LockWait      time.Duration

	AdminJWTSecret     string
	CORSAllowedOrigins []string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	EventsBackend  string
	EventsQueueURL string
	AMQPURL        string
	AMQPQueue      string

	// Outbound email
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
	EmailReplyTo   string

	// SESConfigurationSet attaches SES event publishing to outbound mail.
	SESConfigurationSet string

	PracticeName     string
	PracticeTimezone string

	PublicRateLimitRPS   float64
	PublicRateLimitBurst int

	ReportArchiveBucket string
	AuditDatabaseURL    string
}

// Load reads configuration from environment variables, seeding them from a
// .env file in the working directory when one exists.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StoreBackend:   strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", StoreMemory))),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MongoURI:       getEnv("MONGO_URI", ""),
		DatabaseName:   getEnv("DATABASE_NAME", "mundos_ai"),
		DocumentsTable: getEnv("DOCUMENTS_TABLE", "engagement_documents"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		LockTTL:       getEnvAsDuration("LOCK_TTL", 10*time.Second),
		LockWait:      getEnvAsDuration("LOCK_WAIT", 3*time.Second),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		EventsBackend:  strings.ToLower(strings.TrimSpace(getEnv("EVENTS_BACKEND", EventsLog))),
		EventsQueueURL: getEnv("EVENTS_QUEUE_URL", ""),
		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPQueue:      getEnv("AMQP_QUEUE", "engagement.events"),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Mundos Care Team"),
		EmailReplyTo:   getEnv("EMAIL_REPLY_TO", ""),

		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),

		PracticeName:     getEnv("PRACTICE_NAME", "Mundos Practice"),
		PracticeTimezone: getEnv("PRACTICE_TIMEZONE", "UTC"),

		PublicRateLimitRPS:   getEnvAsFloat("PUBLIC_RATE_LIMIT_RPS", 2),
		PublicRateLimitBurst: getEnvAsInt("PUBLIC_RATE_LIMIT_BURST", 10),

		ReportArchiveBucket: getEnv("REPORT_ARCHIVE_BUCKET", ""),
		AuditDatabaseURL:    getEnv("AUDIT_DATABASE_URL", ""),
	}
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	case StoreDynamoDB:
		if c.DocumentsTable == "" {
			errs = append(errs, errors.New("DOCUMENTS_TABLE is required for the dynamodb store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.EventsBackend {
	case EventsLog:
	case EventsSQS:
		if c.EventsQueueURL == "" {
			errs = append(errs, errors.New("EVENTS_QUEUE_URL is required for sqs events"))
		}
	case EventsAMQP:
		if c.AMQPURL == "" {
			errs = append(errs, errors.New("AMQP_URL is required for amqp events"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EVENTS_BACKEND %q", c.EventsBackend))
	}

	switch c.EmailProvider {
	case "stub", "ses":
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY is required for sendgrid email"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider))
	}

	if _, err := time.LoadLocation(c.PracticeTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid PRACTICE_TIMEZONE %q: %w", c.PracticeTimezone, err))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, errors.New("LOCK_TTL must be positive"))
	}

	return errors.Join(errs...)
}

// AuditDSN returns the database used for the audit trail, if any.
func (c Config) AuditDSN() string {
	if c.AuditDatabaseURL != "" {
		return c.AuditDatabaseURL
	}
	return c.DatabaseURL
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
