package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/myseetara-source/seetara-website-sub001/database"
	aws_pkg "github.com/myseetara-source/seetara-website-sub001/pkg/aws"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Port   string
	AppEnv string

	DB       database.Config
	RedisURL string

	LedgerBackend     string
	LedgerTTL         time.Duration
	LedgerDynamoTable string

	CAPIPixelID        string
	CAPIAccessToken    string
	CAPIAPIVersion     string
	CAPITestEventCode  string
	Currency           string
	InvalidValuePolicy string

	OrderEventsTopicARN     string
	ConversionAuditTopicARN string
	OrderStatusQueueURL     string
	KafkaBrokers            []string
	OrderStatusKafkaTopic   string

	AWSRegion         string
	AWSEndpoint       string
	UseSecrets        bool
	CloudWatchEnabled bool
	CloudWatchGroup   string

	UploadBucket    string
	UploadPublicURL string
	JWTSecret       string

	SMSAPIURL       string
	SMSAPIKey       string
	SMSSenderID     string
	SheetWebhookURL string

	AllowedOrigins []string
	FrontendURL    string
}

// secretGetter is the part of the Secrets Manager client LoadConfig uses.
type secretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
	GetJSONSecret(ctx context.Context, name string, out interface{}) error
}

// LoadConfig reads configuration from the environment (and .env when present)
// with optional Secrets Manager overrides.
func LoadConfig(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	cfg := configFromEnv()
	if cfg.UseSecrets {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
		if err != nil {
			return nil, fmt.Errorf("load AWS config for secrets: %w", err)
		}
		applySecrets(ctx, cfg, aws_pkg.NewSecretsClient(awsCfg))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFromEnv() *Config {
	return &Config{
		Port:   getEnv("PORT", "8080"),
		AppEnv: getEnv("APP_ENV", "development"),
		DB: database.Config{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("POSTGRES_HOST", "localhost"),
			Port:       getEnv("POSTGRES_PORT", "5432"),
			User:       os.Getenv("POSTGRES_USER"),
			Password:   os.Getenv("POSTGRES_PASSWORD"),
			Name:       os.Getenv("POSTGRES_DB"),
			SSLMode:    getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone:   getEnv("POSTGRES_TIMEZONE", "Asia/Dhaka"),
			SQLitePath: os.Getenv("SQLITE_PATH"),
		},
		RedisURL: os.Getenv("REDIS_URL"),

		LedgerBackend:     getEnv("LEDGER_BACKEND", "memory"),
		LedgerTTL:         getDuration("LEDGER_TTL", 7*24*time.Hour),
		LedgerDynamoTable: getEnv("LEDGER_DYNAMO_TABLE", "conversion-ledger"),

		CAPIPixelID:        os.Getenv("CAPI_PIXEL_ID"),
		CAPIAccessToken:    os.Getenv("CAPI_ACCESS_TOKEN"),
		CAPIAPIVersion:     os.Getenv("CAPI_API_VERSION"),
		CAPITestEventCode:  os.Getenv("CAPI_TEST_EVENT_CODE"),
		Currency:           getEnv("CURRENCY", "BDT"),
		InvalidValuePolicy: getEnv("INVALID_VALUE_POLICY", "suppress"),

		OrderEventsTopicARN:     os.Getenv("ORDER_EVENTS_SNS_TOPIC_ARN"),
		ConversionAuditTopicARN: os.Getenv("CONVERSION_AUDIT_SNS_TOPIC_ARN"),
		OrderStatusQueueURL:     os.Getenv("ORDER_STATUS_QUEUE_URL"),
		KafkaBrokers:            splitList(os.Getenv("KAFKA_BROKERS")),
		OrderStatusKafkaTopic:   getEnv("ORDER_STATUS_KAFKA_TOPIC", "order-events"),

		AWSRegion:         getEnv("AWS_REGION", "ap-south-1"),
		AWSEndpoint:       os.Getenv("AWS_ENDPOINT"),
		UseSecrets:        os.Getenv("AWS_USE_SECRETS") == "true",
		CloudWatchEnabled: os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchGroup:   os.Getenv("CLOUDWATCH_LOG_GROUP"),

		UploadBucket:    os.Getenv("UPLOAD_BUCKET"),
		UploadPublicURL: os.Getenv("UPLOAD_PUBLIC_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),

		SMSAPIURL:       os.Getenv("SMS_API_URL"),
		SMSAPIKey:       os.Getenv("SMS_API_KEY"),
		SMSSenderID:     os.Getenv("SMS_SENDER_ID"),
		SheetWebhookURL: os.Getenv("SHEET_WEBHOOK_URL"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		FrontendURL:    getEnv("FRONTEND_URL", "https://myseetara.com"),
	}
}

// applySecrets overrides DB credentials and the conversion API token. Missing
// secrets keep the environment values.
func applySecrets(ctx context.Context, cfg *Config, sm secretGetter) {
	var db map[string]string
	if err := sm.GetJSONSecret(ctx, "seetara/DB_CREDENTIALS", &db); err == nil {
		override := func(dst *string, key string) {
			if v := db[key]; v != "" {
				*dst = v
			}
		}
		override(&cfg.DB.User, "POSTGRES_USER")
		override(&cfg.DB.Password, "POSTGRES_PASSWORD")
		override(&cfg.DB.Name, "POSTGRES_DB")
		override(&cfg.DB.Host, "POSTGRES_HOST")
		override(&cfg.DB.Port, "POSTGRES_PORT")
	}
	if v, err := sm.GetSecret(ctx, "seetara/CAPI_ACCESS_TOKEN"); err == nil && v != "" {
		cfg.CAPIAccessToken = v
	}
	if v, err := sm.GetSecret(ctx, "seetara/JWT_SECRET"); err == nil && v != "" {
		cfg.JWTSecret = v
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.DB.Driver != "sqlite" {
		if c.DB.User == "" || c.DB.Password == "" || c.DB.Name == "" || c.DB.Host == "" {
			return fmt.Errorf("database config incomplete")
		}
	}
	switch c.LedgerBackend {
	case "memory", "postgres", "dynamodb":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("LEDGER_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "/")); p != "" {
			out = append(out, p)
		}
	}
	return out
}
