package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	awspkg "github.com/yashrajoria/dining-backend/pkg/aws"
	"github.com/yashrajoria/dining-backend/services/dining-service/database"
)

// Config holds all environment variables for the dining-service.
type Config struct {
	Port   string
	AppEnv string

	Postgres database.PostgresConfig
	RedisURL string

	JWTSecret string

	StripeAPIKey        string
	StripeWebhookSecret string
	Currency            string
	PaymentLinkTTL      time.Duration

	TaxRate           float64
	ServiceChargeRate float64
	BillNumberPrefix  string

	PublicBaseURL string
	FrontendURL   string

	DiningTopicARN   string
	RealtimeTopicARN string
	RealtimeQueueURL string

	SweepInterval        time.Duration
	AllowedOrigins       []string
	WebhookRatePerMinute int

	CloudWatchEnabled   bool
	CloudWatchNamespace string
}

// GatewayEnabled reports whether both Stripe keys are present.
func (c *Config) GatewayEnabled() bool {
	return c.StripeAPIKey != "" && c.StripeWebhookSecret != ""
}

// ReturnURL and CancelURL are where the gateway sends the payer's browser.
func (c *Config) ReturnURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/payments/return"
}

func (c *Config) CancelURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/payments/cancel"
}

// secretSource is the subset of the Secrets Manager client LoadConfig needs.
type secretSource interface {
	GetSecret(ctx context.Context, name string) (string, error)
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig loads environment variables into Config and validates them.
// If AWS_USE_SECRETS=true credentials are read from Secrets Manager, falling
// back to env vars on failure.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := configFromEnv()
	if err != nil {
		return nil, err
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background()); err == nil {
			applySecrets(context.Background(), cfg, awspkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFromEnv() (*Config, error) {
	cfg := &Config{
		Port:   getEnv("PORT", "8093"),
		AppEnv: getEnv("APP_ENV", "development"),
		Postgres: database.PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Name:     os.Getenv("POSTGRES_DB"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		RedisURL:            os.Getenv("REDIS_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),
		BillNumberPrefix:    getEnv("BILL_NUMBER_PREFIX", "BILL"),
		PublicBaseURL:       getEnv("PUBLIC_BASE_URL", "http://localhost:8093"),
		FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:3000"),
		DiningTopicARN:      os.Getenv("DINING_SNS_TOPIC_ARN"),
		RealtimeTopicARN:    os.Getenv("REALTIME_SNS_TOPIC_ARN"),
		RealtimeQueueURL:    os.Getenv("REALTIME_QUEUE_URL"),
		AllowedOrigins:      splitList(os.Getenv("ALLOWED_ORIGINS")),
		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "Dining"),
	}

	var err error
	if cfg.TaxRate, err = getFloat("TAX_RATE", 0.10); err != nil {
		return nil, err
	}
	if cfg.ServiceChargeRate, err = getFloat("SERVICE_CHARGE_RATE", 0.05); err != nil {
		return nil, err
	}
	if cfg.PaymentLinkTTL, err = getDuration("PAYMENT_LINK_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.WebhookRatePerMinute, err = getInt("WEBHOOK_RATE_PER_MINUTE", 120); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applySecrets(ctx context.Context, cfg *Config, sm secretSource) {
	if creds, err := sm.GetSecretMap(ctx, "dining/DB_CREDENTIALS"); err == nil {
		if v := creds["username"]; v != "" {
			cfg.Postgres.User = v
		}
		if v := creds["password"]; v != "" {
			cfg.Postgres.Password = v
		}
		if v := creds["host"]; v != "" {
			cfg.Postgres.Host = v
		}
		if v := creds["dbname"]; v != "" {
			cfg.Postgres.Name = v
		}
	}
	overrides := map[string]*string{
		"dining/JWT_SECRET":            &cfg.JWTSecret,
		"dining/STRIPE_API_KEY":        &cfg.StripeAPIKey,
		"dining/STRIPE_WEBHOOK_SECRET": &cfg.StripeWebhookSecret,
	}
	for name, dst := range overrides {
		if v, err := sm.GetSecret(ctx, name); err == nil && v != "" {
			*dst = v
		}
	}
}

func (c *Config) validate() error {
	if c.Postgres.User == "" {
		return fmt.Errorf("POSTGRES_USER not set")
	}
	if c.Postgres.Password == "" {
		return fmt.Errorf("POSTGRES_PASSWORD not set")
	}
	if c.Postgres.Name == "" {
		return fmt.Errorf("POSTGRES_DB not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TaxRate < 0 || c.TaxRate >= 1 || c.ServiceChargeRate < 0 || c.ServiceChargeRate >= 1 {
		return fmt.Errorf("TAX_RATE and SERVICE_CHARGE_RATE must be in [0, 1)")
	}
	if c.PaymentLinkTTL <= 0 {
		return fmt.Errorf("PAYMENT_LINK_TTL must be positive")
	}
	if (c.RealtimeTopicARN == "") != (c.RealtimeQueueURL == "") {
		return fmt.Errorf("REALTIME_SNS_TOPIC_ARN and REALTIME_QUEUE_URL must be set together")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
