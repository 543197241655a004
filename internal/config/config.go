package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryQueue bool
	WorkerCount    int

	// Reconciliation engine
	RealtimeThresholdHours float64
	EODThresholdHours      float64
	LocalTZOffsetHours     int
	SlotSearchHorizonDays  int

	// Auth
	AgentJWTSecret string
	FeedAPIKey     string

	// Rejection webhook
	RejectionWebhookURL   string
	RejectionWebhookToken string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ReconcileQueueURL   string
	ReconcileJobsTable  string
	FeedArchiveBucket   string

	// Redis (pass summary cache)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Summary email
	EmailProvider          string
	SESFromEmail           string
	SendGridAPIKey         string
	SendGridFromEmail      string
	SendGridFromName       string
	SummaryEmailRecipients []string

	// HTTP
	CORSAllowedOrigins []string
	FeedRateLimit      float64
	FeedRateBurst      int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment variables
// win over file values.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		RealtimeThresholdHours: getEnvAsFloat("REALTIME_THRESHOLD_HOURS", 2.5),
		EODThresholdHours:      getEnvAsFloat("EOD_THRESHOLD_HOURS", 4),
		LocalTZOffsetHours:     getEnvAsInt("LOCAL_TZ_OFFSET_HOURS", 8),
		SlotSearchHorizonDays:  getEnvAsInt("SLOT_SEARCH_HORIZON_DAYS", 7),

		AgentJWTSecret: getEnv("AGENT_JWT_SECRET", ""),
		FeedAPIKey:     getEnv("FEED_API_KEY", ""),

		RejectionWebhookURL:   getEnv("REJECTION_WEBHOOK_URL", ""),
		RejectionWebhookToken: getEnv("REJECTION_WEBHOOK_TOKEN", ""),

		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ReconcileQueueURL:   getEnv("RECONCILE_QUEUE_URL", ""),
		ReconcileJobsTable:  getEnv("RECONCILE_JOBS_TABLE", "reconcile_jobs"),
		FeedArchiveBucket:   getEnv("FEED_ARCHIVE_BUCKET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:          strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SESFromEmail:           getEnv("SES_FROM_EMAIL", ""),
		SendGridAPIKey:         getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:      getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:       getEnv("SENDGRID_FROM_NAME", "LoanCRM"),
		SummaryEmailRecipients: getEnvAsList("SUMMARY_EMAIL_RECIPIENTS"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		FeedRateLimit:      getEnvAsFloat("FEED_RATE_LIMIT", 5),
		FeedRateBurst:      getEnvAsInt("FEED_RATE_BURST", 10),
	}
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable into trimmed values.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}
