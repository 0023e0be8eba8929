package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Mode        string
	ServiceName string

	// Database configuration
	DatabaseURL string

	// Redis configuration (empty disables the durable queue)
	RedisURL string

	// App Store notification verification
	AppleEnvironment  string
	BundleID          string
	RootCAPath        string
	SigningAlgorithms []string

	// Phase-two processing queue
	QueueWorkers    int
	QueueMaxRetries int

	// Downstream webhook for subscription changes
	WebhookCallbackURL string
	WebhookSecret      string
	WebhookSenders     int

	// Query API
	AdminAPIKey string

	// Brevo operator alerts
	BrevoAPIKey    string
	BrevoFromEmail string
	AlertEmail     string
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = Load()
	return nil
}

// Load reads the configuration from the process environment.
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Mode:               getEnv("GIN_MODE", "debug"),
		ServiceName:        getEnv("SERVICE_NAME", "App Store Notification Service"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		AppleEnvironment:   getEnv("APPLE_ENV", "Sandbox"),
		BundleID:           getEnv("BUNDLE_ID", ""),
		RootCAPath:         getEnv("APPLE_ROOT_CA_PATH", "./certs/AppleRootCA-G3.pem"),
		SigningAlgorithms:  getEnvList("SIGNING_ALGORITHMS", []string{"ES256"}),
		QueueWorkers:       getEnvInt("QUEUE_WORKERS", 3),
		QueueMaxRetries:    getEnvInt("QUEUE_MAX_RETRIES", 3),
		WebhookCallbackURL: getEnv("WEBHOOK_CALLBACK_URL", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		WebhookSenders:     getEnvInt("WEBHOOK_SENDERS", 2),
		AdminAPIKey:        getEnv("ADMIN_API_KEY", ""),
		BrevoAPIKey:        getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:     getEnv("BREVO_FROM_EMAIL", ""),
		AlertEmail:         getEnv("ALERT_EMAIL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
