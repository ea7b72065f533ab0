package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	API struct {
		Port     string
		BasePath string
	}
	Kafka struct {
		Brokers       []string
		ForecastTopic string
		GroupID       string
		PushTopic     string
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		From       string
		FromName   string
	}
	Telegram struct {
		BotToken  string
		RateLimit int
	}
	Twilio struct {
		AccountSID string
		AuthToken  string
		FromNumber string
		WhatsApp   bool
		RateLimit  int
	}
	Push struct {
		Enabled bool
	}
	S3 struct {
		Bucket        string
		Prefix        string
		Region        string
		Endpoint      string
		AccessKey     string
		SecretKey     string
		PresignExpiry time.Duration
	}
	MediaGen struct {
		BaseURL string
		Timeout time.Duration
	}
	Dispatch struct {
		ChannelTimeout     time.Duration
		BreakerFailures    int
		BreakerWindow      int
		BreakerDelay       time.Duration
		DefaultInitiatedBy string
	}
	Pipeline struct {
		QueueSize  int
		MaxWorkers int
	}
	Logging struct {
		Dir    string
		Level  string
		Format string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	var errs []string

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.API.Port = envOrDefault("API_PORT", ":8080")
	cfg.API.BasePath = envOrDefault("API_BASE_PATH", "/api/v0")

	cfg.Kafka.Brokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.Kafka.ForecastTopic = envOrDefault("KAFKA_FORECAST_TOPIC", "forecast-batches")
	cfg.Kafka.GroupID = envOrDefault("KAFKA_GROUP_ID", "alert-bulletin-service")
	cfg.Kafka.PushTopic = envOrDefault("KAFKA_PUSH_TOPIC", "push-notifications")

	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = intOrDefault("EMAIL_SMTP_PORT", 587, &errs)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.From = envOrDefault("EMAIL_FROM", cfg.Email.Username)
	cfg.Email.FromName = envOrDefault("EMAIL_FROM_NAME", "Early Warning Bulletins")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.RateLimit = intOrDefault("TELEGRAM_RATE_LIMIT", 20, &errs)

	cfg.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Twilio.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	cfg.Twilio.WhatsApp = os.Getenv("TWILIO_WHATSAPP") == "true"
	cfg.Twilio.RateLimit = intOrDefault("TWILIO_RATE_LIMIT", 10, &errs)

	cfg.Push.Enabled = os.Getenv("PUSH_ENABLED") == "true"

	cfg.S3.Bucket = os.Getenv("S3_BUCKET")
	cfg.S3.Prefix = os.Getenv("S3_PREFIX")
	cfg.S3.Region = envOrDefault("S3_REGION", "us-east-1")
	cfg.S3.Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3.AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.S3.SecretKey = os.Getenv("S3_SECRET_KEY")
	cfg.S3.PresignExpiry = durationOrDefault("S3_PRESIGN_EXPIRY", 24*time.Hour, &errs)

	cfg.MediaGen.BaseURL = os.Getenv("MEDIAGEN_URL")
	cfg.MediaGen.Timeout = durationOrDefault("MEDIAGEN_TIMEOUT", 20*time.Second, &errs)

	cfg.Dispatch.ChannelTimeout = durationOrDefault("DISPATCH_CHANNEL_TIMEOUT", 20*time.Second, &errs)
	cfg.Dispatch.BreakerFailures = intOrDefault("DISPATCH_BREAKER_FAILURES", 5, &errs)
	cfg.Dispatch.BreakerWindow = intOrDefault("DISPATCH_BREAKER_WINDOW", 10, &errs)
	cfg.Dispatch.BreakerDelay = durationOrDefault("DISPATCH_BREAKER_DELAY", time.Minute, &errs)
	cfg.Dispatch.DefaultInitiatedBy = envOrDefault("DISPATCH_INITIATED_BY", "scheduler")

	cfg.Pipeline.QueueSize = intOrDefault("QUEUE_SIZE", 100, &errs)
	cfg.Pipeline.MaxWorkers = intOrDefault("MAX_WORKERS", 2, &errs)

	cfg.Logging.Dir = envOrDefault("LOG_DIR", "logs")
	cfg.Logging.Level = envOrDefault("LOG_LEVEL", "info")
	cfg.Logging.Format = envOrDefault("LOG_FORMAT", "json")

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configurations: %v", errs)
	}

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	if cfg.Dispatch.ChannelTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid configurations: [DISPATCH_CHANNEL_TIMEOUT must be positive]")
	}
	if cfg.Pipeline.MaxWorkers < 1 || cfg.Pipeline.QueueSize < 1 {
		return Config{}, fmt.Errorf("invalid configurations: [MAX_WORKERS and QUEUE_SIZE must be at least 1]")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intOrDefault(key string, def int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, key)
		return def
	}
	return n
}

func durationOrDefault(key string, def time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, key)
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
