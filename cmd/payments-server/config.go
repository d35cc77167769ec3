package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type serverConfig struct {
	Port           string
	LogLevel       string
	Development    bool
	DatabaseURL    string
	DatabaseDebug  bool
	InternalAPIKey string
	RedisURL       string

	DefaultProvider string
	NuveiEnv        string
	NuveiAppCode    string
	NuveiAppKey     string
	NuveiServerCode string
	NuveiServerKey  string

	StripeSecretKey     string
	StripeWebhookSecret string

	RedirectSuccess string
	RedirectFailure string
	RedirectPending string
	RedirectReview  string

	TelegramBotToken string
	KafkaBrokers     []string
	KafkaTopic       string
	SNSTopicARN      string

	CreateRatePerMinute int
	CreateBurst         int

	// Service holds the raw payments config layer (service_name, sweeper.*, ...).
	Service map[string]any
}

// loadConfig reads .env when present, then the process environment.
func loadConfig() (serverConfig, error) {
	_ = godotenv.Load()

	cfg := serverConfig{
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Development:         getEnvBool("DEVELOPMENT", false),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DatabaseDebug:       getEnvBool("DATABASE_DEBUG", false),
		InternalAPIKey:      os.Getenv("INTERNAL_API_KEY"),
		RedisURL:            os.Getenv("REDIS_URL"),
		DefaultProvider:     getEnv("DEFAULT_PROVIDER", "nuvei"),
		NuveiEnv:            getEnv("NUVEI_ENV", "stg"),
		NuveiAppCode:        os.Getenv("NUVEI_APP_CODE"),
		NuveiAppKey:         os.Getenv("NUVEI_APP_KEY"),
		NuveiServerCode:     os.Getenv("NUVEI_SERVER_APP_CODE"),
		NuveiServerKey:      os.Getenv("NUVEI_SERVER_APP_KEY"),
		StripeSecretKey:     os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		RedirectSuccess:     os.Getenv("REDIRECT_SUCCESS_URL"),
		RedirectFailure:     os.Getenv("REDIRECT_FAILURE_URL"),
		RedirectPending:     os.Getenv("REDIRECT_PENDING_URL"),
		RedirectReview:      os.Getenv("REDIRECT_REVIEW_URL"),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "payment-intents"),
		SNSTopicARN:         os.Getenv("SNS_TOPIC_ARN"),
		CreateRatePerMinute: getEnvInt("CREATE_RATE_PER_MINUTE", 6),
		CreateBurst:         getEnvInt("CREATE_BURST", 3),
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.InternalAPIKey == "" {
		return cfg, fmt.Errorf("INTERNAL_API_KEY is required")
	}

	service, err := serviceLayer()
	if err != nil {
		return cfg, err
	}
	cfg.Service = service
	return cfg, nil
}

// serviceLayer maps PAYMENTS_* variables onto the payments config keys.
func serviceLayer() (map[string]any, error) {
	layer := map[string]any{}
	sweeper := map[string]any{}
	notifications := map[string]any{}

	if v := os.Getenv("PAYMENTS_SERVICE_NAME"); v != "" {
		layer["service_name"] = v
	}
	if v := os.Getenv("PAYMENTS_CURRENCY"); v != "" {
		layer["currency"] = strings.ToUpper(v)
	}
	durations := []struct {
		env    string
		target map[string]any
		key    string
	}{
		{"PAYMENTS_ORDER_TIMEOUT", layer, "order_timeout"},
		{"PAYMENTS_SWEEP_INTERVAL", sweeper, "interval"},
		{"PAYMENTS_SWEEP_QUIESCENCE", sweeper, "quiescence"},
		{"PAYMENTS_SWEEP_LOCK_TTL", sweeper, "lock_ttl"},
		{"PAYMENTS_SWEEP_POLL_INTERVAL", sweeper, "poll_interval"},
		{"PAYMENTS_NOTIFY_TIMEOUT", notifications, "timeout"},
	}
	for _, d := range durations {
		raw := os.Getenv(d.env)
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.env, err)
		}
		d.target[d.key] = parsed
	}
	if v := os.Getenv("PAYMENTS_SWEEP_BATCH_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PAYMENTS_SWEEP_BATCH_SIZE: %w", err)
		}
		sweeper["batch_size"] = size
	}
	if v := os.Getenv("PAYMENTS_SWEEP_POLICY"); v != "" {
		sweeper["policy"] = v
	}
	if v := os.Getenv("PAYMENTS_SWEEP_DISABLED"); v != "" {
		sweeper["disabled"] = getEnvBool("PAYMENTS_SWEEP_DISABLED", false)
	}
	if len(sweeper) > 0 {
		layer["sweeper"] = sweeper
	}
	if len(notifications) > 0 {
		layer["notifications"] = notifications
	}
	return layer, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool { return c.debug }
func (c persistenceConfig) GetDriver() string { return c.driver }
func (c persistenceConfig) GetServer() string { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string { return "payments-server" }
