package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string   `envconfig:"APP_ENV" default:"dev"`
	Port        int      `envconfig:"PORT" default:"8080"`
	MetricsAddr string   `envconfig:"METRICS_ADDR" default:":9090"`
	BaseURL     string   `envconfig:"BASE_URL" default:"http://localhost:3000"`
	CronSecret  string   `envconfig:"CRON_SECRET"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`

	PG struct {
		DSN      string `envconfig:"PG_DSN"`
		MaxConns int32  `envconfig:"PG_MAX_CONNS" default:"5"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	FlightAPI struct {
		Key      string        `envconfig:"FLIGHT_API_KEY"`
		BaseURL  string        `envconfig:"FLIGHT_API_BASE_URL" default:"https://api.travelpayouts.com"`
		Timeout  time.Duration `envconfig:"FLIGHT_API_TIMEOUT" default:"15s"`
		CacheTTL time.Duration `envconfig:"FLIGHT_CACHE_TTL" default:"1h"`
	} `envconfig:""`

	Stripe struct {
		SecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
		PriceID       string `envconfig:"STRIPE_PRICE_ID"`
		WebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	} `envconfig:""`

	Mail struct {
		APIKey    string `envconfig:"MAILJET_API_KEY"`
		SecretKey string `envconfig:"MAILJET_SECRET_KEY"`
		From      string `envconfig:"MAIL_FROM" default:"deals@homebaseflights.com"`
		FromName  string `envconfig:"MAIL_FROM_NAME" default:"Homebase Flights"`
	} `envconfig:""`

	OpenAI struct {
		APIKey string `envconfig:"OPENAI_API_KEY"`
		Model  string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	} `envconfig:""`

	Telegram struct {
		Token     string `envconfig:"TG_BOT_TOKEN"`
		OpsChatID int64  `envconfig:"TG_OPS_CHAT_ID"`
	} `envconfig:""`

	Queues struct {
		Backend     string `envconfig:"QUEUE_BACKEND" default:"redis"`
		RabbitMQURL string `envconfig:"RABBITMQ_URL"`
		Instant     string `envconfig:"INSTANT_QUEUE_KEY" default:"instant_alerts"`
	} `envconfig:""`

	Lifecycle struct {
		TrialDays          int `envconfig:"TRIAL_DAYS" default:"14"`
		ReminderDaysBefore int `envconfig:"REMINDER_DAYS_BEFORE" default:"2"`
		RetentionDays      int `envconfig:"RETENTION_DAYS" default:"7"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения, предварительно подхватив .env, если он есть.
func Load() AppConfig {
	_ = godotenv.Load()
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения без завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
