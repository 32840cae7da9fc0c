// Package app собирает зависимости сервисов из конфигурации.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/adapters/curator"
	"github.com/jose-hbf/homebaseflights-sub001/internal/adapters/flightapi"
	"github.com/jose-hbf/homebaseflights-sub001/internal/adapters/mailer"
	"github.com/jose-hbf/homebaseflights-sub001/internal/adapters/opsbot"
	"github.com/jose-hbf/homebaseflights-sub001/internal/adapters/payments"
	"github.com/jose-hbf/homebaseflights-sub001/internal/adapters/repo"
	"github.com/jose-hbf/homebaseflights-sub001/internal/adapters/telemetry"
	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/cache"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/config"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/db"
	applog "github.com/jose-hbf/homebaseflights-sub001/internal/infra/log"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/queue"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/alerts"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/deals"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/reminders"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/subscribers"
)

// App держит клиентов и сервисы процесса. Закрывается через Close.
type App struct {
	Config config.AppConfig
	Log    zerolog.Logger

	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Cache    domain.Cache
	Queue    domain.AlertQueue
	Repo     *repo.Postgres
	Prices   *flightapi.Client
	Mailer   *mailer.Mailjet
	Payments *payments.Client
	Notifier *opsbot.Notifier
	Sink     *telemetry.Sink

	Deals       *deals.Service
	Alerts      *alerts.Service
	Reminders   *reminders.Service
	Subscribers *subscribers.Service

	closers []func() error
}

// New подключается к хранилищам и собирает сервисы. Без PG_DSN запуск невозможен,
// остальные ключи необязательны.
func New(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	if cfg.PG.DSN == "" {
		return nil, domain.ConfigurationError("PG_DSN is not set")
	}
	pool, err := db.Connect(cfg.PG.DSN, cfg.PG.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a := &App{Config: cfg, Log: logger, Pool: pool}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	a.Repo = repo.NewPostgres(pool)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("app: redis недоступен, работаем без кэша")
			_ = client.Close()
		} else {
			a.Redis = client
			a.Cache = cache.NewRedis(client)
			a.closers = append(a.closers, client.Close)
		}
	}

	if err := a.initQueue(); err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.Prices = flightapi.NewClient(flightapi.Config{
		BaseURL:  cfg.FlightAPI.BaseURL,
		APIKey:   cfg.FlightAPI.Key,
		Timeout:  cfg.FlightAPI.Timeout,
		CacheTTL: cfg.FlightAPI.CacheTTL,
	}, a.Cache, applog.Component(logger, "flightapi"))
	if cfg.FlightAPI.Key == "" {
		logger.Warn().Msg("app: FLIGHT_API_KEY не задан, выборка цен будет возвращать ошибку конфигурации")
	}

	a.Mailer = mailer.New(mailer.Config{
		APIKey:    cfg.Mail.APIKey,
		SecretKey: cfg.Mail.SecretKey,
		From:      cfg.Mail.From,
		FromName:  cfg.Mail.FromName,
	}, applog.Component(logger, "mailer"))
	if !a.Mailer.Configured() {
		logger.Warn().Msg("app: ключи Mailjet не заданы, письма отправляться не будут")
	}

	a.Payments = payments.NewClient(payments.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		PriceID:       cfg.Stripe.PriceID,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, applog.Component(logger, "payments"))

	notifier, err := opsbot.New(cfg.Telegram.Token, cfg.Telegram.OpsChatID, applog.Component(logger, "opsbot"))
	if err != nil {
		logger.Warn().Err(err).Msg("app: не удалось подключить Telegram, уведомления выключены")
		notifier, _ = opsbot.New("", 0, applog.Component(logger, "opsbot"))
	}
	a.Notifier = notifier

	a.Sink = telemetry.NewSink(a.Repo, applog.Component(logger, "telemetry"), 0)

	var cur domain.Curator = curator.NewHeuristic()
	if cfg.OpenAI.APIKey != "" {
		cur = curator.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, applog.Component(logger, "curator"))
	}

	retention := time.Duration(cfg.Lifecycle.RetentionDays) * 24 * time.Hour
	a.Deals = deals.NewService(a.Prices, a.Repo, cur, a.Queue, retention, applog.Component(logger, "deals"))
	a.Alerts = alerts.NewService(a.Repo, a.Mailer, alerts.NewFormatter(cfg.BaseURL), a.Sink, applog.Component(logger, "alerts"))
	a.Reminders = reminders.NewService(a.Repo, a.Mailer, cfg.BaseURL, cfg.Lifecycle.ReminderDaysBefore, applog.Component(logger, "reminders"))
	a.Subscribers = subscribers.NewService(a.Repo, a.Payments, a.Sink, cfg.BaseURL, cfg.Lifecycle.TrialDays, applog.Component(logger, "subscribers"))
	return a, nil
}

func (a *App) initQueue() error {
	switch a.Config.Queues.Backend {
	case "rabbitmq":
		if a.Config.Queues.RabbitMQURL == "" {
			return domain.ConfigurationError("RABBITMQ_URL is not set")
		}
		q, err := queue.NewRabbitAlertQueue(a.Config.Queues.RabbitMQURL, a.Config.Queues.Instant)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.Queue = q
		a.closers = append(a.closers, q.Close)
	case "redis", "":
		if a.Redis == nil {
			a.Log.Warn().Msg("app: очередь мгновенных рассылок выключена, нет Redis")
			return nil
		}
		a.Queue = queue.NewRedisAlertQueue(a.Redis, a.Config.Queues.Instant)
	default:
		return domain.ConfigurationError(fmt.Sprintf("unknown QUEUE_BACKEND %q", a.Config.Queues.Backend))
	}
	return nil
}

// Once выполняет fn один раз на ключ среди всех реплик. Без Redis просто вызывает fn.
func (a *App) Once(key string, ttl time.Duration, fn func() error) error {
	if a.Cache == nil {
		return fn()
	}
	return a.Cache.Once(key, ttl, fn)
}

// NotifyOps отправляет сообщение в служебный чат, если он настроен.
func (a *App) NotifyOps(ctx context.Context, text string) {
	if !a.Notifier.Enabled() {
		return
	}
	if err := a.Notifier.Notify(ctx, text); err != nil {
		a.Log.Warn().Err(err).Msg("app: не удалось отправить служебное уведомление")
	}
}

// Close дожидается записи телеметрии и закрывает подключения в обратном порядке.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Sink != nil {
		if err := a.Sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
