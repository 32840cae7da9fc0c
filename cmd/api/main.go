package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jose-hbf/homebaseflights-sub001/internal/app"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/config"
	httpinfra "github.com/jose-hbf/homebaseflights-sub001/internal/infra/http"
	applog "github.com/jose-hbf/homebaseflights-sub001/internal/infra/log"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось собрать зависимости")
	}
	if cfg.CronSecret == "" {
		logger.Warn().Msg("api: CRON_SECRET не задан, cron-эндпоинты открыты")
	}

	h := &handlers{
		deals:       a.Deals,
		alerts:      a.Alerts,
		reminders:   a.Reminders,
		subscribers: a.Subscribers,
		webhooks:    a.Payments,
		notify:      a.NotifyOps,
		log:         applog.Component(logger, "api"),
		baseURL:     cfg.BaseURL,
		now:         time.Now,
	}

	limiter := httpinfra.NewRateLimiter(5, 20)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(10 * time.Minute)
			}
		}
	}()

	srv := httpinfra.NewServer(applog.Component(logger, "http"), cfg.CORSOrigins)
	h.routes(srv.Router, cfg.CronSecret, limiter)

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)
	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка остановки сервера")
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка закрытия зависимостей")
	}
}
