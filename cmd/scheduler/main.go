package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	cron "github.com/robfig/cron/v3"

	"github.com/jose-hbf/homebaseflights-sub001/internal/app"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/config"
	applog "github.com/jose-hbf/homebaseflights-sub001/internal/infra/log"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать зависимости")
	}
	if a.Cache == nil {
		logger.Warn().Msg("scheduler: нет Redis, задачи не защищены от запуска на нескольких репликах")
	}

	s := &scheduler{
		deals:     a.Deals,
		alerts:    a.Alerts,
		reminders: a.Reminders,
		once:      a.Once,
		notify:    a.NotifyOps,
		log:       applog.Component(logger, "scheduler"),
		now:       time.Now,
		timeout:   45 * time.Minute,
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if err := s.register(ctx, c); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: неверное расписание")
	}
	c.Start()
	logger.Info().Int("jobs", len(c.Entries())).Msg("scheduler: запущен")

	<-ctx.Done()
	logger.Info().Msg("scheduler: остановка, ждём текущие задачи")
	<-c.Stop().Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Error().Err(err).Msg("scheduler: ошибка закрытия зависимостей")
	}
}
