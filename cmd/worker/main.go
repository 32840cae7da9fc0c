package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

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
		logger.Fatal().Err(err).Msg("worker: не удалось собрать зависимости")
	}
	if a.Queue == nil {
		logger.Fatal().Str("backend", cfg.Queues.Backend).Msg("worker: очередь мгновенных рассылок не настроена")
	}

	w := &jobWorker{
		log:    applog.Component(logger, "worker"),
		queue:  a.Queue,
		alerts: a.Alerts,
		notify: a.NotifyOps,
		sleep:  sleepCtx,
	}

	logger.Info().Str("backend", cfg.Queues.Backend).Msg("worker: запуск обработки очереди")
	w.Run(ctx)
	logger.Info().Msg("worker: остановлен")

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Error().Err(err).Msg("worker: ошибка закрытия зависимостей")
	}
}
