package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	DealsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_fetched_total",
		Help: "Сделки, полученные от поставщика цен",
	}, []string{"airport"})
	DealsStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deals_stored_total",
		Help: "Сделки, записанные в базу",
	})
	DealsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deals_pruned_total",
		Help: "Устаревшие сделки, удалённые из базы",
	})
	DealsCurated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_curated_total",
		Help: "Отобранные для рассылки сделки по уровню",
	}, []string{"tier"})
	AlertsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_dispatched_total",
		Help: "Результаты рассылки сделок подписчикам",
	}, []string{"channel", "outcome"})
	CronRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_runs_total",
		Help: "Запуски плановых задач",
	}, []string{"job", "status"})
	CronRunSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_run_seconds",
		Help:    "Длительность плановых задач",
		Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"job"})
	BusinessEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "business_events_total",
		Help: "Бизнесовые события по результату записи",
	}, []string{"event", "status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		DealsFetched,
		DealsStored,
		DealsPruned,
		DealsCurated,
		AlertsDispatched,
		CronRuns,
		CronRunSeconds,
		BusinessEvents,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveCronRun записывает результат и длительность плановой задачи.
func ObserveCronRun(job string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CronRuns.WithLabelValues(job, status).Inc()
	CronRunSeconds.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

// IncAlert увеличивает счётчик исходов рассылки.
func IncAlert(channel, outcome string, n int) {
	if n <= 0 {
		return
	}
	AlertsDispatched.WithLabelValues(channel, outcome).Add(float64(n))
}
