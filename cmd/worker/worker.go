package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/alerts"
)

type instantSender interface {
	SendInstantAlert(ctx context.Context, curatedDealID uuid.UUID) (alerts.Result, error)
}

type jobWorker struct {
	log    zerolog.Logger
	queue  domain.AlertQueue
	alerts instantSender
	notify func(ctx context.Context, text string)
	sleep  func(ctx context.Context, d time.Duration)
}

const maxDeliveryAttempts = 5

type jobOutcome int

const (
	jobOutcomeCompleted jobOutcome = iota
	jobOutcomeRetry
)

// Run читает очередь до отмены контекста.
func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			w.sleep(ctx, time.Second)
			continue
		}
		w.process(ctx, job, ack)
	}
}

func (w *jobWorker) process(ctx context.Context, job domain.AlertJob, ack domain.AlertAckFunc) {
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Str("curated_deal", job.CuratedDealID.String()).
		Str("airport", job.Airport).
		Int("attempt", job.Attempt).
		Logger()

	if job.CuratedDealID == uuid.Nil {
		jobLog.Error().Msg("worker: задача без сделки, подтверждаем и пропускаем")
		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("worker: не удалось подтвердить пустую задачу")
		}
		return
	}

	outcome := w.handleJob(ctx, job, jobLog)

	if outcome == jobOutcomeRetry && job.Attempt < maxDeliveryAttempts {
		jobLog.Warn().Msg("worker: задача завершилась ошибкой, повторим позже")
		if err := ack(false); err != nil {
			jobLog.Error().Err(err).Msg("worker: не удалось вернуть задачу в очередь")
		}
		w.sleep(ctx, time.Second)
		return
	}
	if outcome == jobOutcomeRetry {
		jobLog.Error().Msg("worker: достигнут предел попыток, задача снята")
		w.notify(ctx, fmt.Sprintf("instant alert for deal %s dropped after %d attempts", job.CuratedDealID, job.Attempt))
	}
	if err := ack(true); err != nil {
		jobLog.Error().Err(err).Msg("worker: не удалось подтвердить задачу")
	}
}

func (w *jobWorker) handleJob(ctx context.Context, job domain.AlertJob, jobLog zerolog.Logger) jobOutcome {
	res, err := w.alerts.SendInstantAlert(ctx, job.CuratedDealID)
	switch {
	case domain.KindOf(err) == domain.KindNotFound:
		jobLog.Warn().Err(err).Msg("worker: сделка уже удалена")
		return jobOutcomeCompleted
	case err != nil:
		jobLog.Error().Err(err).Msg("worker: рассылка не выполнена")
		return jobOutcomeRetry
	case res.Failed > 0:
		jobLog.Warn().Int("sent", res.Sent).Int("failed", res.Failed).Msg("worker: часть писем не отправлена")
		return jobOutcomeRetry
	}
	jobLog.Info().Int("sent", res.Sent).Int("skipped", res.Skipped).Msg("worker: мгновенная рассылка отправлена")
	return jobOutcomeCompleted
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
