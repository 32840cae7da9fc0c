package main

import (
	"context"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/alerts"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/deals"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/reminders"
)

type dealsUsecase interface {
	FetchAll(ctx context.Context, airports []string) deals.FetchReport
	CurateAirport(ctx context.Context, airport string, limit int) (deals.CurationReport, error)
	Prune(ctx context.Context) (int64, error)
}

type alertsUsecase interface {
	SendAllAlerts(ctx context.Context, opts alerts.Options) alerts.Report
}

type remindersUsecase interface {
	TrialReminders(ctx context.Context, now time.Time) (reminders.Result, error)
	ExpireTrials(ctx context.Context, now time.Time) (int64, error)
	SendNurture(ctx context.Context, now time.Time) (reminders.Result, error)
}

// job описывает одну запись расписания. run возвращает сводку для лога и ошибку запуска.
type job struct {
	name string
	spec string
	run  func(ctx context.Context, now time.Time) (string, error)
}

type scheduler struct {
	deals     dealsUsecase
	alerts    alertsUsecase
	reminders remindersUsecase
	once      func(key string, ttl time.Duration, fn func() error) error
	notify    func(ctx context.Context, text string)
	log       zerolog.Logger
	now       func() time.Time
	timeout   time.Duration
}

// slotTTL держит ключ слота дольше любого запуска, но меньше минимального интервала.
const slotTTL = 50 * time.Minute

func (s *scheduler) jobs() []job {
	return []job{
		{name: "fetch_deals", spec: "0 6 * * *", run: s.fetchDeals},
		{name: "curate_deals", spec: "30 6 * * *", run: s.curateDeals},
		{name: "send_alerts", spec: "0 7 * * *", run: s.sendAlerts},
		{name: "trial_reminders", spec: "0 15 * * *", run: s.trialReminders},
		{name: "expire_trials", spec: "0 * * * *", run: s.expireTrials},
		{name: "nurture", spec: "0 10 * * *", run: s.nurture},
		{name: "prune_deals", spec: "0 3 * * *", run: s.prune},
	}
}

// register добавляет задачи в cron.
func (s *scheduler) register(ctx context.Context, c *cron.Cron) error {
	for _, j := range s.jobs() {
		if _, err := c.AddFunc(j.spec, func() { s.execute(ctx, j) }); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}
	return nil
}

func slotKey(name string, at time.Time) string {
	return "scheduler:" + name + ":" + at.UTC().Format("2006-01-02T15:04")
}

// execute запускает задачу один раз на слот среди всех реплик.
func (s *scheduler) execute(ctx context.Context, j job) {
	now := s.now().UTC()
	log := s.log.With().Str("job", j.name).Logger()
	err := s.once(slotKey(j.name, now), slotTTL, func() error {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		start := time.Now()
		summary, err := j.run(runCtx, now)
		metrics.ObserveCronRun(j.name, start, err)
		if err != nil {
			return err
		}
		log.Info().Str("summary", summary).Dur("took", time.Since(start)).Msg("scheduler: задача выполнена")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("scheduler: задача завершилась ошибкой")
		s.notify(ctx, fmt.Sprintf("scheduler %s failed: %v", j.name, err))
	}
}

func (s *scheduler) fetchDeals(ctx context.Context, _ time.Time) (string, error) {
	report := s.deals.FetchAll(ctx, nil)
	sum := report.Summary
	text := fmt.Sprintf("airports=%d found=%d inserted=%d errors=%d cleaned=%d",
		sum.AirportsProcessed, sum.TotalDealsFound, sum.TotalInserted, sum.TotalErrors, sum.OldDealsCleaned)
	if report.Failed() {
		s.notify(ctx, "scheduler fetch_deals finished with failures: "+text)
	}
	return text, nil
}

func (s *scheduler) curateDeals(ctx context.Context, _ time.Time) (string, error) {
	report, err := s.deals.CurateAirport(ctx, "", 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("considered=%d curated=%d enqueued=%d errors=%d",
		report.Considered, report.Curated, report.Enqueued, report.Errors), nil
}

func (s *scheduler) sendAlerts(ctx context.Context, now time.Time) (string, error) {
	report := s.alerts.SendAllAlerts(ctx, alerts.OptionsFor(now))
	t := report.Totals
	text := fmt.Sprintf("sent=%d failed=%d skipped=%d", t.Sent, t.Failed, t.Skipped)
	if t.Failed > 0 {
		s.notify(ctx, "scheduler send_alerts finished with failures: "+text)
	}
	return text, nil
}

func (s *scheduler) trialReminders(ctx context.Context, now time.Time) (string, error) {
	res, err := s.reminders.TrialReminders(ctx, now)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("checked=%d sent=%d failed=%d", res.Checked, res.Sent, res.Failed), nil
}

func (s *scheduler) expireTrials(ctx context.Context, now time.Time) (string, error) {
	n, err := s.reminders.ExpireTrials(ctx, now)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("expired=%d", n), nil
}

func (s *scheduler) nurture(ctx context.Context, now time.Time) (string, error) {
	res, err := s.reminders.SendNurture(ctx, now)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("checked=%d sent=%d failed=%d", res.Checked, res.Sent, res.Failed), nil
}

func (s *scheduler) prune(ctx context.Context, _ time.Time) (string, error) {
	n, err := s.deals.Prune(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pruned=%d", n), nil
}
