package reminders

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

const (
	defaultReminderDays = 2
	reminderWindow      = 12 * time.Hour
	day                 = 24 * time.Hour
)

// Service отвечает за жизненный цикл пробного периода и приветственную серию.
type Service struct {
	repo         domain.LifecycleRepo
	mailer       domain.EmailSender
	log          zerolog.Logger
	baseURL      string
	reminderDays int
}

// NewService создаёт сервис. reminderDays <= 0 означает два дня.
func NewService(repo domain.LifecycleRepo, mailer domain.EmailSender, baseURL string, reminderDays int, logger zerolog.Logger) *Service {
	if reminderDays <= 0 {
		reminderDays = defaultReminderDays
	}
	return &Service{repo: repo, mailer: mailer, log: logger, baseURL: baseURL, reminderDays: reminderDays}
}

// Result содержит итог рассылки напоминаний или писем серии.
type Result struct {
	Checked int `json:"checked"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// ReminderWindow возвращает окно окончания пробного периода вокруг now+N дней.
func (s *Service) ReminderWindow(now time.Time) (time.Time, time.Time) {
	center := now.UTC().Add(time.Duration(s.reminderDays) * day)
	return center.Add(-reminderWindow), center.Add(reminderWindow)
}

// TrialReminders напоминает об окончании пробного периода.
// Отметка об отправке не даёт повторить письмо при повторном запуске в том же окне.
func (s *Service) TrialReminders(ctx context.Context, now time.Time) (Result, error) {
	from, to := s.ReminderWindow(now)
	subs, err := s.repo.ListTrialsEndingBetween(ctx, from, to)
	if err != nil {
		return Result{}, err
	}
	res := Result{Checked: len(subs)}
	for _, sub := range subs {
		subLog := s.log.With().Str("subscriber", sub.ID.String()).Logger()
		sum, err := s.repo.SummarizeDeliveredSavings(ctx, sub.ID)
		if err != nil {
			subLog.Warn().Err(err).Msg("reminders: savings summary failed")
		}
		email, err := trialReminderEmail(s.baseURL, sub, sum, s.reminderDays)
		if err == nil {
			err = s.mailer.Send(ctx, email)
		}
		if err != nil {
			res.Failed++
			subLog.Error().Err(err).Msg("reminders: trial reminder failed")
			continue
		}
		if err := s.repo.MarkTrialReminderSent(ctx, sub.ID, now.UTC()); err != nil {
			subLog.Error().Err(err).Msg("reminders: mark reminder failed")
		}
		res.Sent++
	}
	s.log.Info().Int("checked", res.Checked).Int("sent", res.Sent).Int("failed", res.Failed).Msg("reminders: trial reminders finished")
	return res, nil
}

// ExpireTrials переводит истёкшие пробные подписки в expired.
func (s *Service) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.ExpireTrials(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("expired", n).Msg("reminders: trials expired")
	}
	return n, nil
}

// DueNurture возвращает номер письма серии, которое пора отправить, или -1.
// Берётся последнее наступившее письмо; пропущенные ранние не досылаются.
func DueNurture(sub domain.Subscriber, now time.Time) int {
	if now.Before(sub.CreatedAt) {
		return -1
	}
	age := int(now.Sub(sub.CreatedAt) / day)
	due := -1
	for i, offset := range NurtureOffsets {
		if offset <= age {
			due = i
		}
	}
	if due < 0 || sub.HasNurture(due) {
		return -1
	}
	return due
}

// SendNurture отправляет не больше одного письма серии каждому подписчику.
func (s *Service) SendNurture(ctx context.Context, now time.Time) (Result, error) {
	last := NurtureOffsets[len(NurtureOffsets)-1]
	since := now.UTC().Add(-time.Duration(last+1) * day)
	subs, err := s.repo.ListNurtureCandidates(ctx, since)
	if err != nil {
		return Result{}, err
	}
	var res Result
	for _, sub := range subs {
		index := DueNurture(sub, now)
		if index < 0 {
			continue
		}
		res.Checked++
		subLog := s.log.With().Str("subscriber", sub.ID.String()).Int("nurture", index).Logger()

		var sum domain.SavingsSummary
		if index == 2 {
			if sum, err = s.repo.SummarizeDeliveredSavings(ctx, sub.ID); err != nil {
				subLog.Warn().Err(err).Msg("reminders: savings summary failed")
			}
		}
		email, err := nurtureEmail(s.baseURL, sub, index, sum)
		if err == nil {
			err = s.mailer.Send(ctx, email)
		}
		if err != nil {
			res.Failed++
			subLog.Error().Err(err).Msg("reminders: nurture email failed")
			continue
		}
		if err := s.repo.AppendNurtureSent(ctx, sub.ID, index); err != nil {
			subLog.Error().Err(err).Msg("reminders: mark nurture failed")
		}
		res.Sent++
	}
	return res, nil
}
