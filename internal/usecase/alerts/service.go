package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

const (
	defaultParallelism = 4
	// maxDigestDeals ограничивает письмо-сводку, остальное уйдёт следующим запуском.
	maxDigestDeals = 10
)

// Result содержит счётчики рассылки. Sent и Failed считаются по парам подписчик-сделка,
// Skipped по подписчикам, которым рассылка запрещена статусом.
type Result struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func (r *Result) add(o Result) {
	r.Sent += o.Sent
	r.Failed += o.Failed
	r.Skipped += o.Skipped
}

// AirportResult описывает итог по одному аэропорту.
type AirportResult struct {
	Airport string `json:"airport"`
	Result
	Error string `json:"error,omitempty"`
}

// Report собирает итоги по нескольким аэропортам.
type Report struct {
	Airports []AirportResult `json:"airports"`
	Totals   Result          `json:"totals"`
}

// Options ограничивают рассылку. Пустой Frequencies означает все частоты.
type Options struct {
	Frequencies []domain.Frequency
}

// OptionsFor возвращает частоты регулярного запуска: недельные дайджесты уходят только по понедельникам.
func OptionsFor(now time.Time) Options {
	freqs := []domain.Frequency{domain.FrequencyInstant, domain.FrequencyDaily}
	if now.UTC().Weekday() == time.Monday {
		freqs = append(freqs, domain.FrequencyWeekly)
	}
	return Options{Frequencies: freqs}
}

// ParseFrequencies разбирает список частот через запятую. Пустая строка даёт nil.
func ParseFrequencies(raw string) ([]domain.Frequency, error) {
	var out []domain.Frequency
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		f := domain.Frequency(part)
		if !f.Valid() {
			return nil, domain.ValidationError(fmt.Sprintf("unknown frequency %q", part), nil)
		}
		out = append(out, f)
	}
	return out, nil
}

func (o Options) allows(f domain.Frequency) bool {
	if len(o.Frequencies) == 0 {
		return true
	}
	for _, allowed := range o.Frequencies {
		if allowed == f {
			return true
		}
	}
	return false
}

// Service рассылает отобранные сделки подписчикам.
type Service struct {
	repo        domain.AlertRepo
	mailer      domain.EmailSender
	formatter   *Formatter
	telemetry   domain.TelemetrySink
	log         zerolog.Logger
	now         func() time.Time
	parallelism int
}

// NewService создаёт сервис рассылки. telemetry может быть nil.
func NewService(repo domain.AlertRepo, mailer domain.EmailSender, formatter *Formatter, telemetry domain.TelemetrySink, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		mailer:      mailer,
		formatter:   formatter,
		telemetry:   telemetry,
		log:         logger,
		now:         time.Now,
		parallelism: defaultParallelism,
	}
}

// SendAlertsForAirport обходит подписчиков аэропорта по очереди и отправляет им
// ещё не доставленные сделки. Запись о доставке появляется только после того,
// как письмо принято шлюзом, поэтому неудачи повторяются следующим запуском.
func (s *Service) SendAlertsForAirport(ctx context.Context, airport string, opts Options) (Result, error) {
	if !domain.IsAirportSupported(airport) {
		return Result{}, domain.UnsupportedAirportError(airport)
	}
	code := domain.NormalizeAirport(airport)
	subs, err := s.repo.ListSubscribersByAirport(ctx, code)
	if err != nil {
		return Result{}, err
	}

	var res Result
	now := s.now()
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !sub.CanReceiveAlerts(now) {
			res.Skipped++
			metrics.IncAlert(string(sub.Frequency.Channel()), "skipped", 1)
			continue
		}
		if !opts.allows(sub.Frequency) {
			continue
		}
		res.add(s.deliver(ctx, sub))
	}
	s.log.Info().Str("airport", code).Int("sent", res.Sent).Int("failed", res.Failed).Int("skipped", res.Skipped).Msg("alerts: airport finished")
	return res, nil
}

// SendAllAlerts рассылает по всем аэропортам, обрабатывая несколько аэропортов параллельно.
// Сбой одного аэропорта попадает в отчёт и не прерывает остальные.
func (s *Service) SendAllAlerts(ctx context.Context, opts Options) Report {
	airports := domain.SupportedAirports()
	results := make([]AirportResult, len(airports))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, code := range airports {
		g.Go(func() error {
			r, err := s.SendAlertsForAirport(ctx, code, opts)
			results[i] = AirportResult{Airport: code, Result: r}
			if err != nil {
				results[i].Error = err.Error()
				s.log.Error().Err(err).Str("airport", code).Msg("alerts: airport failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Airports: results}
	for _, r := range results {
		report.Totals.add(r.Result)
	}
	return report
}

// SendInstantAlert отправляет одну сделку всем подписчикам её аэропорта с мгновенной частотой.
func (s *Service) SendInstantAlert(ctx context.Context, curatedDealID uuid.UUID) (Result, error) {
	deal, err := s.repo.GetCuratedDeal(ctx, curatedDealID)
	if err != nil {
		return Result{}, err
	}
	subs, err := s.repo.GetSubscribersEligibleForAlerts(ctx, domain.SubscriberCriteria{
		Airport:     deal.Deal.DepartureAirport,
		Frequencies: []domain.Frequency{domain.FrequencyInstant},
	})
	if err != nil {
		return Result{}, err
	}

	var res Result
	now := s.now()
	for _, sub := range subs {
		if !sub.CanReceiveAlerts(now) {
			res.Skipped++
			continue
		}
		pending, err := s.repo.GetUndeliveredCuratedDeals(ctx, sub.ID)
		if err != nil {
			res.Failed++
			s.log.Error().Err(err).Str("subscriber", sub.ID.String()).Msg("alerts: load undelivered deals failed")
			continue
		}
		if !containsDeal(pending, deal.ID) {
			continue
		}
		if s.sendInstant(ctx, sub, deal) {
			res.Sent++
		} else {
			res.Failed++
		}
	}
	metrics.IncAlert(string(domain.ChannelInstant), "skipped", res.Skipped)
	if res.Failed == 0 {
		if err := s.repo.MarkCuratedDispatched(ctx, deal.ID, domain.ChannelInstant); err != nil {
			s.log.Error().Err(err).Str("curated_deal", deal.ID.String()).Msg("alerts: mark dispatched failed")
		}
	}
	return res, nil
}

func (s *Service) deliver(ctx context.Context, sub domain.Subscriber) Result {
	subLog := s.log.With().Str("subscriber", sub.ID.String()).Logger()
	deals, err := s.repo.GetUndeliveredCuratedDeals(ctx, sub.ID)
	if err != nil {
		subLog.Error().Err(err).Msg("alerts: load undelivered deals failed")
		return Result{Failed: 1}
	}
	if len(deals) == 0 {
		return Result{}
	}

	var res Result
	if sub.Frequency.Channel() == domain.ChannelInstant {
		for _, d := range deals {
			if s.sendInstant(ctx, sub, d) {
				res.Sent++
			} else {
				res.Failed++
			}
		}
		return res
	}

	if len(deals) > maxDigestDeals {
		deals = deals[:maxDigestDeals]
	}
	email, err := s.formatter.Digest(sub, deals)
	if err == nil {
		err = s.mailer.Send(ctx, email)
	}
	if err != nil {
		subLog.Error().Err(err).Int("deals", len(deals)).Msg("alerts: digest send failed")
		metrics.IncAlert(string(domain.ChannelDigest), "failed", len(deals))
		return Result{Failed: len(deals)}
	}
	for _, d := range deals {
		s.recordSent(ctx, sub, d, domain.ChannelDigest)
	}
	metrics.IncAlert(string(domain.ChannelDigest), "sent", len(deals))
	s.track(sub, domain.ChannelDigest, len(deals))
	return Result{Sent: len(deals)}
}

func (s *Service) sendInstant(ctx context.Context, sub domain.Subscriber, deal domain.CuratedDeal) bool {
	email, err := s.formatter.Instant(sub, deal)
	if err == nil {
		err = s.mailer.Send(ctx, email)
	}
	if err != nil {
		s.log.Error().Err(err).Str("subscriber", sub.ID.String()).Str("curated_deal", deal.ID.String()).Msg("alerts: instant send failed")
		metrics.IncAlert(string(domain.ChannelInstant), "failed", 1)
		return false
	}
	s.recordSent(ctx, sub, deal, domain.ChannelInstant)
	metrics.IncAlert(string(domain.ChannelInstant), "sent", 1)
	s.track(sub, domain.ChannelInstant, 1)
	return true
}

// recordSent пишет доставку. Письмо уже ушло, поэтому ошибка только логируется:
// следующий запуск повторит отправку.
func (s *Service) recordSent(ctx context.Context, sub domain.Subscriber, deal domain.CuratedDeal, channel domain.AlertChannel) {
	if err := s.repo.RecordAlertSent(ctx, sub.ID, deal.ID, channel); err != nil {
		s.log.Error().Err(err).Str("subscriber", sub.ID.String()).Str("curated_deal", deal.ID.String()).Msg("alerts: record delivery failed")
		return
	}
	if channel == domain.ChannelDigest && !deal.DigestSent {
		if err := s.repo.MarkCuratedDispatched(ctx, deal.ID, channel); err != nil {
			s.log.Warn().Err(err).Str("curated_deal", deal.ID.String()).Msg("alerts: mark dispatched failed")
		}
	}
}

func (s *Service) track(sub domain.Subscriber, channel domain.AlertChannel, deals int) {
	if s.telemetry == nil {
		return
	}
	id := sub.ID
	s.telemetry.Track(domain.BusinessMetric{
		Event:        domain.BusinessMetricEventAlertSent,
		SubscriberID: &id,
		Airport:      sub.HomeAirport,
		Metadata:     map[string]any{"channel": string(channel), "deals": deals},
		OccurredAt:   s.now().UTC(),
	})
}

func containsDeal(deals []domain.CuratedDeal, id uuid.UUID) bool {
	for _, d := range deals {
		if d.ID == id {
			return true
		}
	}
	return false
}
