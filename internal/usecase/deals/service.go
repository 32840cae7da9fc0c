package deals

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

// DefaultRetention задаёт срок хранения сырых сделок.
const DefaultRetention = 7 * 24 * time.Hour

// Service собирает цены, сохраняет их и отбирает сделки для рассылки.
type Service struct {
	prices    domain.BatchPriceGateway
	repo      domain.DealRepo
	curator   domain.Curator
	queue     domain.AlertQueue
	log       zerolog.Logger
	now       func() time.Time
	retention time.Duration
}

// NewService создаёт сервис. queue может быть nil: тогда мгновенные рассылки не ставятся.
func NewService(prices domain.BatchPriceGateway, repo domain.DealRepo, curator domain.Curator, queue domain.AlertQueue, retention time.Duration, logger zerolog.Logger) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{prices: prices, repo: repo, curator: curator, queue: queue, log: logger, now: time.Now, retention: retention}
}

// AirportDetail описывает итог выборки по аэропорту.
type AirportDetail struct {
	Airport    string `json:"airport"`
	TotalDeals int    `json:"totalDeals"`
	Inserted   int    `json:"inserted"`
	Errors     int    `json:"errors"`
	Error      string `json:"error,omitempty"`
}

// FetchSummary суммирует выборку по всем аэропортам.
type FetchSummary struct {
	AirportsProcessed int   `json:"airportsProcessed"`
	TotalDealsFound   int   `json:"totalDealsFound"`
	TotalInserted     int   `json:"totalInserted"`
	TotalErrors       int   `json:"totalErrors"`
	OldDealsCleaned   int64 `json:"oldDealsCleaned"`
}

// FetchReport возвращается из FetchAll.
type FetchReport struct {
	Summary FetchSummary    `json:"summary"`
	Details []AirportDetail `json:"details"`
}

// Failed сообщает, были ли сбои хотя бы в одном аэропорту.
func (r FetchReport) Failed() bool {
	for _, d := range r.Details {
		if d.Error != "" {
			return true
		}
	}
	return r.Summary.TotalErrors > 0
}

// FetchAll опрашивает аэропорты, сохраняет сделки и удаляет устаревшие.
// Пустой список означает все поддерживаемые аэропорты. Сбой отдельного
// аэропорта попадает в отчёт и не прерывает выполнение.
func (s *Service) FetchAll(ctx context.Context, airports []string) FetchReport {
	if len(airports) == 0 {
		airports = domain.SupportedAirports()
	}
	results := s.prices.FetchBatch(ctx, airports)

	report := FetchReport{Details: make([]AirportDetail, 0, len(airports))}
	for _, raw := range airports {
		code := domain.NormalizeAirport(raw)
		res := results[code]
		detail := AirportDetail{Airport: code, TotalDeals: len(res.Deals)}
		if res.Err != nil {
			detail.Error = res.Err.Error()
			detail.Errors++
		}
		if len(res.Deals) > 0 {
			up, err := s.repo.UpsertRawDeals(ctx, code, res.Deals)
			detail.Inserted = up.Inserted
			detail.Errors += up.Errors
			if err != nil {
				s.log.Error().Err(err).Str("airport", code).Msg("deals: store failed")
				if detail.Error == "" {
					detail.Error = err.Error()
				}
			}
		}
		report.Summary.AirportsProcessed++
		report.Summary.TotalDealsFound += detail.TotalDeals
		report.Summary.TotalInserted += detail.Inserted
		report.Summary.TotalErrors += detail.Errors
		report.Details = append(report.Details, detail)
	}

	pruned, err := s.Prune(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("deals: prune failed")
	}
	report.Summary.OldDealsCleaned = pruned
	s.log.Info().
		Int("airports", report.Summary.AirportsProcessed).
		Int("found", report.Summary.TotalDealsFound).
		Int("inserted", report.Summary.TotalInserted).
		Int("errors", report.Summary.TotalErrors).
		Int64("pruned", pruned).
		Msg("deals: fetch finished")
	return report
}

// Prune удаляет сырые сделки старше срока хранения.
func (s *Service) Prune(ctx context.Context) (int64, error) {
	return s.repo.PruneStaleDeals(ctx, s.now().UTC().Add(-s.retention))
}

// Preview запрашивает свежие цены у поставщика и фильтрует их.
func (s *Service) Preview(ctx context.Context, airport string, opts FilterOptions) ([]domain.RawDeal, error) {
	if !domain.IsAirportSupported(airport) {
		return nil, domain.UnsupportedAirportError(airport)
	}
	deals, err := s.prices.FetchDeals(ctx, domain.NormalizeAirport(airport))
	if err != nil {
		return nil, err
	}
	return FilterDeals(deals, opts), nil
}

// Cached фильтрует сохранённые сделки последнего окна выборки.
func (s *Service) Cached(ctx context.Context, airport string, opts FilterOptions) ([]domain.RawDeal, error) {
	if !domain.IsAirportSupported(airport) {
		return nil, domain.UnsupportedAirportError(airport)
	}
	deals, err := s.repo.ListRawDeals(ctx, domain.NormalizeAirport(airport))
	if err != nil {
		return nil, err
	}
	return FilterDeals(deals, opts), nil
}

// CurationReport описывает итог курирования.
type CurationReport struct {
	Airport    string `json:"airport,omitempty"`
	Considered int    `json:"considered"`
	Curated    int    `json:"curated"`
	Skipped    int    `json:"skipped"`
	Enqueued   int    `json:"enqueued"`
	Errors     int    `json:"errors"`
}

// DefaultCurationBatch ограничивает число сделок за один запуск.
const DefaultCurationBatch = 100

// CurateAirport оценивает ещё не отобранные сделки аэропорта (пустой код: всех)
// и ставит мгновенную рассылку для новых исключительных сделок.
func (s *Service) CurateAirport(ctx context.Context, airport string, limit int) (CurationReport, error) {
	code := domain.NormalizeAirport(airport)
	if code != "" && !domain.IsAirportSupported(code) {
		return CurationReport{}, domain.UnsupportedAirportError(airport)
	}
	if limit <= 0 {
		limit = DefaultCurationBatch
	}
	raws, err := s.repo.ListUncuratedRawDeals(ctx, code, limit)
	if err != nil {
		return CurationReport{}, err
	}

	report := CurationReport{Airport: code, Considered: len(raws)}
	for _, raw := range raws {
		dealLog := s.log.With().Str("raw_deal", raw.ID.String()).Str("airport", raw.DepartureAirport).Logger()
		cur, ok, err := s.curator.Curate(ctx, raw)
		if err != nil {
			report.Errors++
			dealLog.Error().Err(err).Msg("deals: curation failed")
			continue
		}
		if !ok {
			report.Skipped++
			continue
		}
		saved, created, err := s.repo.UpsertCuratedDeal(ctx, domain.CuratedDeal{
			RawDealID:   raw.ID,
			Tier:        cur.Tier,
			Description: cur.Description,
			Model:       cur.Model,
			CuratedAt:   s.now().UTC(),
		})
		if err != nil {
			report.Errors++
			dealLog.Error().Err(err).Msg("deals: store curated deal failed")
			continue
		}
		if !created {
			continue
		}
		report.Curated++
		metrics.DealsCurated.WithLabelValues(string(saved.Tier)).Inc()

		if saved.Tier != domain.TierExceptional || s.queue == nil {
			continue
		}
		job := domain.AlertJob{CuratedDealID: saved.ID, Airport: raw.DepartureAirport, EnqueuedAt: s.now().UTC()}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			report.Errors++
			dealLog.Error().Err(err).Msg("deals: enqueue instant alert failed")
			continue
		}
		report.Enqueued++
	}
	return report, nil
}
