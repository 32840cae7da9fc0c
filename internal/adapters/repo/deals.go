package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

const rawDealColumns = `r.id, r.departure_airport, r.destination_code, r.destination_city, r.destination_country, r.price, r.currency, r.depart_date, r.return_date, r.airline, r.stops, r.duration_minutes, r.booking_url, r.fetched_at`

const curatedDealColumns = `c.id, c.raw_deal_id, c.tier, c.description, c.model, c.instant_alert_sent, c.digest_sent, c.curated_at, ` + rawDealColumns

type scanner interface {
	Scan(dest ...any) error
}

func rawDealDest(d *domain.RawDeal, depart, ret *sql.NullTime) []any {
	return []any{&d.ID, &d.DepartureAirport, &d.DestinationCode, &d.DestinationCity, &d.DestinationCountry,
		&d.Price, &d.Currency, depart, ret, &d.Airline, &d.Stops, &d.DurationMinutes, &d.BookingURL, &d.FetchedAt}
}

func scanRawDeal(row scanner) (domain.RawDeal, error) {
	var (
		d           domain.RawDeal
		depart, ret sql.NullTime
	)
	if err := row.Scan(rawDealDest(&d, &depart, &ret)...); err != nil {
		return domain.RawDeal{}, err
	}
	d.DepartDate = timePtr(depart)
	d.ReturnDate = timePtr(ret)
	return d, nil
}

func scanCuratedDeal(row scanner) (domain.CuratedDeal, error) {
	var (
		c           domain.CuratedDeal
		tier        string
		depart, ret sql.NullTime
	)
	dest := []any{&c.ID, &c.RawDealID, &tier, &c.Description, &c.Model, &c.InstantAlertSent, &c.DigestSent, &c.CuratedAt}
	dest = append(dest, rawDealDest(&c.Deal, &depart, &ret)...)
	if err := row.Scan(dest...); err != nil {
		return domain.CuratedDeal{}, err
	}
	c.Tier = domain.DealTier(tier)
	c.Deal.DepartDate = timePtr(depart)
	c.Deal.ReturnDate = timePtr(ret)
	return c, nil
}

// UpsertRawDeals записывает сделки построчно по ключу (аэропорт, направление, окно выборки).
// Ошибка строки учитывается и не прерывает остальные; обрыв соединения прерывает запись.
func (p *Postgres) UpsertRawDeals(ctx context.Context, airport string, deals []domain.RawDeal) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	defer func() { metrics.DealsStored.Add(float64(res.Inserted)) }()
	code := domain.NormalizeAirport(airport)
	for i, d := range deals {
		if d.DestinationCode == "" || d.Price < 0 {
			res.Errors++
			continue
		}
		if d.FetchedAt.IsZero() {
			d.FetchedAt = time.Now().UTC()
		}
		err := p.upsertRawDeal(ctx, code, d)
		if err == nil {
			res.Inserted++
			continue
		}
		res.Errors++
		if domain.KindOf(err) == domain.KindConnection {
			res.Errors += len(deals) - i - 1
			return res, err
		}
	}
	return res, nil
}

func (p *Postgres) upsertRawDeal(ctx context.Context, airport string, d domain.RawDeal) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO raw_deals (id, departure_airport, destination_code, destination_city, destination_country, price, currency,
    depart_date, return_date, airline, stops, duration_minutes, booking_url, fetch_window, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (departure_airport, destination_code, fetch_window) DO UPDATE
    SET destination_city = EXCLUDED.destination_city,
        destination_country = EXCLUDED.destination_country,
        price = EXCLUDED.price,
        currency = EXCLUDED.currency,
        depart_date = EXCLUDED.depart_date,
        return_date = EXCLUDED.return_date,
        airline = EXCLUDED.airline,
        stops = EXCLUDED.stops,
        duration_minutes = EXCLUDED.duration_minutes,
        booking_url = EXCLUDED.booking_url,
        fetched_at = EXCLUDED.fetched_at
`, p.newID(), airport, d.DestinationCode, d.DestinationCity, d.DestinationCountry, d.Price, d.Currency,
		nullTime(d.DepartDate), nullTime(d.ReturnDate), d.Airline, d.Stops, d.DurationMinutes, d.BookingURL,
		d.FetchWindow(), d.FetchedAt)
	metrics.ObserveNetworkRequest("postgres", "raw_deals_upsert", "raw_deals", start, err)
	return mapError(err, "raw deal")
}

// PruneStaleDeals удаляет сделки, полученные раньше olderThan.
func (p *Postgres) PruneStaleDeals(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM raw_deals WHERE fetched_at < $1`, olderThan)
	metrics.ObserveNetworkRequest("postgres", "raw_deals_prune", "raw_deals", start, err)
	if err != nil {
		return 0, mapError(err, "prune raw deals")
	}
	n := tag.RowsAffected()
	metrics.DealsPruned.Add(float64(n))
	return n, nil
}

// ListRawDeals возвращает сделки последнего окна выборки по аэропорту, от дешёвых к дорогим.
func (p *Postgres) ListRawDeals(ctx context.Context, airport string) ([]domain.RawDeal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+rawDealColumns+`
FROM raw_deals r
WHERE r.departure_airport = $1
  AND r.fetch_window = (SELECT max(fetch_window) FROM raw_deals WHERE departure_airport = $1)
ORDER BY r.price ASC
`, domain.NormalizeAirport(airport))
	metrics.ObserveNetworkRequest("postgres", "raw_deals_list", "raw_deals", start, err)
	if err != nil {
		return nil, mapError(err, "list raw deals")
	}
	defer rows.Close()
	deals := []domain.RawDeal{}
	for rows.Next() {
		d, err := scanRawDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// ListUncuratedRawDeals возвращает сделки без решения куратора. Пустой airport означает все аэропорты.
func (p *Postgres) ListUncuratedRawDeals(ctx context.Context, airport string, limit int) ([]domain.RawDeal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+rawDealColumns+`
FROM raw_deals r
LEFT JOIN curated_deals c ON c.raw_deal_id = r.id
WHERE c.id IS NULL AND ($1 = '' OR r.departure_airport = $1)
ORDER BY r.fetched_at DESC, r.price ASC
LIMIT $2
`, domain.NormalizeAirport(airport), limit)
	metrics.ObserveNetworkRequest("postgres", "raw_deals_list_uncurated", "raw_deals", start, err)
	if err != nil {
		return nil, mapError(err, "list uncurated deals")
	}
	defer rows.Close()
	var deals []domain.RawDeal
	for rows.Next() {
		d, err := scanRawDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// UpsertCuratedDeal сохраняет решение куратора. Существующая запись не меняется; второй результат
// сообщает, была ли запись создана сейчас.
func (p *Postgres) UpsertCuratedDeal(ctx context.Context, deal domain.CuratedDeal) (domain.CuratedDeal, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if deal.ID == uuid.Nil {
		deal.ID = p.newID()
	}
	if deal.CuratedAt.IsZero() {
		deal.CuratedAt = time.Now().UTC()
	}
	var (
		tier     string
		inserted bool
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO curated_deals (id, raw_deal_id, tier, description, model, curated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (raw_deal_id) DO UPDATE SET raw_deal_id = EXCLUDED.raw_deal_id
RETURNING id, tier, description, model, instant_alert_sent, digest_sent, curated_at, (xmax = 0) AS inserted
`, deal.ID, deal.RawDealID, string(deal.Tier), deal.Description, deal.Model, deal.CuratedAt).Scan(
		&deal.ID, &tier, &deal.Description, &deal.Model, &deal.InstantAlertSent, &deal.DigestSent, &deal.CuratedAt, &inserted)
	metrics.ObserveNetworkRequest("postgres", "curated_deals_upsert", "curated_deals", start, err)
	if err != nil {
		return domain.CuratedDeal{}, false, mapError(err, "curated deal")
	}
	deal.Tier = domain.DealTier(tier)
	return deal, inserted, nil
}

// GetCuratedDeal возвращает отобранную сделку вместе с исходной ценой.
func (p *Postgres) GetCuratedDeal(ctx context.Context, id uuid.UUID) (domain.CuratedDeal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+curatedDealColumns+`
FROM curated_deals c
JOIN raw_deals r ON r.id = c.raw_deal_id
WHERE c.id = $1
`, id)
	deal, err := scanCuratedDeal(row)
	metrics.ObserveNetworkRequest("postgres", "curated_deals_get", "curated_deals", start, err)
	if err != nil {
		return domain.CuratedDeal{}, mapError(err, "curated deal")
	}
	return deal, nil
}
