package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

// GetSubscribersEligibleForAlerts возвращает подписчиков в статусе active или trial с действующим
// пробным периодом. Пустые поля критерия не ограничивают выборку.
func (p *Postgres) GetSubscribersEligibleForAlerts(ctx context.Context, criteria domain.SubscriberCriteria) ([]domain.Subscriber, error) {
	freqs := make([]string, 0, len(criteria.Frequencies))
	for _, f := range criteria.Frequencies {
		freqs = append(freqs, string(f))
	}
	return p.querySubscribers(ctx, "subscribers_eligible", `
SELECT `+subscriberColumns+`
FROM subscribers
WHERE (status = 'active' OR (status = 'trial' AND (trial_ends_at IS NULL OR trial_ends_at > now())))
  AND ($1 = '' OR home_airport = $1)
  AND (cardinality($2::text[]) = 0 OR frequency = ANY($2::text[]))
ORDER BY created_at
`, domain.NormalizeAirport(criteria.Airport), freqs)
}

// ListSubscribersByAirport возвращает всех подписчиков аэропорта в любом статусе.
func (p *Postgres) ListSubscribersByAirport(ctx context.Context, airport string) ([]domain.Subscriber, error) {
	return p.querySubscribers(ctx, "subscribers_by_airport",
		`SELECT `+subscriberColumns+` FROM subscribers WHERE home_airport = $1 ORDER BY created_at`,
		domain.NormalizeAirport(airport))
}

// GetUndeliveredCuratedDeals возвращает отобранные сделки аэропорта подписчика, которые ему ещё не отправлялись.
func (p *Postgres) GetUndeliveredCuratedDeals(ctx context.Context, subscriberID uuid.UUID) ([]domain.CuratedDeal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+curatedDealColumns+`
FROM curated_deals c
JOIN raw_deals r ON r.id = c.raw_deal_id
JOIN subscribers s ON s.id = $1 AND s.home_airport = r.departure_airport
WHERE NOT EXISTS (
    SELECT 1 FROM alerts_sent a WHERE a.subscriber_id = $1 AND a.curated_deal_id = c.id
)
ORDER BY CASE c.tier WHEN 'exceptional' THEN 3 WHEN 'notable' THEN 2 ELSE 1 END DESC, r.price ASC, c.id
`, subscriberID)
	metrics.ObserveNetworkRequest("postgres", "curated_deals_undelivered", "curated_deals", start, err)
	if err != nil {
		return nil, mapError(err, "undelivered deals")
	}
	defer rows.Close()
	var deals []domain.CuratedDeal
	for rows.Next() {
		d, err := scanCuratedDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// RecordAlertSent фиксирует доставку. Повторная запись для той же пары ничего не меняет.
func (p *Postgres) RecordAlertSent(ctx context.Context, subscriberID, curatedDealID uuid.UUID, channel domain.AlertChannel) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO alerts_sent (subscriber_id, curated_deal_id, channel, sent_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (subscriber_id, curated_deal_id) DO NOTHING
`, subscriberID, curatedDealID, string(channel))
	metrics.ObserveNetworkRequest("postgres", "alerts_sent_insert", "alerts_sent", start, err)
	return mapError(err, "alert record")
}

// MarkCuratedDispatched выставляет флаг отправки по каналу.
func (p *Postgres) MarkCuratedDispatched(ctx context.Context, curatedDealID uuid.UUID, channel domain.AlertChannel) error {
	var query string
	switch channel {
	case domain.ChannelInstant:
		query = `UPDATE curated_deals SET instant_alert_sent = TRUE WHERE id = $1`
	case domain.ChannelDigest:
		query = `UPDATE curated_deals SET digest_sent = TRUE WHERE id = $1`
	default:
		return domain.ValidationError(fmt.Sprintf("unknown alert channel %q", channel), nil)
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, query, curatedDealID)
	metrics.ObserveNetworkRequest("postgres", "curated_deals_mark_dispatched", "curated_deals", start, err)
	return mapError(err, "curated deal")
}
