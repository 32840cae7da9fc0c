package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

// ListTrialsEndingBetween возвращает подписчиков на пробном периоде, который заканчивается в [from, to],
// и которым ещё не отправлялось напоминание.
func (p *Postgres) ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]domain.Subscriber, error) {
	return p.querySubscribers(ctx, "subscribers_trials_ending", `
SELECT `+subscriberColumns+`
FROM subscribers
WHERE status = 'trial'
  AND trial_ends_at BETWEEN $1 AND $2
  AND trial_reminder_sent_at IS NULL
ORDER BY trial_ends_at
`, from, to)
}

// MarkTrialReminderSent запоминает отправку напоминания.
func (p *Postgres) MarkTrialReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE subscribers SET trial_reminder_sent_at = $2, updated_at = now() WHERE id = $1`, id, at)
	metrics.ObserveNetworkRequest("postgres", "subscribers_mark_reminded", "subscribers", start, err)
	return mapError(err, "subscriber")
}

// ExpireTrials переводит истёкшие пробные подписки в expired и возвращает их число.
func (p *Postgres) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE subscribers SET status = 'expired', updated_at = now()
WHERE status = 'trial' AND trial_ends_at IS NOT NULL AND trial_ends_at <= $1
`, now)
	metrics.ObserveNetworkRequest("postgres", "subscribers_expire_trials", "subscribers", start, err)
	if err != nil {
		return 0, mapError(err, "expire trials")
	}
	return tag.RowsAffected(), nil
}

// ListNurtureCandidates возвращает активных подписчиков, подписавшихся не раньше since.
func (p *Postgres) ListNurtureCandidates(ctx context.Context, since time.Time) ([]domain.Subscriber, error) {
	return p.querySubscribers(ctx, "subscribers_nurture_candidates", `
SELECT `+subscriberColumns+`
FROM subscribers
WHERE status IN ('trial', 'active') AND created_at >= $1
ORDER BY created_at
`, since)
}

// AppendNurtureSent добавляет номер письма приветственной серии, если его ещё нет.
func (p *Postgres) AppendNurtureSent(ctx context.Context, id uuid.UUID, index int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE subscribers
SET nurture_sent = array_append(nurture_sent, $2::int), updated_at = now()
WHERE id = $1 AND NOT ($2::int = ANY(nurture_sent))
`, id, index)
	metrics.ObserveNetworkRequest("postgres", "subscribers_append_nurture", "subscribers", start, err)
	return mapError(err, "subscriber")
}

// SummarizeDeliveredSavings считает экономию по сделкам, которые подписчик уже получил.
func (p *Postgres) SummarizeDeliveredSavings(ctx context.Context, subscriberID uuid.UUID) (domain.SavingsSummary, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT r.price, r.destination_country, r.destination_city
FROM alerts_sent a
JOIN curated_deals c ON c.id = a.curated_deal_id
JOIN raw_deals r ON r.id = c.raw_deal_id
WHERE a.subscriber_id = $1
`, subscriberID)
	metrics.ObserveNetworkRequest("postgres", "alerts_sent_savings", "alerts_sent", start, err)
	if err != nil {
		return domain.SavingsSummary{}, mapError(err, "savings summary")
	}
	defer rows.Close()

	var (
		summary     domain.SavingsSummary
		bestSavings float64
	)
	for rows.Next() {
		var d domain.RawDeal
		if err := rows.Scan(&d.Price, &d.DestinationCountry, &d.DestinationCity); err != nil {
			return domain.SavingsSummary{}, err
		}
		summary.Deals++
		saved := domain.Savings(d)
		summary.TotalSavings += saved
		if saved > bestSavings {
			bestSavings = saved
			summary.BestPrice = d.Price
			summary.BestCity = d.DestinationCity
		}
	}
	return summary, rows.Err()
}
