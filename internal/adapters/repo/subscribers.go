package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

const subscriberColumns = `id, email, home_airport, city_name, status, plan, trial_ends_at, frequency, payment_customer_id, nurture_sent, trial_reminder_sent_at, created_at, updated_at`

func scanSubscriber(row scanner) (domain.Subscriber, error) {
	var (
		s                       domain.Subscriber
		status, plan, frequency string
		trialEnds, reminded     sql.NullTime
		customer                sql.NullString
		nurture                 []int32
	)
	if err := row.Scan(&s.ID, &s.Email, &s.HomeAirport, &s.CityName, &status, &plan, &trialEnds, &frequency,
		&customer, &nurture, &reminded, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.Subscriber{}, err
	}
	s.Status = domain.SubscriberStatus(status)
	s.Plan = domain.SubscriberPlan(plan)
	s.Frequency = domain.Frequency(frequency)
	s.TrialEndsAt = timePtr(trialEnds)
	s.TrialReminderSentAt = timePtr(reminded)
	if customer.Valid {
		s.PaymentCustomerID = customer.String
	}
	for _, n := range nurture {
		s.NurtureSent = append(s.NurtureSent, int(n))
	}
	return s, nil
}

func (p *Postgres) querySubscribers(ctx context.Context, op, query string, args ...any) ([]domain.Subscriber, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", op, "subscribers", start, err)
	if err != nil {
		return nil, mapError(err, op)
	}
	defer rows.Close()
	var subs []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (p *Postgres) querySubscriber(ctx context.Context, op, query string, args ...any) (domain.Subscriber, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	s, err := scanSubscriber(p.pool.QueryRow(ctx, query, args...))
	metrics.ObserveNetworkRequest("postgres", op, "subscribers", start, err)
	if err != nil {
		return domain.Subscriber{}, mapError(err, "subscriber")
	}
	return s, nil
}

// CreateSubscriber вставляет нового подписчика. Дубликат email возвращается как constraint_violation.
func (p *Postgres) CreateSubscriber(ctx context.Context, s domain.Subscriber) (domain.Subscriber, error) {
	if s.ID == uuid.Nil {
		s.ID = p.newID()
	}
	return p.querySubscriber(ctx, "subscribers_create", `
INSERT INTO subscribers (id, email, home_airport, city_name, status, plan, trial_ends_at, frequency)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+subscriberColumns,
		s.ID, strings.ToLower(strings.TrimSpace(s.Email)), s.HomeAirport, s.CityName, string(s.Status), string(s.Plan),
		nullTime(s.TrialEndsAt), string(s.Frequency))
}

// GetSubscriberByEmail ищет подписчика по нормализованному email.
func (p *Postgres) GetSubscriberByEmail(ctx context.Context, email string) (domain.Subscriber, error) {
	return p.querySubscriber(ctx, "subscribers_get_by_email",
		`SELECT `+subscriberColumns+` FROM subscribers WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
}

// GetSubscriberByID ищет подписчика по идентификатору.
func (p *Postgres) GetSubscriberByID(ctx context.Context, id uuid.UUID) (domain.Subscriber, error) {
	return p.querySubscriber(ctx, "subscribers_get_by_id",
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id)
}

// GetSubscriberByCustomerID ищет подписчика по клиенту платёжного провайдера.
func (p *Postgres) GetSubscriberByCustomerID(ctx context.Context, customerID string) (domain.Subscriber, error) {
	return p.querySubscriber(ctx, "subscribers_get_by_customer",
		`SELECT `+subscriberColumns+` FROM subscribers WHERE payment_customer_id = $1`, customerID)
}

// UpdateSubscriberStatus меняет статус подписки.
func (p *Postgres) UpdateSubscriberStatus(ctx context.Context, id uuid.UUID, status domain.SubscriberStatus) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE subscribers SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	metrics.ObserveNetworkRequest("postgres", "subscribers_update_status", "subscribers", start, err)
	if err != nil {
		return mapError(err, "subscriber")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundError("subscriber not found")
	}
	return nil
}

// ReactivateSubscriber возвращает завершённую подписку в пробный период.
func (p *Postgres) ReactivateSubscriber(ctx context.Context, id uuid.UUID, airport, city string, trialEndsAt time.Time) (domain.Subscriber, error) {
	return p.querySubscriber(ctx, "subscribers_reactivate", `
UPDATE subscribers
SET status = 'trial',
    plan = 'trial',
    trial_ends_at = $4,
    home_airport = $2,
    city_name = $3,
    trial_reminder_sent_at = NULL,
    updated_at = now()
WHERE id = $1
RETURNING `+subscriberColumns, id, airport, city, trialEndsAt)
}

// ActivatePaidSubscriber переводит подписчика на платный тариф после оплаты.
func (p *Postgres) ActivatePaidSubscriber(ctx context.Context, email, customerID string) (domain.Subscriber, error) {
	return p.querySubscriber(ctx, "subscribers_activate_paid", `
UPDATE subscribers
SET status = 'active',
    plan = 'paid',
    payment_customer_id = COALESCE($2, payment_customer_id),
    updated_at = now()
WHERE email = $1
RETURNING `+subscriberColumns, strings.ToLower(strings.TrimSpace(email)), nullString(customerID))
}

// UpsertSubscriberAdmin создаёт или исправляет подписчика из админки.
func (p *Postgres) UpsertSubscriberAdmin(ctx context.Context, s domain.Subscriber) (domain.Subscriber, error) {
	if s.ID == uuid.Nil {
		s.ID = p.newID()
	}
	return p.querySubscriber(ctx, "subscribers_admin_upsert", `
INSERT INTO subscribers (id, email, home_airport, city_name, status, plan, trial_ends_at, frequency)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (email) DO UPDATE
    SET home_airport = EXCLUDED.home_airport,
        city_name = EXCLUDED.city_name,
        status = EXCLUDED.status,
        plan = EXCLUDED.plan,
        trial_ends_at = EXCLUDED.trial_ends_at,
        frequency = EXCLUDED.frequency,
        updated_at = now()
RETURNING `+subscriberColumns,
		s.ID, strings.ToLower(strings.TrimSpace(s.Email)), s.HomeAirport, s.CityName, string(s.Status), string(s.Plan),
		nullTime(s.TrialEndsAt), string(s.Frequency))
}
