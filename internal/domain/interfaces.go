package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PriceGateway получает цены у поставщика авиаданных.
type PriceGateway interface {
	FetchDeals(ctx context.Context, airport string) ([]RawDeal, error)
}

// BatchResult хранит итог выборки по одному аэропорту.
type BatchResult struct {
	Deals []RawDeal
	Err   error
}

// BatchPriceGateway опрашивает несколько аэропортов с ограничением параллелизма.
type BatchPriceGateway interface {
	PriceGateway
	FetchBatch(ctx context.Context, airports []string) map[string]BatchResult
}

// UpsertResult считает итог пакетной записи сделок.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Errors   int `json:"errors"`
}

// DealRepo хранит сырые и отобранные сделки.
type DealRepo interface {
	UpsertRawDeals(ctx context.Context, airport string, deals []RawDeal) (UpsertResult, error)
	PruneStaleDeals(ctx context.Context, olderThan time.Time) (int64, error)
	ListRawDeals(ctx context.Context, airport string) ([]RawDeal, error)
	ListUncuratedRawDeals(ctx context.Context, airport string, limit int) ([]RawDeal, error)
	UpsertCuratedDeal(ctx context.Context, deal CuratedDeal) (CuratedDeal, bool, error)
	GetCuratedDeal(ctx context.Context, id uuid.UUID) (CuratedDeal, error)
}

// SubscriberCriteria ограничивает выборку подписчиков для рассылки.
type SubscriberCriteria struct {
	Airport     string
	Frequencies []Frequency
}

// AlertRepo отвечает за выбор получателей и учёт доставок.
type AlertRepo interface {
	GetSubscribersEligibleForAlerts(ctx context.Context, criteria SubscriberCriteria) ([]Subscriber, error)
	ListSubscribersByAirport(ctx context.Context, airport string) ([]Subscriber, error)
	GetUndeliveredCuratedDeals(ctx context.Context, subscriberID uuid.UUID) ([]CuratedDeal, error)
	GetCuratedDeal(ctx context.Context, id uuid.UUID) (CuratedDeal, error)
	RecordAlertSent(ctx context.Context, subscriberID, curatedDealID uuid.UUID, channel AlertChannel) error
	MarkCuratedDispatched(ctx context.Context, curatedDealID uuid.UUID, channel AlertChannel) error
}

// SubscriberRepo управляет подписчиками.
type SubscriberRepo interface {
	CreateSubscriber(ctx context.Context, s Subscriber) (Subscriber, error)
	GetSubscriberByEmail(ctx context.Context, email string) (Subscriber, error)
	GetSubscriberByID(ctx context.Context, id uuid.UUID) (Subscriber, error)
	GetSubscriberByCustomerID(ctx context.Context, customerID string) (Subscriber, error)
	UpdateSubscriberStatus(ctx context.Context, id uuid.UUID, status SubscriberStatus) error
	ReactivateSubscriber(ctx context.Context, id uuid.UUID, airport, city string, trialEndsAt time.Time) (Subscriber, error)
	ActivatePaidSubscriber(ctx context.Context, email, customerID string) (Subscriber, error)
	UpsertSubscriberAdmin(ctx context.Context, s Subscriber) (Subscriber, error)
}

// SavingsSummary описывает экономию по доставленным подписчику сделкам.
type SavingsSummary struct {
	Deals        int
	TotalSavings float64
	BestPrice    float64
	BestCity     string
}

// LifecycleRepo обслуживает пробный период и приветственную серию.
type LifecycleRepo interface {
	ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]Subscriber, error)
	MarkTrialReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
	ExpireTrials(ctx context.Context, now time.Time) (int64, error)
	ListNurtureCandidates(ctx context.Context, since time.Time) ([]Subscriber, error)
	AppendNurtureSent(ctx context.Context, id uuid.UUID, index int) error
	SummarizeDeliveredSavings(ctx context.Context, subscriberID uuid.UUID) (SavingsSummary, error)
}

// Email описывает письмо для транзакционного шлюза.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Tag     string
}

// EmailSender отправляет письма. Ошибка означает, что письмо не принято.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// CheckoutRequest описывает создание платёжной сессии.
type CheckoutRequest struct {
	Email        string
	SubscriberID uuid.UUID
	TrialDays    int
	SuccessURL   string
	CancelURL    string
}

// CheckoutSession отражает состояние платёжной сессии у провайдера.
type CheckoutSession struct {
	ID         string
	Email      string
	CustomerID string
	Complete   bool
}

// Типы событий платёжного провайдера, которые мы обрабатываем.
const (
	PaymentEventCheckoutCompleted   = "checkout.session.completed"
	PaymentEventSubscriptionDeleted = "customer.subscription.deleted"
)

// PaymentEvent содержит проверенное событие вебхука.
type PaymentEvent struct {
	Type       string
	SessionID  string
	CustomerID string
	Email      string
}

// PaymentProvider работает с подписками у платёжного провайдера.
type PaymentProvider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	ParseWebhook(payload []byte, signature string) (PaymentEvent, error)
}

// Curator решает, достойна ли сделка рассылки.
type Curator interface {
	Curate(ctx context.Context, deal RawDeal) (Curation, bool, error)
}

// TelemetrySink принимает события без ожидания и без ошибок для вызывающего.
type TelemetrySink interface {
	Track(metric BusinessMetric)
}

// Notifier отправляет служебные сообщения команде.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// ErrCacheMiss возвращается кэшем при отсутствии ключа.
var ErrCacheMiss = errors.New("cache miss")

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
