package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriberStatus описывает состояние подписки.
type SubscriberStatus string

const (
	SubscriberTrial        SubscriberStatus = "trial"
	SubscriberActive       SubscriberStatus = "active"
	SubscriberCancelled    SubscriberStatus = "cancelled"
	SubscriberExpired      SubscriberStatus = "expired"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
)

// Terminal сообщает, что подписка завершена и может быть только реанимирована.
func (s SubscriberStatus) Terminal() bool {
	switch s {
	case SubscriberCancelled, SubscriberExpired, SubscriberUnsubscribed:
		return true
	}
	return false
}

// Valid проверяет, что статус известен.
func (s SubscriberStatus) Valid() bool {
	switch s {
	case SubscriberTrial, SubscriberActive, SubscriberCancelled, SubscriberExpired, SubscriberUnsubscribed:
		return true
	}
	return false
}

// SubscriberPlan описывает тариф подписчика.
type SubscriberPlan string

const (
	PlanFree  SubscriberPlan = "free"
	PlanTrial SubscriberPlan = "trial"
	PlanPaid  SubscriberPlan = "paid"
)

// Valid проверяет, что тариф известен.
func (p SubscriberPlan) Valid() bool {
	switch p {
	case PlanFree, PlanTrial, PlanPaid:
		return true
	}
	return false
}

// Frequency задаёт, как часто подписчик получает письма со сделками.
type Frequency string

const (
	FrequencyInstant Frequency = "instant"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
)

// Valid проверяет, что частота известна.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyInstant, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// Channel возвращает канал доставки для частоты.
func (f Frequency) Channel() AlertChannel {
	if f == FrequencyInstant {
		return ChannelInstant
	}
	return ChannelDigest
}

// Subscriber описывает подписчика рассылки.
type Subscriber struct {
	ID                  uuid.UUID
	Email               string
	HomeAirport         string
	CityName            string
	Status              SubscriberStatus
	Plan                SubscriberPlan
	TrialEndsAt         *time.Time
	Frequency           Frequency
	PaymentCustomerID   string
	NurtureSent         []int
	TrialReminderSentAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CanReceiveAlerts сообщает, можно ли отправлять подписчику сделки.
func (s Subscriber) CanReceiveAlerts(now time.Time) bool {
	switch s.Status {
	case SubscriberActive:
		return true
	case SubscriberTrial:
		return s.TrialEndsAt == nil || now.Before(*s.TrialEndsAt)
	}
	return false
}

// HasNurture проверяет, было ли отправлено письмо приветственной серии.
func (s Subscriber) HasNurture(index int) bool {
	for _, sent := range s.NurtureSent {
		if sent == index {
			return true
		}
	}
	return false
}

// RawDeal хранит цену на направление, полученная от поставщика в момент выборки.
type RawDeal struct {
	ID                 uuid.UUID
	DepartureAirport   string
	DestinationCode    string
	DestinationCity    string
	DestinationCountry string
	Price              float64
	Currency           string
	DepartDate         *time.Time
	ReturnDate         *time.Time
	Airline            string
	Stops              int
	DurationMinutes    int
	BookingURL         string
	FetchedAt          time.Time
}

// FetchWindow возвращает окно выборки, по которому сделки уникальны.
func (d RawDeal) FetchWindow() time.Time {
	return d.FetchedAt.UTC().Truncate(24 * time.Hour)
}

// DealTier описывает качество сделки.
type DealTier string

const (
	TierGood        DealTier = "good"
	TierNotable     DealTier = "notable"
	TierExceptional DealTier = "exceptional"
)

// Valid проверяет, что уровень известен.
func (t DealTier) Valid() bool {
	switch t {
	case TierGood, TierNotable, TierExceptional:
		return true
	}
	return false
}

// Rank возвращает порядковый вес уровня, лучшему уровню соответствует больший вес.
func (t DealTier) Rank() int {
	switch t {
	case TierExceptional:
		return 3
	case TierNotable:
		return 2
	case TierGood:
		return 1
	}
	return 0
}

// CuratedDeal описывает сделку, признанную достойной рассылки.
type CuratedDeal struct {
	ID               uuid.UUID
	RawDealID        uuid.UUID
	Tier             DealTier
	Description      string
	Model            string
	InstantAlertSent bool
	DigestSent       bool
	CuratedAt        time.Time
	Deal             RawDeal
}

// AlertChannel определяет канал доставки сделки.
type AlertChannel string

const (
	ChannelInstant AlertChannel = "instant"
	ChannelDigest  AlertChannel = "digest"
)

// AlertSent фиксирует доставку сделки подписчику.
type AlertSent struct {
	SubscriberID  uuid.UUID
	CuratedDealID uuid.UUID
	Channel       AlertChannel
	SentAt        time.Time
}

// Curation содержит результат оценки сделки куратором.
type Curation struct {
	Tier        DealTier
	Description string
	Model       string
}
