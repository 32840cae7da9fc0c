package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event        string
	SubscriberID *uuid.UUID
	Airport      string
	Metadata     map[string]any
	OccurredAt   time.Time
}

const (
	// BusinessMetricEventSignup фиксирует новую подписку.
	BusinessMetricEventSignup = "signup"
	// BusinessMetricEventReactivated фиксирует возврат ранее отписавшегося подписчика.
	BusinessMetricEventReactivated = "reactivated"
	// BusinessMetricEventUnsubscribed фиксирует отписку.
	BusinessMetricEventUnsubscribed = "unsubscribed"
	// BusinessMetricEventCheckoutCompleted фиксирует оплату подписки.
	BusinessMetricEventCheckoutCompleted = "checkout_completed"
	// BusinessMetricEventSubscriptionCancelled фиксирует отмену подписки у провайдера.
	BusinessMetricEventSubscriptionCancelled = "subscription_cancelled"
	// BusinessMetricEventAlertSent фиксирует принятое шлюзом письмо со сделками.
	BusinessMetricEventAlertSent = "alert_sent"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
