package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AlertJob содержит задачу мгновенной рассылки одной сделки.
type AlertJob struct {
	ID            string    `json:"job_id,omitempty"`
	CuratedDealID uuid.UUID `json:"curated_deal_id"`
	Airport       string    `json:"airport"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	Attempt       int       `json:"attempt,omitempty"`
}

// AlertQueue описывает очередь задач мгновенной рассылки.
type AlertQueue interface {
	Enqueue(ctx context.Context, job AlertJob) error
	Receive(ctx context.Context) (AlertJob, AlertAckFunc, error)
}

// AlertAckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AlertAckFunc func(success bool) error
