package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

const defaultBuffer = 256

// Sink пишет бизнесовые события в фоне. Track никогда не блокирует вызывающего
// и не возвращает ошибок: при переполнении буфера событие отбрасывается.
type Sink struct {
	repo   domain.BusinessMetricRepo
	log    zerolog.Logger
	events chan domain.BusinessMetric
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ domain.TelemetrySink = (*Sink)(nil)

// NewSink запускает фоновую запись. buffer <= 0 означает размер по умолчанию.
func NewSink(repo domain.BusinessMetricRepo, logger zerolog.Logger, buffer int) *Sink {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &Sink{
		repo:   repo,
		log:    logger,
		events: make(chan domain.BusinessMetric, buffer),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Track ставит событие в очередь на запись. На nil-приёмнике ничего не делает.
func (s *Sink) Track(metric domain.BusinessMetric) {
	if s == nil {
		return
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = s.now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		metrics.BusinessEvents.WithLabelValues(metric.Event, "dropped").Inc()
		return
	}
	select {
	case s.events <- metric:
	default:
		metrics.BusinessEvents.WithLabelValues(metric.Event, "dropped").Inc()
		s.log.Debug().Str("event", metric.Event).Msg("telemetry: buffer full, event dropped")
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for metric := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.repo.RecordBusinessMetric(ctx, metric)
		cancel()
		if err != nil {
			metrics.BusinessEvents.WithLabelValues(metric.Event, "error").Inc()
			s.log.Warn().Err(err).Str("event", metric.Event).Msg("telemetry: failed to record event")
			continue
		}
		metrics.BusinessEvents.WithLabelValues(metric.Event, "ok").Inc()
	}
}

// Close перестаёт принимать события и ждёт записи уже принятых.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
