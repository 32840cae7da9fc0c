package subscribers

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

const (
	defaultTrialDays = 14
	day              = 24 * time.Hour
)

// SignupRequest содержит данные формы подписки.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	CitySlug string `json:"citySlug" validate:"required,max=64"`
	CityName string `json:"cityName" validate:"omitempty,max=128"`
}

// SignupResult описывает исход подписки.
type SignupResult struct {
	Subscriber    domain.Subscriber
	AlreadyExists bool
	Reactivated   bool
}

// AdminSubscriber описывает ручное исправление подписчика.
type AdminSubscriber struct {
	Email       string     `json:"email" validate:"required,email,max=254"`
	Airport     string     `json:"airport" validate:"required,len=3"`
	CityName    string     `json:"cityName" validate:"omitempty,max=128"`
	Status      string     `json:"status" validate:"omitempty,oneof=trial active cancelled expired unsubscribed"`
	Plan        string     `json:"plan" validate:"omitempty,oneof=free trial paid"`
	Frequency   string     `json:"frequency" validate:"omitempty,oneof=instant daily weekly"`
	TrialEndsAt *time.Time `json:"trialEndsAt"`
}

// Service управляет подписками: регистрация, отписка, оплата.
type Service struct {
	repo      domain.SubscriberRepo
	payments  domain.PaymentProvider
	telemetry domain.TelemetrySink
	validate  *validator.Validate
	log       zerolog.Logger
	now       func() time.Time
	trialDays int
	baseURL   string
}

// NewService создаёт сервис. telemetry может быть nil.
func NewService(repo domain.SubscriberRepo, payments domain.PaymentProvider, telemetry domain.TelemetrySink, baseURL string, trialDays int, logger zerolog.Logger) *Service {
	if trialDays <= 0 {
		trialDays = defaultTrialDays
	}
	return &Service{
		repo:      repo,
		payments:  payments,
		telemetry: telemetry,
		validate:  validator.New(),
		log:       logger,
		now:       time.Now,
		trialDays: trialDays,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Signup регистрирует подписчика на пробный период. Активный или пробный дубликат
// возвращается с AlreadyExists и ошибкой constraint_violation. Завершённая подписка
// перезапускается с новым пробным периодом.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (SignupResult, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return SignupResult{}, domain.ValidationError(err.Error(), nil)
	}
	airport, ok := domain.AirportForCitySlug(req.CitySlug)
	if !ok {
		return SignupResult{}, domain.UnsupportedAirportError(req.CitySlug)
	}
	cityName := strings.TrimSpace(req.CityName)
	if cityName == "" {
		cityName = airport.City
	}
	trialEnds := s.now().UTC().Add(time.Duration(s.trialDays) * day)

	existing, err := s.repo.GetSubscriberByEmail(ctx, req.Email)
	switch {
	case err == nil && existing.Status.Terminal():
		sub, err := s.repo.ReactivateSubscriber(ctx, existing.ID, airport.Code, cityName, trialEnds)
		if err != nil {
			return SignupResult{}, err
		}
		s.track(domain.BusinessMetricEventReactivated, sub, map[string]any{"previous_status": string(existing.Status)})
		return SignupResult{Subscriber: sub, Reactivated: true}, nil
	case err == nil:
		return SignupResult{Subscriber: existing, AlreadyExists: true}, domain.NewError(domain.KindConstraintViolation, "subscriber already exists", nil)
	case domain.KindOf(err) != domain.KindNotFound:
		return SignupResult{}, err
	}

	sub, err := s.repo.CreateSubscriber(ctx, domain.Subscriber{
		Email:       req.Email,
		HomeAirport: airport.Code,
		CityName:    cityName,
		Status:      domain.SubscriberTrial,
		Plan:        domain.PlanTrial,
		TrialEndsAt: &trialEnds,
		Frequency:   domain.FrequencyDaily,
	})
	if domain.KindOf(err) == domain.KindConstraintViolation {
		return SignupResult{AlreadyExists: true}, err
	}
	if err != nil {
		return SignupResult{}, err
	}
	s.track(domain.BusinessMetricEventSignup, sub, map[string]any{"city": airport.CitySlug})
	return SignupResult{Subscriber: sub}, nil
}

// Unsubscribe отписывает по email и токену. Повторная отписка не считается ошибкой.
func (s *Service) Unsubscribe(ctx context.Context, email, token string) error {
	sub, err := s.byToken(ctx, email, token)
	if err != nil {
		return err
	}
	if sub.Status == domain.SubscriberUnsubscribed {
		return nil
	}
	if err := s.repo.UpdateSubscriberStatus(ctx, sub.ID, domain.SubscriberUnsubscribed); err != nil {
		return err
	}
	s.track(domain.BusinessMetricEventUnsubscribed, sub, map[string]any{"previous_status": string(sub.Status)})
	return nil
}

// PortalURL открывает портал управления подпиской у платёжного провайдера.
func (s *Service) PortalURL(ctx context.Context, email, token string) (string, error) {
	sub, err := s.byToken(ctx, email, token)
	if err != nil {
		return "", err
	}
	if sub.PaymentCustomerID == "" {
		return "", domain.NotFoundError("subscriber has no payment account")
	}
	return s.payments.CreatePortalSession(ctx, sub.PaymentCustomerID, s.baseURL+"/account")
}

// StartCheckout создаёт платёжную сессию для адреса. Остаток пробного периода
// переносится в подписку.
func (s *Service) StartCheckout(ctx context.Context, email string) (string, error) {
	email = domain.NormalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", domain.ValidationError("invalid email", err)
	}
	req := domain.CheckoutRequest{
		Email:      email,
		SuccessURL: s.baseURL + "/checkout-callback?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.baseURL + "/pricing",
	}
	sub, err := s.repo.GetSubscriberByEmail(ctx, email)
	switch {
	case err == nil:
		req.SubscriberID = sub.ID
		req.TrialDays = s.remainingTrialDays(sub)
	case domain.KindOf(err) != domain.KindNotFound:
		return "", err
	}
	return s.payments.CreateCheckout(ctx, req)
}

// CompleteCheckout активирует платную подписку по завершённой сессии.
func (s *Service) CompleteCheckout(ctx context.Context, sessionID string) (domain.Subscriber, error) {
	session, err := s.payments.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return domain.Subscriber{}, err
	}
	if !session.Complete {
		return domain.Subscriber{}, domain.ValidationError("checkout session is not complete", nil)
	}
	return s.activate(ctx, session.Email, session.CustomerID, session.ID)
}

// HandlePaymentEvent применяет событие вебхука. События о неизвестных
// подписчиках логируются и не считаются ошибкой, чтобы провайдер не повторял их.
func (s *Service) HandlePaymentEvent(ctx context.Context, ev domain.PaymentEvent) error {
	var err error
	switch ev.Type {
	case domain.PaymentEventCheckoutCompleted:
		_, err = s.activate(ctx, ev.Email, ev.CustomerID, ev.SessionID)
	case domain.PaymentEventSubscriptionDeleted:
		err = s.cancel(ctx, ev.CustomerID)
	default:
		s.log.Debug().Str("type", ev.Type).Msg("subscribers: payment event ignored")
		return nil
	}
	if domain.KindOf(err) == domain.KindNotFound {
		s.log.Warn().Err(err).Str("type", ev.Type).Str("customer", ev.CustomerID).Msg("subscribers: payment event for unknown subscriber")
		return nil
	}
	return err
}

// AdminUpsert создаёт или исправляет подписчика вручную.
func (s *Service) AdminUpsert(ctx context.Context, in AdminSubscriber) (domain.Subscriber, error) {
	in.Email = domain.NormalizeEmail(in.Email)
	in.Airport = domain.NormalizeAirport(in.Airport)
	if err := s.validate.Struct(in); err != nil {
		return domain.Subscriber{}, domain.ValidationError(err.Error(), nil)
	}
	airport, ok := domain.LookupAirport(in.Airport)
	if !ok {
		return domain.Subscriber{}, domain.UnsupportedAirportError(in.Airport)
	}
	sub := domain.Subscriber{
		Email:       in.Email,
		HomeAirport: airport.Code,
		CityName:    in.CityName,
		Status:      domain.SubscriberStatus(in.Status),
		Plan:        domain.SubscriberPlan(in.Plan),
		Frequency:   domain.Frequency(in.Frequency),
		TrialEndsAt: in.TrialEndsAt,
	}
	if sub.CityName == "" {
		sub.CityName = airport.City
	}
	if sub.Status == "" {
		sub.Status = domain.SubscriberTrial
	}
	if sub.Plan == "" {
		sub.Plan = domain.PlanTrial
		if sub.Status == domain.SubscriberActive {
			sub.Plan = domain.PlanPaid
		}
	}
	if sub.Frequency == "" {
		sub.Frequency = domain.FrequencyDaily
	}
	if sub.Status == domain.SubscriberTrial && sub.TrialEndsAt == nil {
		ends := s.now().UTC().Add(time.Duration(s.trialDays) * day)
		sub.TrialEndsAt = &ends
	}
	saved, err := s.repo.UpsertSubscriberAdmin(ctx, sub)
	if err != nil {
		return domain.Subscriber{}, err
	}
	s.log.Info().Str("subscriber", saved.ID.String()).Str("status", string(saved.Status)).Msg("subscribers: admin upsert")
	return saved, nil
}

func (s *Service) activate(ctx context.Context, email, customerID, sessionID string) (domain.Subscriber, error) {
	if strings.TrimSpace(email) == "" {
		return domain.Subscriber{}, domain.ValidationError("checkout session has no email", nil)
	}
	sub, err := s.repo.ActivatePaidSubscriber(ctx, email, customerID)
	if err != nil {
		return domain.Subscriber{}, err
	}
	s.track(domain.BusinessMetricEventCheckoutCompleted, sub, map[string]any{"session": sessionID})
	return sub, nil
}

func (s *Service) cancel(ctx context.Context, customerID string) error {
	if customerID == "" {
		return domain.ValidationError("payment event has no customer", nil)
	}
	sub, err := s.repo.GetSubscriberByCustomerID(ctx, customerID)
	if err != nil {
		return err
	}
	if sub.Status == domain.SubscriberCancelled {
		return nil
	}
	if err := s.repo.UpdateSubscriberStatus(ctx, sub.ID, domain.SubscriberCancelled); err != nil {
		return err
	}
	s.track(domain.BusinessMetricEventSubscriptionCancelled, sub, nil)
	return nil
}

func (s *Service) byToken(ctx context.Context, email, token string) (domain.Subscriber, error) {
	if !domain.VerifyActionToken(email, token) {
		return domain.Subscriber{}, domain.ValidationError("invalid token", nil)
	}
	return s.repo.GetSubscriberByEmail(ctx, domain.NormalizeEmail(email))
}

func (s *Service) remainingTrialDays(sub domain.Subscriber) int {
	if sub.Status != domain.SubscriberTrial || sub.TrialEndsAt == nil {
		return 0
	}
	left := sub.TrialEndsAt.Sub(s.now())
	if left <= 0 {
		return 0
	}
	return int((left + day - 1) / day)
}

func (s *Service) track(event string, sub domain.Subscriber, meta map[string]any) {
	if s.telemetry == nil {
		return
	}
	var id *uuid.UUID
	if sub.ID != uuid.Nil {
		v := sub.ID
		id = &v
	}
	s.telemetry.Track(domain.BusinessMetric{
		Event:        event,
		SubscriberID: id,
		Airport:      sub.HomeAirport,
		Metadata:     meta,
		OccurredAt:   s.now().UTC(),
	})
}
