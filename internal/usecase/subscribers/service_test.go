package subscribers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type stubRepo struct {
	byEmail map[string]domain.Subscriber
	created []domain.Subscriber
	status  map[uuid.UUID]domain.SubscriberStatus
	upserts []domain.Subscriber
}

func newStubRepo(subs ...domain.Subscriber) *stubRepo {
	r := &stubRepo{byEmail: map[string]domain.Subscriber{}, status: map[uuid.UUID]domain.SubscriberStatus{}}
	for _, s := range subs {
		r.byEmail[s.Email] = s
	}
	return r
}

func (r *stubRepo) CreateSubscriber(ctx context.Context, s domain.Subscriber) (domain.Subscriber, error) {
	if _, ok := r.byEmail[s.Email]; ok {
		return domain.Subscriber{}, domain.NewError(domain.KindConstraintViolation, "duplicate", nil)
	}
	s.ID = uuid.New()
	r.byEmail[s.Email] = s
	r.created = append(r.created, s)
	return s, nil
}

func (r *stubRepo) GetSubscriberByEmail(ctx context.Context, email string) (domain.Subscriber, error) {
	s, ok := r.byEmail[email]
	if !ok {
		return domain.Subscriber{}, domain.NotFoundError("subscriber not found")
	}
	return s, nil
}

func (r *stubRepo) GetSubscriberByID(ctx context.Context, id uuid.UUID) (domain.Subscriber, error) {
	for _, s := range r.byEmail {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Subscriber{}, domain.NotFoundError("subscriber not found")
}

func (r *stubRepo) GetSubscriberByCustomerID(ctx context.Context, customerID string) (domain.Subscriber, error) {
	for _, s := range r.byEmail {
		if s.PaymentCustomerID == customerID {
			return s, nil
		}
	}
	return domain.Subscriber{}, domain.NotFoundError("subscriber not found")
}

func (r *stubRepo) UpdateSubscriberStatus(ctx context.Context, id uuid.UUID, status domain.SubscriberStatus) error {
	r.status[id] = status
	return nil
}

func (r *stubRepo) ReactivateSubscriber(ctx context.Context, id uuid.UUID, airport, city string, trialEndsAt time.Time) (domain.Subscriber, error) {
	for email, s := range r.byEmail {
		if s.ID == id {
			s.Status, s.Plan, s.HomeAirport, s.CityName, s.TrialEndsAt = domain.SubscriberTrial, domain.PlanTrial, airport, city, &trialEndsAt
			r.byEmail[email] = s
			return s, nil
		}
	}
	return domain.Subscriber{}, domain.NotFoundError("subscriber not found")
}

func (r *stubRepo) ActivatePaidSubscriber(ctx context.Context, email, customerID string) (domain.Subscriber, error) {
	s, ok := r.byEmail[email]
	if !ok {
		return domain.Subscriber{}, domain.NotFoundError("subscriber not found")
	}
	s.Status, s.Plan, s.PaymentCustomerID = domain.SubscriberActive, domain.PlanPaid, customerID
	r.byEmail[email] = s
	return s, nil
}

func (r *stubRepo) UpsertSubscriberAdmin(ctx context.Context, s domain.Subscriber) (domain.Subscriber, error) {
	s.ID = uuid.New()
	r.upserts = append(r.upserts, s)
	return s, nil
}

type stubPayments struct {
	checkout domain.CheckoutRequest
	session  domain.CheckoutSession
	portal   string
}

func (p *stubPayments) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (string, error) {
	p.checkout = req
	return "https://pay/session", nil
}

func (p *stubPayments) GetCheckoutSession(ctx context.Context, id string) (domain.CheckoutSession, error) {
	return p.session, nil
}

func (p *stubPayments) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	p.portal = customerID
	return "https://pay/portal", nil
}

func (p *stubPayments) ParseWebhook(payload []byte, signature string) (domain.PaymentEvent, error) {
	return domain.PaymentEvent{}, nil
}

type recordSink struct{ events []string }

func (s *recordSink) Track(m domain.BusinessMetric) { s.events = append(s.events, m.Event) }

func newTestService(repo *stubRepo, pay *stubPayments, sink *recordSink) *Service {
	var telemetry domain.TelemetrySink
	if sink != nil {
		telemetry = sink
	}
	svc := NewService(repo, pay, telemetry, "https://homebaseflights.com/", 14, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestSignupCreatesTrial(t *testing.T) {
	repo, sink := newStubRepo(), &recordSink{}
	svc := newTestService(repo, &stubPayments{}, sink)

	res, err := svc.Signup(context.Background(), SignupRequest{Email: " New@Example.com ", CitySlug: "new-york"})
	require.NoError(t, err)
	assert.False(t, res.AlreadyExists)
	assert.Equal(t, "new@example.com", res.Subscriber.Email)
	assert.Equal(t, "JFK", res.Subscriber.HomeAirport)
	assert.Equal(t, "New York", res.Subscriber.CityName)
	assert.Equal(t, domain.SubscriberTrial, res.Subscriber.Status)
	assert.Equal(t, domain.FrequencyDaily, res.Subscriber.Frequency)
	require.NotNil(t, res.Subscriber.TrialEndsAt)
	assert.True(t, res.Subscriber.TrialEndsAt.Equal(testNow.AddDate(0, 0, 14)))
	assert.Equal(t, []string{domain.BusinessMetricEventSignup}, sink.events)
}

func TestSignupRejectsInput(t *testing.T) {
	svc := newTestService(newStubRepo(), &stubPayments{}, nil)

	_, err := svc.Signup(context.Background(), SignupRequest{Email: "not-an-email", CitySlug: "new-york"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = svc.Signup(context.Background(), SignupRequest{Email: "a@x.com", CitySlug: "atlantis"})
	assert.Equal(t, domain.KindUnsupportedAirport, domain.KindOf(err))
}

func TestSignupExistingActiveSubscriber(t *testing.T) {
	existing := domain.Subscriber{ID: uuid.New(), Email: "a@x.com", HomeAirport: "JFK", Status: domain.SubscriberActive}
	repo := newStubRepo(existing)
	svc := newTestService(repo, &stubPayments{}, nil)

	res, err := svc.Signup(context.Background(), SignupRequest{Email: "a@x.com", CitySlug: "boston"})
	require.Error(t, err)
	assert.Equal(t, domain.KindConstraintViolation, domain.KindOf(err))
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, existing.ID, res.Subscriber.ID)
	assert.Empty(t, repo.created)
}

func TestSignupReactivatesUnsubscribed(t *testing.T) {
	existing := domain.Subscriber{ID: uuid.New(), Email: "a@x.com", HomeAirport: "JFK", Status: domain.SubscriberUnsubscribed}
	repo, sink := newStubRepo(existing), &recordSink{}
	svc := newTestService(repo, &stubPayments{}, sink)

	res, err := svc.Signup(context.Background(), SignupRequest{Email: "a@x.com", CitySlug: "boston", CityName: "Boston"})
	require.NoError(t, err)
	assert.True(t, res.Reactivated)
	assert.Equal(t, domain.SubscriberTrial, res.Subscriber.Status)
	assert.Equal(t, "BOS", res.Subscriber.HomeAirport)
	assert.Equal(t, []string{domain.BusinessMetricEventReactivated}, sink.events)
}

func TestUnsubscribeVerifiesToken(t *testing.T) {
	sub := domain.Subscriber{ID: uuid.New(), Email: "a@x.com", Status: domain.SubscriberTrial}
	repo := newStubRepo(sub)
	svc := newTestService(repo, &stubPayments{}, nil)

	err := svc.Unsubscribe(context.Background(), "a@x.com", "bogus")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Empty(t, repo.status)

	require.NoError(t, svc.Unsubscribe(context.Background(), "A@x.com", domain.ActionToken("a@x.com")))
	assert.Equal(t, domain.SubscriberUnsubscribed, repo.status[sub.ID])
}

func TestPortalURLRequiresCustomer(t *testing.T) {
	repo := newStubRepo(
		domain.Subscriber{ID: uuid.New(), Email: "trial@x.com", Status: domain.SubscriberTrial},
		domain.Subscriber{ID: uuid.New(), Email: "paid@x.com", Status: domain.SubscriberActive, PaymentCustomerID: "cus_1"},
	)
	pay := &stubPayments{}
	svc := newTestService(repo, pay, nil)

	_, err := svc.PortalURL(context.Background(), "trial@x.com", domain.ActionToken("trial@x.com"))
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	url, err := svc.PortalURL(context.Background(), "paid@x.com", domain.ActionToken("paid@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "https://pay/portal", url)
	assert.Equal(t, "cus_1", pay.portal)
}

func TestStartCheckoutCarriesRemainingTrial(t *testing.T) {
	ends := testNow.Add(50 * time.Hour)
	sub := domain.Subscriber{ID: uuid.New(), Email: "a@x.com", Status: domain.SubscriberTrial, TrialEndsAt: &ends}
	pay := &stubPayments{}
	svc := newTestService(newStubRepo(sub), pay, nil)

	url, err := svc.StartCheckout(context.Background(), "A@X.com")
	require.NoError(t, err)
	assert.Equal(t, "https://pay/session", url)
	assert.Equal(t, sub.ID, pay.checkout.SubscriberID)
	assert.Equal(t, 3, pay.checkout.TrialDays)
	assert.Equal(t, "https://homebaseflights.com/checkout-callback?session_id={CHECKOUT_SESSION_ID}", pay.checkout.SuccessURL)

	_, err = svc.StartCheckout(context.Background(), "nope")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestCompleteCheckout(t *testing.T) {
	repo, sink := newStubRepo(domain.Subscriber{ID: uuid.New(), Email: "a@x.com", Status: domain.SubscriberTrial}), &recordSink{}
	pay := &stubPayments{session: domain.CheckoutSession{ID: "cs_1", Email: "a@x.com", CustomerID: "cus_1"}}
	svc := newTestService(repo, pay, sink)

	_, err := svc.CompleteCheckout(context.Background(), "cs_1")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	pay.session.Complete = true
	sub, err := svc.CompleteCheckout(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriberActive, sub.Status)
	assert.Equal(t, "cus_1", sub.PaymentCustomerID)
	assert.Equal(t, []string{domain.BusinessMetricEventCheckoutCompleted}, sink.events)
}

func TestHandlePaymentEventCancellation(t *testing.T) {
	sub := domain.Subscriber{ID: uuid.New(), Email: "a@x.com", Status: domain.SubscriberActive, PaymentCustomerID: "cus_1"}
	repo, sink := newStubRepo(sub), &recordSink{}
	svc := newTestService(repo, &stubPayments{}, sink)

	require.NoError(t, svc.HandlePaymentEvent(context.Background(), domain.PaymentEvent{
		Type: domain.PaymentEventSubscriptionDeleted, CustomerID: "cus_1",
	}))
	assert.Equal(t, domain.SubscriberCancelled, repo.status[sub.ID])
	assert.Equal(t, []string{domain.BusinessMetricEventSubscriptionCancelled}, sink.events)

	require.NoError(t, svc.HandlePaymentEvent(context.Background(), domain.PaymentEvent{
		Type: domain.PaymentEventSubscriptionDeleted, CustomerID: "cus_unknown",
	}))
	require.NoError(t, svc.HandlePaymentEvent(context.Background(), domain.PaymentEvent{Type: "invoice.paid"}))
}

func TestAdminUpsertDefaults(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubPayments{}, nil)

	sub, err := svc.AdminUpsert(context.Background(), AdminSubscriber{Email: "ops@x.com", Airport: "sfo"})
	require.NoError(t, err)
	assert.Equal(t, "SFO", sub.HomeAirport)
	assert.Equal(t, "San Francisco", sub.CityName)
	assert.Equal(t, domain.SubscriberTrial, sub.Status)
	require.NotNil(t, sub.TrialEndsAt)

	paid, err := svc.AdminUpsert(context.Background(), AdminSubscriber{Email: "vip@x.com", Airport: "JFK", Status: "active", Frequency: "instant"})
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPaid, paid.Plan)
	assert.Nil(t, paid.TrialEndsAt)

	_, err = svc.AdminUpsert(context.Background(), AdminSubscriber{Email: "ops@x.com", Airport: "JFK", Status: "frozen"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = svc.AdminUpsert(context.Background(), AdminSubscriber{Email: "ops@x.com", Airport: "XXX"})
	assert.Equal(t, domain.KindUnsupportedAirport, domain.KindOf(err))
	assert.Len(t, repo.upserts, 2)
}
