package reminders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

var testNow = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

type stubLifecycle struct {
	subs     []domain.Subscriber
	reminded map[uuid.UUID]time.Time
	nurture  map[uuid.UUID][]int
	expired  int64
	summary  domain.SavingsSummary
}

func newStub(subs ...domain.Subscriber) *stubLifecycle {
	return &stubLifecycle{subs: subs, reminded: map[uuid.UUID]time.Time{}, nurture: map[uuid.UUID][]int{}}
}

func (s *stubLifecycle) ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for _, sub := range s.subs {
		if sub.Status != domain.SubscriberTrial || sub.TrialEndsAt == nil {
			continue
		}
		if _, done := s.reminded[sub.ID]; done {
			continue
		}
		if sub.TrialEndsAt.Before(from) || sub.TrialEndsAt.After(to) {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *stubLifecycle) MarkTrialReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.reminded[id] = at
	return nil
}

func (s *stubLifecycle) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	return s.expired, nil
}

func (s *stubLifecycle) ListNurtureCandidates(ctx context.Context, since time.Time) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for _, sub := range s.subs {
		if !sub.CreatedAt.Before(since) {
			sub.NurtureSent = s.nurture[sub.ID]
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *stubLifecycle) AppendNurtureSent(ctx context.Context, id uuid.UUID, index int) error {
	s.nurture[id] = append(s.nurture[id], index)
	return nil
}

func (s *stubLifecycle) SummarizeDeliveredSavings(ctx context.Context, id uuid.UUID) (domain.SavingsSummary, error) {
	return s.summary, nil
}

type captureMailer struct {
	sent []domain.Email
	fail bool
}

func (m *captureMailer) Send(ctx context.Context, e domain.Email) error {
	if m.fail {
		return errors.New("mailjet down")
	}
	m.sent = append(m.sent, e)
	return nil
}

func trial(email string, endsIn time.Duration) domain.Subscriber {
	ends := testNow.Add(endsIn)
	return domain.Subscriber{ID: uuid.New(), Email: email, HomeAirport: "JFK", Status: domain.SubscriberTrial, TrialEndsAt: &ends}
}

func TestTrialRemindersWindow(t *testing.T) {
	in := trial("in@x.com", 48*time.Hour)
	edge := trial("edge@x.com", 60*time.Hour)
	out := trial("out@x.com", 72*time.Hour)
	repo := newStub(in, edge, out)
	repo.summary = domain.SavingsSummary{Deals: 3, TotalSavings: 640, BestCity: "Paris", BestPrice: 299}
	mailer := &captureMailer{}
	svc := NewService(repo, mailer, "https://homebaseflights.com", 2, zerolog.Nop())

	res, err := svc.TrialReminders(context.Background(), testNow)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res != (Result{Checked: 2, Sent: 2}) {
		t.Fatalf("неожиданный результат: %+v", res)
	}
	if _, ok := repo.reminded[out.ID]; ok {
		t.Fatalf("подписчик с окончанием через 3 дня не должен попадать в окно")
	}
	if !strings.Contains(mailer.sent[0].Text, "$640") || !strings.Contains(mailer.sent[0].HTML, "/checkout?email=in%40x.com") {
		t.Fatalf("в напоминании нет экономии или ссылки на оплату: %s", mailer.sent[0].Text)
	}

	res, err = svc.TrialReminders(context.Background(), testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.Sent != 0 {
		t.Fatalf("повторный запуск не должен слать напоминания, отправлено %d", res.Sent)
	}
}

func TestTrialRemindersFailureIsNotMarked(t *testing.T) {
	sub := trial("in@x.com", 48*time.Hour)
	repo := newStub(sub)
	svc := NewService(repo, &captureMailer{fail: true}, "https://homebaseflights.com", 0, zerolog.Nop())

	res, err := svc.TrialReminders(context.Background(), testNow)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res != (Result{Checked: 1, Failed: 1}) {
		t.Fatalf("неожиданный результат: %+v", res)
	}
	if len(repo.reminded) != 0 {
		t.Fatalf("неотправленное напоминание не должно помечаться")
	}
}

func TestDueNurture(t *testing.T) {
	cases := []struct {
		age  time.Duration
		sent []int
		want int
	}{
		{age: time.Hour, want: 0},
		{age: 36 * time.Hour, sent: []int{0}, want: -1},
		{age: 50 * time.Hour, sent: []int{0}, want: 1},
		{age: 5 * day, sent: []int{0}, want: 2},
		{age: 6*day + time.Hour, sent: []int{0, 1, 2, 3}, want: -1},
		{age: -time.Hour, want: -1},
		{age: -3 * day, want: -1},
		{age: 0, want: 0},
	}
	for _, c := range cases {
		sub := domain.Subscriber{CreatedAt: testNow.Add(-c.age), NurtureSent: c.sent}
		if got := DueNurture(sub, testNow); got != c.want {
			t.Fatalf("возраст %v: ожидали %d, получили %d", c.age, c.want, got)
		}
	}
}

func TestSendNurtureOnePerRun(t *testing.T) {
	fresh := domain.Subscriber{ID: uuid.New(), Email: "new@x.com", CityName: "Boston", Status: domain.SubscriberTrial, CreatedAt: testNow.Add(-time.Hour)}
	mid := domain.Subscriber{ID: uuid.New(), Email: "mid@x.com", Status: domain.SubscriberActive, CreatedAt: testNow.Add(-4*day - time.Hour)}
	repo := newStub(fresh, mid)
	repo.nurture[mid.ID] = []int{0, 1}
	mailer := &captureMailer{}
	svc := NewService(repo, mailer, "https://homebaseflights.com", 2, zerolog.Nop())

	res, err := svc.SendNurture(context.Background(), testNow)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res != (Result{Checked: 2, Sent: 2}) {
		t.Fatalf("неожиданный результат: %+v", res)
	}
	if got := repo.nurture[fresh.ID]; len(got) != 1 || got[0] != 0 {
		t.Fatalf("ожидали приветственное письмо, получили %v", got)
	}
	if got := repo.nurture[mid.ID]; len(got) != 3 || got[2] != 2 {
		t.Fatalf("ожидали третье письмо серии, получили %v", got)
	}
	if mailer.sent[0].Subject != "Welcome to Homebase Flights" || mailer.sent[0].Tag != "nurture_0" {
		t.Fatalf("неожиданное письмо: %q", mailer.sent[0].Subject)
	}

	res, err = svc.SendNurture(context.Background(), testNow)
	if err != nil || res.Sent != 0 {
		t.Fatalf("повторный запуск не должен слать письма: %+v, %v", res, err)
	}
}

func TestExpireTrials(t *testing.T) {
	repo := newStub()
	repo.expired = 4
	svc := NewService(repo, &captureMailer{}, "", 0, zerolog.Nop())
	n, err := svc.ExpireTrials(context.Background(), testNow)
	if err != nil || n != 4 {
		t.Fatalf("ожидали 4 истёкших, получили %d, %v", n, err)
	}
}
