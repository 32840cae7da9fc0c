package alerts

import (
	"strings"
	"testing"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

func TestDigestEmail(t *testing.T) {
	f := NewFormatter("https://homebaseflights.com")
	sub := domain.Subscriber{Email: "a@x.com", HomeAirport: "JFK"}
	deal := domain.CuratedDeal{
		Tier:        domain.TierExceptional,
		Description: "**Paris** for **$299** <script>alert(1)</script>",
		Deal:        domain.RawDeal{DestinationCity: "Paris", Price: 299, BookingURL: "https://book.example/cdg"},
	}
	email, err := f.Digest(sub, []domain.CuratedDeal{deal, deal})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if email.To != "a@x.com" || email.Tag != "digest" {
		t.Fatalf("неожиданные поля письма: %+v", email)
	}
	if email.Subject != "2 new flight deals from New York" {
		t.Fatalf("неожиданная тема %q", email.Subject)
	}
	for _, want := range []string{"<strong>Paris</strong>", "https://book.example/cdg", "/unsubscribe?email=a%40x.com"} {
		if !strings.Contains(email.HTML, want) {
			t.Fatalf("в HTML нет %q", want)
		}
	}
	if strings.Contains(email.HTML, "<script>") {
		t.Fatalf("сырой HTML из описания не должен попадать в письмо")
	}
	if !strings.Contains(email.Text, "Paris for $299") || !strings.Contains(email.Text, "Unsubscribe: https://homebaseflights.com/unsubscribe") {
		t.Fatalf("неожиданный текст письма: %s", email.Text)
	}
}

func TestInstantEmailSubject(t *testing.T) {
	f := NewFormatter("https://homebaseflights.com")
	email, err := f.Instant(domain.Subscriber{Email: "b@x.com", CityName: "Boston"}, domain.CuratedDeal{
		Tier: domain.TierExceptional, Description: "Lisbon", Deal: domain.RawDeal{DestinationCode: "LIS", Price: 312.4},
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if email.Subject != "Deal alert: LIS for $312 round trip" || email.Tag != "instant" {
		t.Fatalf("неожиданное письмо: %q %q", email.Subject, email.Tag)
	}
}
