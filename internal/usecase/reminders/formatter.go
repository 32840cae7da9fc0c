package reminders

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

var layout = template.Must(template.New("layout").Parse(`<!doctype html>
<html><body style="margin:0;padding:24px;font-family:Arial,Helvetica,sans-serif;color:#1a1a1a">
<h1 style="font-size:20px;margin:0 0 16px">{{.Title}}</h1>
{{range .Paragraphs}}<p style="margin:0 0 12px;line-height:1.5">{{.}}</p>
{{end}}{{if .CTA}}<p style="margin:20px 0"><a href="{{.CTAURL}}" style="background:#0b5cff;color:#fff;padding:10px 18px;border-radius:4px;text-decoration:none">{{.CTA}}</a></p>
{{end}}<p style="margin-top:24px;font-size:12px;color:#888"><a href="{{.UnsubscribeURL}}" style="color:#888">Unsubscribe</a></p>
</body></html>`))

type message struct {
	Title          string
	Paragraphs     []string
	CTA            string
	CTAURL         string
	UnsubscribeURL string
}

func (m message) email(to, tag string) (domain.Email, error) {
	var html bytes.Buffer
	if err := layout.Execute(&html, m); err != nil {
		return domain.Email{}, fmt.Errorf("render %s email: %w", tag, err)
	}
	var text strings.Builder
	text.WriteString(m.Title + "\n\n")
	for _, p := range m.Paragraphs {
		text.WriteString(p + "\n\n")
	}
	if m.CTA != "" {
		text.WriteString(m.CTA + ": " + m.CTAURL + "\n\n")
	}
	text.WriteString("Unsubscribe: " + m.UnsubscribeURL + "\n")
	return domain.Email{To: to, Subject: m.Title, HTML: html.String(), Text: text.String(), Tag: tag}, nil
}

func checkoutURL(baseURL, email string) string {
	return strings.TrimRight(baseURL, "/") + "/checkout?" + url.Values{"email": {domain.NormalizeEmail(email)}}.Encode()
}

func cityOf(sub domain.Subscriber) string {
	if sub.CityName != "" {
		return sub.CityName
	}
	if a, ok := domain.LookupAirport(sub.HomeAirport); ok {
		return a.City
	}
	return "your city"
}

func savingsLine(sum domain.SavingsSummary) string {
	if sum.Deals == 0 || sum.TotalSavings <= 0 {
		return ""
	}
	line := fmt.Sprintf("So far we have sent you %d deals worth about $%.0f in savings.", sum.Deals, sum.TotalSavings)
	if sum.BestCity != "" {
		line += fmt.Sprintf(" The best one was %s for $%.0f.", sum.BestCity, sum.BestPrice)
	}
	return line
}

func trialReminderEmail(baseURL string, sub domain.Subscriber, sum domain.SavingsSummary, days int) (domain.Email, error) {
	m := message{
		Title: fmt.Sprintf("Your free trial ends in %d days", days),
		Paragraphs: []string{
			fmt.Sprintf("Your Homebase Flights trial for deals from %s is almost over.", cityOf(sub)),
		},
		CTA:            "Keep getting deals",
		CTAURL:         checkoutURL(baseURL, sub.Email),
		UnsubscribeURL: domain.UnsubscribeURL(baseURL, sub.Email),
	}
	if line := savingsLine(sum); line != "" {
		m.Paragraphs = append(m.Paragraphs, line)
	}
	m.Paragraphs = append(m.Paragraphs, "Subscribe now to keep cheap fares coming to your inbox. You can cancel any time.")
	return m.email(sub.Email, "trial_reminder")
}

// NurtureOffsets задаёт дни после подписки, в которые уходят письма приветственной серии.
var NurtureOffsets = []int{0, 2, 4, 6}

func nurtureEmail(baseURL string, sub domain.Subscriber, index int, sum domain.SavingsSummary) (domain.Email, error) {
	city := cityOf(sub)
	m := message{UnsubscribeURL: domain.UnsubscribeURL(baseURL, sub.Email)}
	switch index {
	case 0:
		m.Title = "Welcome to Homebase Flights"
		m.Paragraphs = []string{
			fmt.Sprintf("Thanks for signing up. We watch fares from %s every day and email you when prices drop well below normal.", city),
			"Deals are rare and go fast, so keep an eye on your inbox.",
		}
	case 1:
		m.Title = fmt.Sprintf("How we find cheap flights from %s", city)
		m.Paragraphs = []string{
			"Every morning we compare today's fares against what a route usually costs.",
			"Only fares well below the usual price make it to you, ranked good, notable or exceptional.",
		}
	case 2:
		m.Title = "Your deals so far"
		line := savingsLine(sum)
		if line == "" {
			line = "No deals yet, but fares change daily. The next drop could be tomorrow."
		}
		m.Paragraphs = []string{line}
	case 3:
		m.Title = "Booking tips for fare drops"
		m.Paragraphs = []string{
			"Book first and plan later. Most US airlines let you cancel within 24 hours for free.",
			"Be flexible with dates: the cheapest fares often sit mid-week.",
		}
		m.CTA = "Upgrade to keep deals coming"
		m.CTAURL = checkoutURL(baseURL, sub.Email)
	default:
		return domain.Email{}, domain.ValidationError(fmt.Sprintf("unknown nurture index %d", index), nil)
	}
	return m.email(sub.Email, fmt.Sprintf("nurture_%d", index))
}
