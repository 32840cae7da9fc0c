package alerts

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

var emailTemplates = template.Must(template.New("alerts").Parse(`
{{define "deal"}}<div style="margin:0 0 20px;padding:12px 16px;border:1px solid #e5e5e5;border-radius:6px">
<p style="margin:0 0 6px;font-size:12px;letter-spacing:1px;text-transform:uppercase;color:#0a7d55">{{.Tier}} deal</p>
{{.Description}}
{{if .BookingURL}}<p style="margin:8px 0 0"><a href="{{.BookingURL}}" style="color:#0b5cff">Book this fare</a></p>{{end}}
</div>{{end}}
{{define "email"}}<!doctype html>
<html><body style="margin:0;padding:24px;font-family:Arial,Helvetica,sans-serif;color:#1a1a1a">
<h1 style="font-size:20px;margin:0 0 16px">{{.Title}}</h1>
{{range .Deals}}{{template "deal" .}}{{end}}
<p style="margin-top:24px;font-size:12px;color:#888">You are receiving this because you subscribed to Homebase Flights deals from {{.City}}.
<a href="{{.UnsubscribeURL}}" style="color:#888">Unsubscribe</a></p>
</body></html>{{end}}`))

type dealView struct {
	Tier        string
	Description template.HTML
	BookingURL  string
}

type emailView struct {
	Title          string
	City           string
	Deals          []dealView
	UnsubscribeURL string
}

// Formatter собирает письма со сделками.
type Formatter struct {
	baseURL string
	md      goldmark.Markdown
}

// NewFormatter создаёт форматтер. baseURL используется для ссылки отписки.
func NewFormatter(baseURL string) *Formatter {
	return &Formatter{baseURL: baseURL, md: goldmark.New()}
}

// Digest формирует письмо-сводку со всеми сделками подписчика.
func (f *Formatter) Digest(sub domain.Subscriber, deals []domain.CuratedDeal) (domain.Email, error) {
	city := cityOf(sub)
	title := fmt.Sprintf("%d new flight deals from %s", len(deals), city)
	if len(deals) == 1 {
		title = fmt.Sprintf("A new flight deal from %s", city)
	}
	return f.render(sub, title, string(domain.ChannelDigest), deals)
}

// Instant формирует письмо об одной сделке.
func (f *Formatter) Instant(sub domain.Subscriber, deal domain.CuratedDeal) (domain.Email, error) {
	dest := deal.Deal.DestinationCity
	if dest == "" {
		dest = deal.Deal.DestinationCode
	}
	title := fmt.Sprintf("Deal alert: %s for $%.0f round trip", dest, deal.Deal.Price)
	return f.render(sub, title, string(domain.ChannelInstant), []domain.CuratedDeal{deal})
}

func (f *Formatter) render(sub domain.Subscriber, title, tag string, deals []domain.CuratedDeal) (domain.Email, error) {
	view := emailView{
		Title:          title,
		City:           cityOf(sub),
		UnsubscribeURL: domain.UnsubscribeURL(f.baseURL, sub.Email),
	}
	var text strings.Builder
	text.WriteString(title + "\n\n")
	for _, d := range deals {
		html, err := f.markdown(d.Description)
		if err != nil {
			return domain.Email{}, fmt.Errorf("render description %s: %w", d.ID, err)
		}
		view.Deals = append(view.Deals, dealView{Tier: string(d.Tier), Description: html, BookingURL: d.Deal.BookingURL})

		text.WriteString("- " + plain(d.Description))
		if d.Deal.BookingURL != "" {
			text.WriteString("\n  " + d.Deal.BookingURL)
		}
		text.WriteString("\n")
	}
	text.WriteString("\nUnsubscribe: " + view.UnsubscribeURL + "\n")

	var body bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&body, "email", view); err != nil {
		return domain.Email{}, fmt.Errorf("render email: %w", err)
	}
	return domain.Email{To: sub.Email, Subject: title, HTML: body.String(), Text: text.String(), Tag: tag}, nil
}

// markdown рендерит описание. Сырой HTML goldmark по умолчанию не пропускает.
func (f *Formatter) markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := f.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func plain(md string) string {
	return strings.TrimSpace(strings.NewReplacer("**", "", "__", "", "`", "").Replace(md))
}

func cityOf(sub domain.Subscriber) string {
	if sub.CityName != "" {
		return sub.CityName
	}
	if a, ok := domain.LookupAirport(sub.HomeAirport); ok {
		return a.City
	}
	return sub.HomeAirport
}
