package mailer

import (
	"context"
	"fmt"
	"time"

	mailjet "github.com/mailjet/mailjet-apiv3-go"
	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

// Config задаёт ключи Mailjet и отправителя.
type Config struct {
	APIKey    string
	SecretKey string
	From      string
	FromName  string
}

// Mailjet отправляет транзакционные письма через Mailjet Send API v3.1.
type Mailjet struct {
	cfg  Config
	send func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error)
	log  zerolog.Logger
}

var _ domain.EmailSender = (*Mailjet)(nil)

// New создаёт отправителя. Без ключей Send возвращает configuration-ошибку.
func New(cfg Config, logger zerolog.Logger) *Mailjet {
	m := &Mailjet{cfg: cfg, log: logger}
	if cfg.APIKey != "" && cfg.SecretKey != "" {
		client := mailjet.NewMailjetClient(cfg.APIKey, cfg.SecretKey)
		m.send = func(msgs *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
			return client.SendMailV31(msgs)
		}
	}
	return m
}

// Configured сообщает, заданы ли ключи.
func (m *Mailjet) Configured() bool {
	return m.send != nil
}

// Send отправляет письмо. Успех означает, что Mailjet принял сообщение.
func (m *Mailjet) Send(ctx context.Context, email domain.Email) error {
	if m.send == nil {
		return domain.ConfigurationError("MAILJET_API_KEY is not configured")
	}
	if email.To == "" {
		return domain.ValidationError("email recipient is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msgs := &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{{
		From:     &mailjet.RecipientV31{Email: m.cfg.From, Name: m.cfg.FromName},
		To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: email.To}},
		Subject:  email.Subject,
		TextPart: email.Text,
		HTMLPart: email.HTML,
		CustomID: email.Tag,
	}}}

	start := time.Now()
	res, err := m.send(msgs)
	metrics.ObserveNetworkRequest("mailjet", "send", email.Tag, start, err)
	if err != nil {
		return domain.NewError(domain.KindUpstream, "mailjet send failed", err)
	}
	if res != nil {
		for _, r := range res.ResultsV31 {
			if r.Status != "success" {
				return domain.NewError(domain.KindUpstream, fmt.Sprintf("mailjet rejected message: %s", r.Status), nil)
			}
		}
	}
	m.log.Debug().Str("to", email.To).Str("tag", email.Tag).Msg("mailer: sent")
	return nil
}
