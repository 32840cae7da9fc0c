package opsbot

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

const messageLimit = 4096

// Notifier пишет служебные сообщения в чат команды.
type Notifier struct {
	chatID int64
	send   func(tgbotapi.Chattable) (tgbotapi.Message, error)
	log    zerolog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

// New подключается к Bot API. Пустой токен или чат дают выключенный нотификатор.
func New(token string, chatID int64, logger zerolog.Logger) (*Notifier, error) {
	n := &Notifier{chatID: chatID, log: logger}
	if token == "" || chatID == 0 {
		return n, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	n.send = bot.Send
	return n, nil
}

// Enabled сообщает, настроена ли отправка.
func (n *Notifier) Enabled() bool {
	return n != nil && n.send != nil
}

// Notify отправляет текст, разбивая его на части по лимиту Telegram.
// Без настроек сообщение только логируется.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if !n.Enabled() {
		n.log.Debug().Str("text", text).Msg("opsbot: disabled, message skipped")
		return nil
	}
	target := strconv.FormatInt(n.chatID, 10)
	for _, part := range SplitMessage(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.chatID, part)
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := n.send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", target, start, err)
		if err != nil {
			return domain.NewError(domain.KindUpstream, "telegram send failed", err)
		}
	}
	return nil
}

// SplitMessage режет текст на части не длиннее лимита Telegram.
// Границы по возможности проходят по переводам строк.
func SplitMessage(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	var parts []string
	for len(runes) > messageLimit {
		cut := messageLimit
		for i := messageLimit; i > 0; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		if chunk := strings.Trim(string(runes[:cut]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		runes = []rune(strings.TrimLeft(string(runes[cut:]), "\n"))
	}
	if chunk := strings.Trim(string(runes), "\n"); chunk != "" {
		parts = append(parts, chunk)
	}
	return parts
}
