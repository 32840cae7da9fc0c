package domain

import (
	"encoding/base64"
	"net/url"
	"strings"
)

const actionTokenLength = 16

// NormalizeEmail приводит адрес к виду, в котором он хранится.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ActionToken возвращает токен для отписки и портала: первые 16 символов base64 от email.
// Токен не секретный и вычисляется по одному адресу.
func ActionToken(email string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(NormalizeEmail(email)))
	if len(enc) > actionTokenLength {
		enc = enc[:actionTokenLength]
	}
	return enc
}

// VerifyActionToken сверяет токен с адресом.
func VerifyActionToken(email, token string) bool {
	return token != "" && ActionToken(email) == strings.TrimSpace(token)
}

// UnsubscribeURL строит ссылку отписки для писем.
func UnsubscribeURL(baseURL, email string) string {
	q := url.Values{}
	q.Set("email", NormalizeEmail(email))
	q.Set("token", ActionToken(email))
	return strings.TrimRight(baseURL, "/") + "/unsubscribe?" + q.Encode()
}
