package domain

import (
	"strings"
	"testing"
)

func TestActionToken(t *testing.T) {
	// base64("a@x.com") = "YUB4LmNvbQ=="
	if got := ActionToken(" A@X.com "); got != "YUB4LmNvbQ==" {
		t.Fatalf("неожиданный токен %q", got)
	}
	long := ActionToken("someone@example.com")
	if len(long) != 16 {
		t.Fatalf("ожидали 16 символов, получили %d", len(long))
	}
	if !VerifyActionToken("SOMEONE@example.com", long) {
		t.Fatalf("токен должен проходить проверку без учёта регистра адреса")
	}
	if VerifyActionToken("someone@example.com", "") || VerifyActionToken("other@example.com", long) {
		t.Fatalf("чужой или пустой токен не должен проходить")
	}
}

func TestUnsubscribeURL(t *testing.T) {
	u := UnsubscribeURL("https://homebaseflights.com/", "A@X.com")
	if !strings.HasPrefix(u, "https://homebaseflights.com/unsubscribe?") {
		t.Fatalf("неожиданная ссылка %q", u)
	}
	if !strings.Contains(u, "email=a%40x.com") || !strings.Contains(u, "token=YUB4LmNvbQ%3D%3D") {
		t.Fatalf("в ссылке нет email или токена: %q", u)
	}
}
