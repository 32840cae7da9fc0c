package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCronAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{name: "secret disabled", secret: "", header: "", want: http.StatusOK},
		{name: "valid bearer", secret: "s3cret", header: "Bearer s3cret", want: http.StatusOK},
		{name: "missing header", secret: "s3cret", header: "", want: http.StatusUnauthorized},
		{name: "wrong token", secret: "s3cret", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "no bearer prefix", secret: "s3cret", header: "s3cret", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/cron/fetch-deals", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			CronAuthMiddleware(tt.secret)(okHandler()).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRateLimiterBlocksBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	h := rl.Middleware()(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/deals/JFK", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	other := httptest.NewRequest(http.MethodGet, "/deals/JFK", nil)
	other.RemoteAddr = "198.51.100.1:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code, "другой IP не должен ограничиваться")

	rl.now = func() time.Time { return fixed.Add(10 * time.Minute) }
	rl.Cleanup(3 * time.Minute)
	assert.Empty(t, rl.visitors)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: domain.ConfigurationError("missing key"), want: 500},
		{err: domain.ValidationError("bad", nil), want: 400},
		{err: domain.UnsupportedAirportError("XXX"), want: 400},
		{err: domain.NotFoundError("nope"), want: 404},
		{err: fmt.Errorf("wrap: %w", domain.NewError(domain.KindConstraintViolation, "dup", nil)), want: 409},
		{err: domain.NewError(domain.KindRateLimited, "slow down", nil), want: 429},
		{err: domain.NewError(domain.KindUpstream, "502", nil), want: 500},
		{err: domain.NewError(domain.KindConnection, "dial", nil), want: 500},
		{err: errors.New("plain"), want: 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteDomainErrorHidesPlainErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"internal error"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteDomainError(rec, domain.NotFoundError("subscriber not found"))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"subscriber not found"}`, rec.Body.String())
}
