package flightapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Once(key string, ttl time.Duration, fn func() error) error { return fn() }

func (m *memCache) Set(key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return v, nil
}

// twelveWithTwoNull отдаёт 12 направлений, у двух из которых нет цены.
func twelveWithTwoNull() string {
	items := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		price := fmt.Sprintf("%d", 150+i*10)
		switch i {
		case 3:
			price = "null"
		case 7:
			items = append(items, fmt.Sprintf(`{"destination":"D%02d","city":"City %d","country":"MX","stops":0}`, i, i))
			continue
		}
		items = append(items, fmt.Sprintf(`{"destination":"D%02d","city":"City %d","country":"MX","price":%s,"stops":%d,"depart_date":"2025-05-01","link":"https://book/%d"}`, i, i, price, i%2, i))
	}
	return `{"success":true,"data":[` + strings.Join(items, ",") + `]}`
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cache domain.Cache) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"}, cache, zerolog.Nop())
	c.now = func() time.Time { return time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC) }
	return c, &hits
}

func TestFetchDealsDropsNullPrices(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/prices/cheapest", r.URL.Path)
		assert.Equal(t, "JFK", r.URL.Query().Get("origin"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(twelveWithTwoNull()))
	}, nil)

	deals, err := c.FetchDeals(context.Background(), "jfk")
	require.NoError(t, err)
	assert.Len(t, deals, 10)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	for _, d := range deals {
		assert.Equal(t, "JFK", d.DepartureAirport)
		assert.NotEqual(t, "D03", d.DestinationCode)
		assert.NotEqual(t, "D07", d.DestinationCode)
	}
	assert.Equal(t, 150.0, deals[0].Price)
	require.NotNil(t, deals[0].DepartDate)
	assert.Equal(t, "USD", deals[0].Currency)
}

func TestFetchDealsErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   domain.ErrorKind
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: domain.KindRateLimited},
		{name: "server error", status: http.StatusBadGateway, want: domain.KindUpstream},
		{name: "unauthorized", status: http.StatusUnauthorized, want: domain.KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, nil)
			_, err := c.FetchDeals(context.Background(), "JFK")
			require.Error(t, err)
			assert.Equal(t, tt.want, domain.KindOf(err))
		})
	}
}

func TestFetchDealsConnectionError(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k", Timeout: time.Second}, nil, zerolog.Nop())
	_, err := c.FetchDeals(context.Background(), "JFK")
	require.Error(t, err)
	assert.Equal(t, domain.KindConnection, domain.KindOf(err))
}

func TestFetchDealsRejectsBeforeRequest(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, nil)

	_, err := c.FetchDeals(context.Background(), "XXX")
	assert.Equal(t, domain.KindUnsupportedAirport, domain.KindOf(err))

	c.cfg.APIKey = ""
	_, err = c.FetchDeals(context.Background(), "JFK")
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	assert.EqualValues(t, 0, atomic.LoadInt32(hits))
}

func TestFetchDealsUsesCache(t *testing.T) {
	cache := newMemCache()
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(twelveWithTwoNull()))
	}, cache)

	first, err := c.FetchDeals(context.Background(), "JFK")
	require.NoError(t, err)
	second, err := c.FetchDeals(context.Background(), "JFK")
	require.NoError(t, err)
	assert.Equal(t, len(first), len(second))
	assert.EqualValues(t, 1, atomic.LoadInt32(hits), "второй запрос должен обслуживаться из кэша")
}

func TestFetchBatchIsolatesFailures(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("origin") == "LAX" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":[{"destination":"CUN","country":"MX","price":199}]}`))
	}, nil)
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	airports := []string{"ATL", "BOS", "DEN", "DFW", "JFK", "LAX", "ORD"}
	results := c.FetchBatch(context.Background(), airports)

	require.Len(t, results, len(airports))
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps, "одна пауза между двумя группами")
	assert.Error(t, results["LAX"].Err)
	assert.Empty(t, results["LAX"].Deals)
	assert.NotNil(t, results["LAX"].Deals)
	for _, code := range []string{"ATL", "BOS", "DEN", "DFW", "JFK", "ORD"} {
		assert.NoError(t, results[code].Err, code)
		assert.Len(t, results[code].Deals, 1, code)
	}
}
