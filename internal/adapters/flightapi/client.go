package flightapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

// Config задаёт параметры клиента поставщика цен.
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client ходит в API дешёвых цен на перелёты.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      domain.Cache
	log        zerolog.Logger
	now        func() time.Time

	batchSize  int
	batchDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ domain.BatchPriceGateway = (*Client)(nil)

// NewClient создаёт клиент. cache может быть nil.
func NewClient(cfg Config, cache domain.Cache, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.travelpayouts.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		log:        logger,
		now:        time.Now,
		batchSize:  5,
		batchDelay: 2 * time.Second,
		sleep:      sleepCtx,
	}
}

// SetHTTPClient подменяет HTTP-клиент.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

type cheapestResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Data    []destination `json:"data"`
}

type destination struct {
	Destination string   `json:"destination"`
	City        string   `json:"city"`
	Country     string   `json:"country"`
	Price       *float64 `json:"price"`
	Currency    string   `json:"currency"`
	Airline     string   `json:"airline"`
	Stops       int      `json:"stops"`
	Duration    int      `json:"duration"`
	DepartDate  string   `json:"depart_date"`
	ReturnDate  string   `json:"return_date"`
	Link        string   `json:"link"`
}

// FetchDeals возвращает самые дешёвые направления из аэропорта.
func (c *Client) FetchDeals(ctx context.Context, airport string) ([]domain.RawDeal, error) {
	code := domain.NormalizeAirport(airport)
	if !domain.IsAirportSupported(code) {
		return nil, domain.UnsupportedAirportError(airport)
	}
	if c.cfg.APIKey == "" {
		return nil, domain.ConfigurationError("FLIGHT_API_KEY is not configured")
	}

	body, err := c.cheapest(ctx, code)
	if err != nil {
		return nil, err
	}
	var resp cheapestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewError(domain.KindUpstream, "decode flight api response", err)
	}
	deals := toDeals(code, resp.Data, c.now().UTC())
	metrics.DealsFetched.WithLabelValues(code).Add(float64(len(deals)))
	return deals, nil
}

func (c *Client) cheapest(ctx context.Context, code string) ([]byte, error) {
	key := "flightapi:cheapest:" + code
	if c.cache != nil {
		data, err := c.cache.Get(key)
		if err == nil && len(data) > 0 {
			return data, nil
		}
		if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
			c.log.Warn().Err(err).Str("airport", code).Msg("flightapi: cache read failed")
		}
	}

	q := url.Values{}
	q.Set("origin", code)
	q.Set("currency", "usd")
	endpoint := c.cfg.BaseURL + "/v1/prices/cheapest?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("flightapi", "cheapest", code, start, err)
	if err != nil {
		return nil, domain.NewError(domain.KindConnection, "flight api request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewError(domain.KindRateLimited, "flight api rate limit exceeded", nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewError(domain.KindUpstream,
			fmt.Sprintf("flight api status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, domain.NewError(domain.KindConnection, "read flight api response", err)
	}

	if c.cache != nil {
		if err := c.cache.Set(key, data, c.cfg.CacheTTL); err != nil {
			c.log.Warn().Err(err).Str("airport", code).Msg("flightapi: cache write failed")
		}
	}
	return data, nil
}

func toDeals(airport string, items []destination, fetchedAt time.Time) []domain.RawDeal {
	deals := make([]domain.RawDeal, 0, len(items))
	for _, it := range items {
		if it.Price == nil || it.Destination == "" {
			continue
		}
		currency := strings.ToUpper(it.Currency)
		if currency == "" {
			currency = "USD"
		}
		deals = append(deals, domain.RawDeal{
			DepartureAirport:   airport,
			DestinationCode:    strings.ToUpper(it.Destination),
			DestinationCity:    it.City,
			DestinationCountry: strings.ToUpper(it.Country),
			Price:              *it.Price,
			Currency:           currency,
			DepartDate:         parseDate(it.DepartDate),
			ReturnDate:         parseDate(it.ReturnDate),
			Airline:            it.Airline,
			Stops:              it.Stops,
			DurationMinutes:    it.Duration,
			BookingURL:         it.Link,
			FetchedAt:          fetchedAt,
		})
	}
	return deals
}

func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
