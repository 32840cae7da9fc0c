package deals

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

// FilterOptions задаёт отбор сделок для показа.
type FilterOptions struct {
	MaxPrice   float64 `json:"maxPrice"`
	DirectOnly bool    `json:"directOnly"`
	Limit      int     `json:"limit"`
}

// Значения по умолчанию для живого превью и для сохранённых сделок.
var (
	LiveDefaults   = FilterOptions{MaxPrice: 200, Limit: 10}
	CachedDefaults = FilterOptions{MaxPrice: 500, Limit: 20}
)

// MaxLimit ограничивает размер ответа публичных ручек.
const MaxLimit = 100

// FilterDeals отбирает сделки без изменения порядка: цена не выше MaxPrice,
// только прямые при DirectOnly, не больше Limit штук.
// MaxPrice <= 0 означает порог живого превью.
func FilterDeals(deals []domain.RawDeal, opts FilterOptions) []domain.RawDeal {
	if opts.Limit <= 0 || len(deals) == 0 {
		return []domain.RawDeal{}
	}
	maxPrice := opts.MaxPrice
	if maxPrice <= 0 {
		maxPrice = LiveDefaults.MaxPrice
	}
	out := make([]domain.RawDeal, 0, min(opts.Limit, len(deals)))
	for _, d := range deals {
		if d.Price > maxPrice {
			continue
		}
		if opts.DirectOnly && d.Stops != 0 {
			continue
		}
		out = append(out, d)
		if len(out) == opts.Limit {
			break
		}
	}
	return out
}

// ParseFilterOptions читает maxPrice, directOnly и limit из query-параметров.
func ParseFilterOptions(q url.Values, defaults FilterOptions) (FilterOptions, error) {
	opts := defaults
	if raw := strings.TrimSpace(q.Get("maxPrice")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return FilterOptions{}, domain.ValidationError(fmt.Sprintf("invalid maxPrice %q", raw), err)
		}
		opts.MaxPrice = v
	}
	if raw := strings.TrimSpace(q.Get("directOnly")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return FilterOptions{}, domain.ValidationError(fmt.Sprintf("invalid directOnly %q", raw), err)
		}
		opts.DirectOnly = v
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return FilterOptions{}, domain.ValidationError(fmt.Sprintf("invalid limit %q", raw), err)
		}
		opts.Limit = min(v, MaxLimit)
	}
	return opts, nil
}
