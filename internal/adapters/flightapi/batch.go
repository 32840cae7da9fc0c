package flightapi

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

// FetchBatch опрашивает аэропорты группами по batchSize с паузой между группами.
// Ошибка одного аэропорта не прерывает остальные: он получает пустой список.
func (c *Client) FetchBatch(ctx context.Context, airports []string) map[string]domain.BatchResult {
	results := make(map[string]domain.BatchResult, len(airports))
	var mu sync.Mutex

	size := c.batchSize
	if size <= 0 {
		size = 5
	}
	for i := 0; i < len(airports); i += size {
		if i > 0 && c.batchDelay > 0 {
			if err := c.sleep(ctx, c.batchDelay); err != nil {
				for _, code := range airports[i:] {
					results[domain.NormalizeAirport(code)] = domain.BatchResult{Deals: []domain.RawDeal{}, Err: err}
				}
				return results
			}
		}
		end := i + size
		if end > len(airports) {
			end = len(airports)
		}

		var g errgroup.Group
		for _, airport := range airports[i:end] {
			g.Go(func() error {
				code := domain.NormalizeAirport(airport)
				deals, err := c.FetchDeals(ctx, code)
				if err != nil {
					c.log.Error().Err(err).Str("airport", code).Msg("flightapi: fetch failed")
					deals = []domain.RawDeal{}
				}
				mu.Lock()
				results[code] = domain.BatchResult{Deals: deals, Err: err}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}
