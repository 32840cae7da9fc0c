package deals

import (
	"net/url"
	"testing"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

func sampleDeals() []domain.RawDeal {
	return []domain.RawDeal{
		{DestinationCode: "CUN", Price: 180, Stops: 0},
		{DestinationCode: "CDG", Price: 420, Stops: 1},
		{DestinationCode: "MIA", Price: 99, Stops: 1},
		{DestinationCode: "LHR", Price: 200, Stops: 0},
		{DestinationCode: "NRT", Price: 950, Stops: 0},
		{DestinationCode: "SJU", Price: 150, Stops: 0},
	}
}

func codes(deals []domain.RawDeal) []string {
	out := make([]string, 0, len(deals))
	for _, d := range deals {
		out = append(out, d.DestinationCode)
	}
	return out
}

func TestFilterDeals(t *testing.T) {
	cases := []struct {
		name string
		opts FilterOptions
		want []string
	}{
		{name: "max price keeps order", opts: FilterOptions{MaxPrice: 200, Limit: 10}, want: []string{"CUN", "MIA", "LHR", "SJU"}},
		{name: "direct only", opts: FilterOptions{MaxPrice: 500, DirectOnly: true, Limit: 10}, want: []string{"CUN", "LHR", "SJU"}},
		{name: "limit", opts: FilterOptions{MaxPrice: 1000, Limit: 2}, want: []string{"CUN", "CDG"}},
		{name: "zero limit", opts: FilterOptions{MaxPrice: 1000, Limit: 0}, want: []string{}},
		{name: "negative limit", opts: FilterOptions{MaxPrice: 1000, Limit: -1}, want: []string{}},
		{name: "default price", opts: FilterOptions{Limit: 10}, want: []string{"CUN", "MIA", "LHR", "SJU"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := codes(FilterDeals(sampleDeals(), c.opts))
			if len(got) != len(c.want) {
				t.Fatalf("ожидали %v, получили %v", c.want, got)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("ожидали %v, получили %v", c.want, got)
				}
			}
		})
	}
}

func TestFilterDealsIsSubsequence(t *testing.T) {
	in := sampleDeals()
	for _, opts := range []FilterOptions{LiveDefaults, CachedDefaults, {MaxPrice: 150, DirectOnly: true, Limit: 1}} {
		out := FilterDeals(in, opts)
		if len(out) > opts.Limit {
			t.Fatalf("длина %d больше лимита %d", len(out), opts.Limit)
		}
		j := 0
		for _, d := range out {
			for j < len(in) && in[j].DestinationCode != d.DestinationCode {
				j++
			}
			if j == len(in) {
				t.Fatalf("результат %v не является подпоследовательностью входа", codes(out))
			}
			if d.Price > opts.MaxPrice {
				t.Fatalf("цена %.0f выше %.0f", d.Price, opts.MaxPrice)
			}
			if opts.DirectOnly && d.Stops != 0 {
				t.Fatalf("в прямых рейсах найдена пересадка")
			}
			j++
		}
	}
	if out := FilterDeals(nil, LiveDefaults); len(out) != 0 {
		t.Fatalf("пустой вход должен давать пустой выход")
	}
}

func TestParseFilterOptions(t *testing.T) {
	opts, err := ParseFilterOptions(url.Values{}, CachedDefaults)
	if err != nil || opts != CachedDefaults {
		t.Fatalf("ожидали значения по умолчанию, получили %+v, %v", opts, err)
	}

	opts, err = ParseFilterOptions(url.Values{"maxPrice": {"350.5"}, "directOnly": {"true"}, "limit": {"500"}}, LiveDefaults)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if opts.MaxPrice != 350.5 || !opts.DirectOnly || opts.Limit != MaxLimit {
		t.Fatalf("неожиданные параметры: %+v", opts)
	}

	for _, q := range []url.Values{{"maxPrice": {"abc"}}, {"maxPrice": {"-5"}}, {"maxPrice": {"NaN"}}, {"maxPrice": {"Inf"}}, {"maxPrice": {"+Inf"}}, {"directOnly": {"maybe"}}, {"limit": {"ten"}}} {
		if _, err := ParseFilterOptions(q, LiveDefaults); domain.KindOf(err) != domain.KindValidation {
			t.Fatalf("ожидали validation для %v, получили %v", q, err)
		}
	}
}
