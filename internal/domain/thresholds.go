package domain

import "strings"

// DefaultPriceThreshold используется для стран без собственного порога.
const DefaultPriceThreshold = 600.0

// Типичная цена билета туда-обратно из США по стране назначения, USD.
var priceThresholds = map[string]float64{
	"US": 300,
	"CA": 350,
	"MX": 400,
	"PR": 350,
	"BS": 400,
	"DO": 450,
	"JM": 450,
	"CR": 500,
	"CO": 550,
	"PE": 700,
	"BR": 800,
	"AR": 900,
	"CL": 900,
	"GB": 700,
	"IE": 650,
	"FR": 750,
	"ES": 750,
	"PT": 700,
	"IT": 800,
	"DE": 750,
	"NL": 700,
	"IS": 600,
	"GR": 900,
	"TR": 900,
	"JP": 1100,
	"KR": 1100,
	"TH": 1200,
	"AU": 1400,
	"NZ": 1400,
}

// PriceThreshold возвращает порог «обычной» цены для страны назначения.
func PriceThreshold(country string) float64 {
	if v, ok := priceThresholds[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return v
	}
	return DefaultPriceThreshold
}

// Savings возвращает экономию относительно порога страны или ноль.
func Savings(deal RawDeal) float64 {
	diff := PriceThreshold(deal.DestinationCountry) - deal.Price
	if diff <= 0 {
		return 0
	}
	return diff
}

// SavingsRatio возвращает долю экономии от порога.
func SavingsRatio(deal RawDeal) float64 {
	threshold := PriceThreshold(deal.DestinationCountry)
	if threshold <= 0 {
		return 0
	}
	return Savings(deal) / threshold
}
