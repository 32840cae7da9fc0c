package domain

import (
	"sort"
	"strings"
)

// Airport описывает поддерживаемый аэропорт вылета.
type Airport struct {
	Code     string
	City     string
	CitySlug string
	Country  string
	Region   string
}

var airports = map[string]Airport{
	"ATL": {Code: "ATL", City: "Atlanta", CitySlug: "atlanta", Country: "US", Region: "southeast"},
	"BOS": {Code: "BOS", City: "Boston", CitySlug: "boston", Country: "US", Region: "northeast"},
	"DEN": {Code: "DEN", City: "Denver", CitySlug: "denver", Country: "US", Region: "mountain"},
	"DFW": {Code: "DFW", City: "Dallas", CitySlug: "dallas", Country: "US", Region: "south"},
	"EWR": {Code: "EWR", City: "Newark", CitySlug: "newark", Country: "US", Region: "northeast"},
	"IAH": {Code: "IAH", City: "Houston", CitySlug: "houston", Country: "US", Region: "south"},
	"JFK": {Code: "JFK", City: "New York", CitySlug: "new-york", Country: "US", Region: "northeast"},
	"LAX": {Code: "LAX", City: "Los Angeles", CitySlug: "los-angeles", Country: "US", Region: "west"},
	"MIA": {Code: "MIA", City: "Miami", CitySlug: "miami", Country: "US", Region: "southeast"},
	"MSP": {Code: "MSP", City: "Minneapolis", CitySlug: "minneapolis", Country: "US", Region: "midwest"},
	"ORD": {Code: "ORD", City: "Chicago", CitySlug: "chicago", Country: "US", Region: "midwest"},
	"PHL": {Code: "PHL", City: "Philadelphia", CitySlug: "philadelphia", Country: "US", Region: "northeast"},
	"PHX": {Code: "PHX", City: "Phoenix", CitySlug: "phoenix", Country: "US", Region: "mountain"},
	"SEA": {Code: "SEA", City: "Seattle", CitySlug: "seattle", Country: "US", Region: "west"},
	"SFO": {Code: "SFO", City: "San Francisco", CitySlug: "san-francisco", Country: "US", Region: "west"},
}

// NormalizeAirport приводит IATA-код к каноничному виду.
func NormalizeAirport(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsAirportSupported проверяет код без учёта регистра.
func IsAirportSupported(code string) bool {
	_, ok := airports[NormalizeAirport(code)]
	return ok
}

// LookupAirport возвращает метаданные аэропорта.
func LookupAirport(code string) (Airport, bool) {
	a, ok := airports[NormalizeAirport(code)]
	return a, ok
}

// SupportedAirports возвращает отсортированный список кодов.
func SupportedAirports() []string {
	codes := make([]string, 0, len(airports))
	for code := range airports {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// AirportForCitySlug находит аэропорт по slug города с лендинга.
func AirportForCitySlug(slug string) (Airport, bool) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	for _, a := range airports {
		if a.CitySlug == slug {
			return a, true
		}
	}
	return Airport{}, false
}
