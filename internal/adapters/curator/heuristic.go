package curator

import (
	"context"
	"fmt"
	"strings"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

// HeuristicModel задаёт идентификатор модели для эвристической оценки.
const HeuristicModel = "heuristic"

// Пороги доли экономии относительно типичной цены страны.
const (
	exceptionalRatio = 0.5
	notableRatio     = 0.3
	goodRatio        = 0.15
)

// Heuristic оценивает сделку по экономии относительно порога страны.
type Heuristic struct{}

var _ domain.Curator = (*Heuristic)(nil)

// NewHeuristic создаёт эвристический куратор.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// TierFor возвращает уровень сделки или false, если экономии недостаточно.
func TierFor(deal domain.RawDeal) (domain.DealTier, bool) {
	ratio := domain.SavingsRatio(deal)
	switch {
	case ratio >= exceptionalRatio:
		return domain.TierExceptional, true
	case ratio >= notableRatio:
		return domain.TierNotable, true
	case ratio >= goodRatio:
		return domain.TierGood, true
	}
	return "", false
}

// Curate реализует domain.Curator.
func (h *Heuristic) Curate(_ context.Context, deal domain.RawDeal) (domain.Curation, bool, error) {
	tier, ok := TierFor(deal)
	if !ok {
		return domain.Curation{}, false, nil
	}
	return domain.Curation{Tier: tier, Description: Describe(deal), Model: HeuristicModel}, true, nil
}

// Describe формирует Markdown-описание сделки.
func Describe(deal domain.RawDeal) string {
	var b strings.Builder
	dest := deal.DestinationCity
	if dest == "" {
		dest = deal.DestinationCode
	}
	origin := deal.DepartureAirport
	if a, ok := domain.LookupAirport(deal.DepartureAirport); ok {
		origin = a.City
	}
	fmt.Fprintf(&b, "**%s** from %s for **$%.0f** round trip", dest, origin, deal.Price)
	if saved := domain.Savings(deal); saved > 0 {
		fmt.Fprintf(&b, ", about $%.0f below the usual $%.0f", saved, domain.PriceThreshold(deal.DestinationCountry))
	}
	b.WriteString(".")

	var details []string
	if deal.Stops == 0 {
		details = append(details, "Nonstop")
	} else if deal.Stops == 1 {
		details = append(details, "1 stop")
	} else {
		details = append(details, fmt.Sprintf("%d stops", deal.Stops))
	}
	if deal.Airline != "" {
		details = append(details, "on "+deal.Airline)
	}
	if deal.DepartDate != nil {
		details = append(details, "departing "+deal.DepartDate.Format("Jan 2"))
	}
	if deal.ReturnDate != nil {
		details = append(details, "returning "+deal.ReturnDate.Format("Jan 2"))
	}
	b.WriteString(" ")
	b.WriteString(strings.Join(details, ", "))
	b.WriteString(".")
	return b.String()
}
