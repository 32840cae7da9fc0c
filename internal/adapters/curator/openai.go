package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI просит модель оценить сделку и написать описание.
// Кандидатов отбирает эвристика, модель уточняет уровень и текст.
type OpenAI struct {
	client   chatClient
	model    string
	timeout  time.Duration
	fallback *Heuristic
	log      zerolog.Logger
}

var _ domain.Curator = (*OpenAI)(nil)

// NewOpenAI создаёт куратор на базе Chat Completions.
func NewOpenAI(apiKey, model string, logger zerolog.Logger) *OpenAI {
	return newOpenAI(openai.NewClient(apiKey), model, 30*time.Second, logger)
}

func newOpenAI(client chatClient, model string, timeout time.Duration, logger zerolog.Logger) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout, fallback: NewHeuristic(), log: logger}
}

type dealPayload struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	Country       string  `json:"country"`
	Price         float64 `json:"price_usd"`
	UsualPrice    float64 `json:"usual_price_usd"`
	Stops         int     `json:"stops"`
	Airline       string  `json:"airline,omitempty"`
	DepartDate    string  `json:"depart_date,omitempty"`
	ReturnDate    string  `json:"return_date,omitempty"`
	SuggestedTier string  `json:"suggested_tier"`
}

type curationPayload struct {
	Tier        string `json:"tier"`
	Description string `json:"description"`
}

// Curate реализует domain.Curator. Ошибки модели не прерывают курирование.
func (o *OpenAI) Curate(ctx context.Context, deal domain.RawDeal) (domain.Curation, bool, error) {
	base, ok, err := o.fallback.Curate(ctx, deal)
	if err != nil || !ok {
		return base, ok, err
	}

	parsed, err := o.ask(ctx, deal, base.Tier)
	if err != nil {
		o.log.Warn().Err(err).Str("route", deal.DepartureAirport+"-"+deal.DestinationCode).Msg("curator: llm failed, using heuristic")
		return base, true, nil
	}

	tier := domain.DealTier(strings.ToLower(strings.TrimSpace(parsed.Tier)))
	if tier == "skip" {
		return domain.Curation{}, false, nil
	}
	out := domain.Curation{Tier: tier, Description: strings.TrimSpace(parsed.Description), Model: o.model}
	if !out.Tier.Valid() {
		out.Tier = base.Tier
	}
	if out.Description == "" {
		out.Description = base.Description
	}
	return out, true, nil
}

func (o *OpenAI) ask(ctx context.Context, deal domain.RawDeal, suggested domain.DealTier) (curationPayload, error) {
	p := dealPayload{
		From:          deal.DepartureAirport,
		To:            strings.TrimSpace(deal.DestinationCity + " (" + deal.DestinationCode + ")"),
		Country:       deal.DestinationCountry,
		Price:         deal.Price,
		UsualPrice:    domain.PriceThreshold(deal.DestinationCountry),
		Stops:         deal.Stops,
		Airline:       deal.Airline,
		SuggestedTier: string(suggested),
	}
	if deal.DepartDate != nil {
		p.DepartDate = deal.DepartDate.Format("2006-01-02")
	}
	if deal.ReturnDate != nil {
		p.ReturnDate = deal.ReturnDate.Format("2006-01-02")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return curationPayload{}, fmt.Errorf("marshal deal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.3,
		MaxTokens:   300,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write short, factual flight deal alerts for travellers. Never invent prices, dates or airlines that are not in the data.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: `Rate this round-trip fare and write a 1-2 sentence Markdown description with the destination and price in bold.
Tier must be one of "good", "notable", "exceptional", or "skip" if the fare is not worth sending.
Reply strictly as JSON: {"tier": "...", "description": "..."}.

Fare:
` + string(body),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	metrics.ObserveNetworkRequest("openai", "chat_completion", o.model, start, err)
	if err != nil {
		return curationPayload{}, fmt.Errorf("openai completion: %w", err)
	}
	metrics.ObserveLLMGeneration(o.model, time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	if len(resp.Choices) == 0 {
		return curationPayload{}, fmt.Errorf("openai completion: empty response")
	}
	var parsed curationPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &parsed); err != nil {
		return curationPayload{}, fmt.Errorf("decode llm response: %w", err)
	}
	return parsed, nil
}
