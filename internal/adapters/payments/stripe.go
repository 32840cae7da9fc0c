package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
)

// Config задаёт ключи Stripe.
type Config struct {
	SecretKey     string
	PriceID       string
	WebhookSecret string
}

// Client реализует подписки через Stripe Checkout и Customer Portal.
type Client struct {
	cfg Config
	api *client.API
	log zerolog.Logger
}

var _ domain.PaymentProvider = (*Client)(nil)

// NewClient создаёт клиент. Без секретного ключа операции возвращают configuration-ошибку.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	c := &Client{cfg: cfg, log: logger}
	if cfg.SecretKey != "" {
		c.api = client.New(cfg.SecretKey, nil)
	}
	return c
}

// SetBackends подменяет HTTP-бэкенды Stripe.
func (c *Client) SetBackends(backends *stripe.Backends) {
	if c.cfg.SecretKey != "" && backends != nil {
		c.api = client.New(c.cfg.SecretKey, backends)
	}
}

func (c *Client) ready() error {
	if c.api == nil {
		return domain.ConfigurationError("STRIPE_SECRET_KEY is not configured")
	}
	return nil
}

// CreateCheckout создаёт сессию оформления подписки и возвращает ссылку на неё.
func (c *Client) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if c.cfg.PriceID == "" {
		return "", domain.ConfigurationError("STRIPE_PRICE_ID is not configured")
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.cfg.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.Email),
	}
	if req.SubscriberID != uuid.Nil {
		params.ClientReferenceID = stripe.String(req.SubscriberID.String())
	}
	if req.TrialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(int64(req.TrialDays)),
		}
	}
	params.Context = ctx

	start := time.Now()
	s, err := c.api.CheckoutSessions.New(params)
	metrics.ObserveNetworkRequest("stripe", "checkout_create", "checkout_sessions", start, err)
	if err != nil {
		return "", mapError(err, "create checkout session")
	}
	c.log.Info().Str("session", s.ID).Msg("payments: checkout session created")
	return s.URL, nil
}

// GetCheckoutSession возвращает состояние сессии оформления.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	if err := c.ready(); err != nil {
		return domain.CheckoutSession{}, err
	}
	if sessionID == "" {
		return domain.CheckoutSession{}, domain.ValidationError("session_id is required", nil)
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	start := time.Now()
	s, err := c.api.CheckoutSessions.Get(sessionID, params)
	metrics.ObserveNetworkRequest("stripe", "checkout_get", "checkout_sessions", start, err)
	if err != nil {
		return domain.CheckoutSession{}, mapError(err, "get checkout session")
	}
	return toCheckoutSession(s), nil
}

// CreatePortalSession открывает портал управления подпиской для клиента.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if customerID == "" {
		return "", domain.ValidationError("payment customer is required", nil)
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	start := time.Now()
	s, err := c.api.BillingPortalSessions.New(params)
	metrics.ObserveNetworkRequest("stripe", "portal_create", "billing_portal_sessions", start, err)
	if err != nil {
		return "", mapError(err, "create portal session")
	}
	return s.URL, nil
}

// ParseWebhook проверяет подпись и извлекает событие. Неизвестные типы возвращаются с пустыми полями.
func (c *Client) ParseWebhook(payload []byte, signature string) (domain.PaymentEvent, error) {
	if c.cfg.WebhookSecret == "" {
		return domain.PaymentEvent{}, domain.ConfigurationError("STRIPE_WEBHOOK_SECRET is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return domain.PaymentEvent{}, domain.ValidationError("invalid webhook signature", err)
	}

	out := domain.PaymentEvent{Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}
	switch out.Type {
	case domain.PaymentEventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return domain.PaymentEvent{}, domain.ValidationError("decode checkout session", err)
		}
		cs := toCheckoutSession(&s)
		out.SessionID = cs.ID
		out.CustomerID = cs.CustomerID
		out.Email = cs.Email
	case domain.PaymentEventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return domain.PaymentEvent{}, domain.ValidationError("decode subscription", err)
		}
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
	}
	return out, nil
}

func toCheckoutSession(s *stripe.CheckoutSession) domain.CheckoutSession {
	out := domain.CheckoutSession{
		ID:       s.ID,
		Email:    s.CustomerEmail,
		Complete: s.Status == stripe.CheckoutSessionStatusComplete,
	}
	if out.Email == "" && s.CustomerDetails != nil {
		out.Email = s.CustomerDetails.Email
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	return out
}

func mapError(err error, op string) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusTooManyRequests {
			return domain.NewError(domain.KindRateLimited, op, err)
		}
		if se.HTTPStatusCode == http.StatusNotFound {
			return domain.NewError(domain.KindNotFound, op, err)
		}
		return domain.NewError(domain.KindUpstream, op, err)
	}
	return domain.NewError(domain.KindConnection, fmt.Sprintf("%s: stripe unreachable", op), err)
}
