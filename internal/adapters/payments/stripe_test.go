package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

const testWebhookSecret = "whsec_test"

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestOperationsWithoutKey(t *testing.T) {
	c := NewClient(Config{}, zerolog.Nop())
	_, err := c.CreateCheckout(context.Background(), domain.CheckoutRequest{Email: "a@x.com"})
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	_, err = c.GetCheckoutSession(context.Background(), "cs_1")
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	_, err = c.CreatePortalSession(context.Background(), "cus_1", "https://x")
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	_, err = c.ParseWebhook([]byte("{}"), "sig")
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestCheckoutRequiresPrice(t *testing.T) {
	c := NewClient(Config{SecretKey: "sk_test_1"}, zerolog.Nop())
	_, err := c.CreateCheckout(context.Background(), domain.CheckoutRequest{Email: "a@x.com"})
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestParseWebhookCheckoutCompleted(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret}, zerolog.Nop())
	header, payload := signed(t, `{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "object": "checkout.session", "customer": "cus_9", "customer_email": "a@x.com", "status": "complete"}}
	}`)

	ev, err := c.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEventCheckoutCompleted, ev.Type)
	assert.Equal(t, "cs_1", ev.SessionID)
	assert.Equal(t, "cus_9", ev.CustomerID)
	assert.Equal(t, "a@x.com", ev.Email)
}

func TestParseWebhookSubscriptionDeleted(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret}, zerolog.Nop())
	header, payload := signed(t, `{
		"id": "evt_2",
		"object": "event",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "object": "subscription", "customer": "cus_9"}}
	}`)

	ev, err := c.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEventSubscriptionDeleted, ev.Type)
	assert.Equal(t, "cus_9", ev.CustomerID)
}

func TestParseWebhookBadSignature(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret}, zerolog.Nop())
	_, err := c.ParseWebhook([]byte(`{"id":"evt_3"}`), "t=1,v1=deadbeef")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestMapError(t *testing.T) {
	assert.Equal(t, domain.KindRateLimited, domain.KindOf(mapError(&stripe.Error{HTTPStatusCode: 429}, "op")))
	assert.Equal(t, domain.KindNotFound, domain.KindOf(mapError(&stripe.Error{HTTPStatusCode: 404}, "op")))
	assert.Equal(t, domain.KindUpstream, domain.KindOf(mapError(&stripe.Error{HTTPStatusCode: 402}, "op")))
	assert.Equal(t, domain.KindConnection, domain.KindOf(mapError(errors.New("dial tcp"), "op")))
}
