package billing

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"voice-agent-platform/internal/credits"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const whsec = "whsec_test"

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

type fakeGranter struct {
	grants map[string]credits.GrantRequest
}

func (f *fakeGranter) Grant(ctx context.Context, userID string, req credits.GrantRequest) (credits.LedgerEntry, credits.Balance, error) {
	if f.grants == nil {
		f.grants = map[string]credits.GrantRequest{}
	}
	if _, ok := f.grants[req.IdempotencyKey]; !ok {
		f.grants[req.IdempotencyKey] = req
	}
	return credits.LedgerEntry{}, credits.Balance{UserID: userID}, nil
}

func newService(sessions SessionCreator) (*Service, *fakeGranter) {
	g := &fakeGranter{}
	opts := []Option{}
	if sessions != nil {
		opts = append(opts, WithSessionCreator(sessions))
	}
	svc := NewService(Config{WebhookSecret: whsec, BaseURL: "https://app.example.com/"}, DefaultCatalog(100), g, opts...)
	return svc, g
}

func TestCreateCheckout_FreeGrantsOnce(t *testing.T) {
	svc, g := newService(nil)
	for i := 0; i < 2; i++ {
		res, err := svc.CreateCheckout(context.Background(), "u1", "", PackageFree, false)
		require.NoError(t, err)
		assert.True(t, res.Success)
	}
	require.Len(t, g.grants, 1)
	assert.Equal(t, int64(100), g.grants["free:u1"].Amount)
	assert.Equal(t, credits.SourceFreeTier, g.grants["free:u1"].Source)
}

func TestCreateCheckout_PaidAnnual(t *testing.T) {
	sessions := &fakeSessions{}
	svc, _ := newService(sessions)

	res, err := svc.CreateCheckout(context.Background(), "u1", "jane@example.com", "pro", true)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", res.URL)

	p := sessions.params
	require.NotNil(t, p)
	assert.Equal(t, "subscription", *p.Mode)
	assert.Equal(t, "u1", *p.ClientReferenceID)
	assert.Equal(t, "https://app.example.com/billing?checkout=success", *p.SuccessURL)
	assert.Equal(t, "pro", p.Metadata["package_id"])
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, int64(99000), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "year", *p.LineItems[0].PriceData.Recurring.Interval)
}

func TestCreateCheckout_Errors(t *testing.T) {
	svc, _ := newService(nil)
	_, err := svc.CreateCheckout(context.Background(), "u1", "", "platinum", false)
	assert.ErrorIs(t, err, ErrUnknownPackage)

	_, err = svc.CreateCheckout(context.Background(), "u1", "", "starter", false)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func signed(t *testing.T, payload string) string {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), whsec)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func checkoutEvent(paymentStatus string) string {
	return `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "api_version": "` + stripe.APIVersion + `",
  "data": {"object": {
    "id": "cs_42",
    "object": "checkout.session",
    "client_reference_id": "u1",
    "payment_status": "` + paymentStatus + `",
    "metadata": {"user_id": "u1", "package_id": "starter"}
  }}
}`
}

func TestHandleWebhook_GrantsPurchasedCreditsOnce(t *testing.T) {
	svc, g := newService(nil)
	payload := checkoutEvent("paid")

	require.NoError(t, svc.HandleWebhook(context.Background(), []byte(payload), signed(t, payload)))
	require.NoError(t, svc.HandleWebhook(context.Background(), []byte(payload), signed(t, payload)))

	require.Len(t, g.grants, 1)
	grant := g.grants["stripe:cs_42"]
	assert.Equal(t, int64(1000), grant.Amount)
	assert.Equal(t, credits.SourcePurchase, grant.Source)
}

func TestHandleWebhook_UnpaidSessionGrantsNothing(t *testing.T) {
	svc, g := newService(nil)
	payload := checkoutEvent("unpaid")
	require.NoError(t, svc.HandleWebhook(context.Background(), []byte(payload), signed(t, payload)))
	assert.Empty(t, g.grants)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	svc, g := newService(nil)
	payload := checkoutEvent("paid")
	err := svc.HandleWebhook(context.Background(), []byte(payload), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrSignature)
	assert.Empty(t, g.grants)
}
