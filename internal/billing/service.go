package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"voice-agent-platform/internal/credits"
	"voice-agent-platform/pkg/logger"

	"github.com/stripe/stripe-go/v76"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrNotConfigured   = errors.New("payments are not configured")
	ErrUnknownPackage  = errors.New("unknown package")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSignature       = errors.New("webhook signature verification failed")
)

// SessionCreator creates Stripe Checkout Sessions.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSessions struct{}

func (stripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return checkoutsession.New(params)
}

// Granter credits a user's balance.
type Granter interface {
	Grant(ctx context.Context, userID string, req credits.GrantRequest) (credits.LedgerEntry, credits.Balance, error)
}

type Config struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL is the dashboard origin used for success and cancel redirects.
	BaseURL string
}

type CheckoutResult struct {
	URL     string `json:"url,omitempty"`
	Success bool   `json:"success,omitempty"`
}

// Service sells credit packages. Paid packages go through Stripe Checkout and
// are granted when the checkout.session.completed webhook arrives; the free
// package is granted immediately, once per user.
type Service struct {
	catalog       []Package
	packages      map[string]Package
	sessions      SessionCreator
	credits       Granter
	baseURL       string
	webhookSecret string
}

type Option func(*Service)

// WithSessionCreator replaces the Stripe API client, mostly for tests.
func WithSessionCreator(sc SessionCreator) Option {
	return func(s *Service) { s.sessions = sc }
}

func NewService(cfg Config, catalog []Package, granter Granter, opts ...Option) *Service {
	s := &Service{
		catalog:       catalog,
		packages:      make(map[string]Package, len(catalog)),
		credits:       granter,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		webhookSecret: cfg.WebhookSecret,
	}
	for _, p := range catalog {
		s.packages[p.ID] = p
	}
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
		s.sessions = stripeSessions{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Packages() []Package { return s.catalog }

func (s *Service) CreateCheckout(ctx context.Context, userID, email, packageID string, annual bool) (CheckoutResult, error) {
	if userID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user is required", ErrInvalidArgument)
	}
	pkg, ok := s.packages[strings.TrimSpace(packageID)]
	if !ok {
		return CheckoutResult{}, fmt.Errorf("%w: %q", ErrUnknownPackage, packageID)
	}

	if pkg.Free() {
		if s.credits == nil {
			return CheckoutResult{}, ErrNotConfigured
		}
		_, _, err := s.credits.Grant(ctx, userID, credits.GrantRequest{
			Amount:         pkg.Credits,
			Source:         credits.SourceFreeTier,
			IdempotencyKey: "free:" + userID,
		})
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("grant free credits: %w", err)
		}
		return CheckoutResult{Success: true}, nil
	}

	if s.sessions == nil {
		return CheckoutResult{}, ErrNotConfigured
	}

	interval, amount := stripe.PriceRecurringIntervalMonth, pkg.MonthlyCents
	if annual {
		interval, amount = stripe.PriceRecurringIntervalYear, pkg.AnnualCents
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(pkg.Name + " credits"),
					},
					Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripe.String(string(interval)),
					},
				},
			},
		},
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(s.baseURL + "/billing?checkout=success"),
		CancelURL:         stripe.String(s.baseURL + "/billing?checkout=cancelled"),
		Metadata: map[string]string{
			"user_id":    userID,
			"package_id": pkg.ID,
		},
	}
	params.Context = ctx
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	sess, err := s.sessions.New(params)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("create checkout session: %w", err)
	}
	logger.From(ctx).Info("checkout session created", "user_id", userID, "package_id", pkg.ID, "session_id", sess.ID)
	return CheckoutResult{URL: sess.URL}, nil
}

// HandleWebhook verifies a Stripe event and grants credits for completed
// checkouts. Other event types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhookSecret == "" {
		return ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}

	log := logger.From(ctx).With("stripe_event", event.ID, "type", event.Type)
	switch event.Type {
	case "checkout.session.completed":
		return s.checkoutCompleted(ctx, event)
	default:
		log.Debug("stripe event ignored")
		return nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	log := logger.From(ctx).With("session_id", sess.ID)
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		log.Info("checkout completed without payment, no credits granted")
		return nil
	}

	userID := sess.Metadata["user_id"]
	if userID == "" {
		userID = sess.ClientReferenceID
	}
	pkg, ok := s.packages[sess.Metadata["package_id"]]
	if userID == "" || !ok {
		log.Warn("checkout session without user or package", "package_id", sess.Metadata["package_id"])
		return nil
	}
	if s.credits == nil {
		return ErrNotConfigured
	}

	_, _, err := s.credits.Grant(ctx, userID, credits.GrantRequest{
		Amount:         pkg.Credits,
		Source:         credits.SourcePurchase,
		IdempotencyKey: "stripe:" + sess.ID,
		Metadata:       fmt.Sprintf(`{"package_id":%q}`, pkg.ID),
	})
	if err != nil {
		return fmt.Errorf("grant purchased credits: %w", err)
	}
	log.Info("purchased credits granted", "user_id", userID, "package_id", pkg.ID, "credits", pkg.Credits)
	return nil
}
