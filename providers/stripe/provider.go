package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	stripeapi "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
)

const (
	ProviderID = "stripe"

	metadataIntentID = "intent_id"
	metadataUserRef  = "user_ref"

	defaultWebhookTolerance = 5 * time.Minute
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	ProductName   string
	RedirectURLs  core.RedirectURLs
	// WebhookTolerance bounds the age of a signed webhook timestamp.
	WebhookTolerance time.Duration
}

// SessionCreator is the slice of the Stripe checkout API the provider uses.
type SessionCreator interface {
	New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
}

type Option func(*Provider)

func WithSessionCreator(creator SessionCreator) Option {
	return func(p *Provider) {
		if creator != nil {
			p.sessions = creator
		}
	}
}

// Provider creates Checkout Sessions and validates signed webhook events.
type Provider struct {
	cfg      Config
	sessions SessionCreator
}

func New(cfg Config, opts ...Option) (*Provider, error) {
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.WebhookSecret = strings.TrimSpace(cfg.WebhookSecret)
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("providers/stripe: webhook secret is required")
	}
	if strings.TrimSpace(cfg.ProductName) == "" {
		cfg.ProductName = "Balance deposit"
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = defaultWebhookTolerance
	}

	provider := &Provider{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	if provider.sessions == nil {
		if cfg.SecretKey == "" {
			return nil, fmt.Errorf("providers/stripe: secret key is required")
		}
		provider.sessions = &session.Client{
			B:   stripeapi.GetBackend(stripeapi.APIBackend),
			Key: cfg.SecretKey,
		}
	}
	return provider, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

// CreateOrder opens a one line item Checkout Session priced at the intent
// amount. The session id becomes the provider order id.
func (p *Provider) CreateOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	intent := req.Intent
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = p.cfg.ProductName
	}
	urls := req.RedirectURLs
	if strings.TrimSpace(urls.Success) == "" {
		urls.Success = p.cfg.RedirectURLs.Success
	}
	if strings.TrimSpace(urls.Failure) == "" {
		urls.Failure = p.cfg.RedirectURLs.Failure
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode: stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripeapi.String(strings.ToLower(intent.Currency)),
					UnitAmount: stripeapi.Int64(intent.Amount.Shift(2).IntPart()),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripeapi.String(description),
					},
				},
				Quantity: stripeapi.Int64(1),
			},
		},
		ClientReferenceID: stripeapi.String(intent.CorrelationID()),
	}
	if urls.Success != "" {
		params.SuccessURL = stripeapi.String(urls.Success)
	}
	if urls.Failure != "" {
		params.CancelURL = stripeapi.String(urls.Failure)
	}
	if email := strings.TrimSpace(req.Profile.Email); email != "" {
		params.CustomerEmail = stripeapi.String(email)
	}
	params.Context = ctx
	params.AddMetadata(metadataIntentID, intent.CorrelationID())
	params.AddMetadata(metadataUserRef, intent.UserRef)
	params.SetIdempotencyKey("payment-intent-" + intent.CorrelationID())

	sess, err := p.sessions.New(params)
	if err != nil {
		return core.Order{}, core.NewUpstreamError(err, "providers/stripe: create checkout session", map[string]any{
			"intent_id": intent.ID,
		})
	}
	if sess == nil || strings.TrimSpace(sess.ID) == "" || strings.TrimSpace(sess.URL) == "" {
		return core.Order{}, core.NewUpstreamError(nil, "providers/stripe: checkout session missing id or url", nil)
	}
	return core.Order{
		ProviderOrderID: sess.ID,
		PaymentURL:      sess.URL,
	}, nil
}

var _ core.Provider = (*Provider)(nil)
