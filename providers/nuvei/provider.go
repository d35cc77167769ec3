package nuvei

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/transport"
)

type Option func(*Provider)

func WithClient(client transport.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// Provider implements LinkToPay order creation and callback validation.
type Provider struct {
	cfg    Config
	client transport.Client
	now    func() time.Time
}

func New(cfg Config, opts ...Option) (*Provider, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	provider := &Provider{
		cfg:    cfg,
		client: transport.NewRESTAdapter(nil),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

type orderUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	LastName     string `json:"last_name"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	FiscalNumber string `json:"fiscal_number,omitempty"`
}

type orderDetails struct {
	DevReference     string      `json:"dev_reference"`
	Description      string      `json:"description"`
	Amount           json.Number `json:"amount"`
	Currency         string      `json:"currency"`
	InstallmentsType int         `json:"installments_type"`
	Vat              json.Number `json:"vat"`
	TaxableAmount    json.Number `json:"taxable_amount"`
	TaxPercentage    json.Number `json:"tax_percentage"`
}

type orderConfiguration struct {
	PartialPayment        bool     `json:"partial_payment"`
	ExpirationDays        int      `json:"expiration_days"`
	AllowedPaymentMethods []string `json:"allowed_payment_methods"`
	SuccessURL            string   `json:"success_url,omitempty"`
	FailureURL            string   `json:"failure_url,omitempty"`
	PendingURL            string   `json:"pending_url,omitempty"`
	ReviewURL             string   `json:"review_url,omitempty"`
}

type initOrderRequest struct {
	User          orderUser          `json:"user"`
	Order         orderDetails       `json:"order"`
	Configuration orderConfiguration `json:"configuration"`
}

type initOrderResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
	Data    struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
		Payment struct {
			PaymentURL string `json:"payment_url"`
		} `json:"payment"`
	} `json:"data"`
}

// CreateOrder posts a LinkToPay order whose dev_reference is the intent
// correlation id.
func (p *Provider) CreateOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	payload := p.orderPayload(req)
	headers := map[string]string{
		"Auth-Token": AuthToken(p.cfg.AppCode, p.cfg.AppKey, p.now()),
	}
	endpoint := p.cfg.BaseURL + initOrderPath

	body, err := json.Marshal(payload)
	if err != nil {
		return core.Order{}, core.NewUpstreamError(err, "providers/nuvei: encode order", nil)
	}
	headers["Content-Type"] = "application/json"
	res, err := p.client.Do(ctx, transport.Request{
		Method:  "POST",
		URL:     endpoint,
		Headers: headers,
		Body:    body,
		Timeout: p.cfg.Timeout,
	})
	if err != nil {
		return core.Order{}, err
	}
	if statusErr := transport.StatusError(res, "providers/nuvei: init order"); statusErr != nil {
		return core.Order{}, statusErr
	}

	decoded := initOrderResponse{}
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return core.Order{}, core.NewUpstreamError(err, "providers/nuvei: decode init order response", nil)
	}
	if !decoded.Success {
		return core.Order{}, core.NewUpstreamError(nil, "providers/nuvei: init order rejected", map[string]any{
			"detail": strings.TrimSpace(decoded.Detail),
		})
	}
	orderID := strings.TrimSpace(decoded.Data.Order.ID)
	paymentURL := strings.TrimSpace(decoded.Data.Payment.PaymentURL)
	if orderID == "" || paymentURL == "" {
		return core.Order{}, core.NewUpstreamError(nil, "providers/nuvei: init order response missing order id or payment url", nil)
	}
	return core.Order{
		ProviderOrderID: orderID,
		PaymentURL:      paymentURL,
		Metadata: map[string]any{
			"environment": p.cfg.Environment,
		},
	}, nil
}

func (p *Provider) orderPayload(req core.OrderRequest) initOrderRequest {
	profile := req.Profile
	userID := strings.TrimSpace(profile.ExternalID)
	if userID == "" {
		userID = req.Intent.UserRef
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = p.cfg.Description
	}
	urls := mergeRedirectURLs(req.RedirectURLs, p.cfg.RedirectURLs)
	zero := json.Number("0")

	return initOrderRequest{
		User: orderUser{
			ID:           userID,
			Email:        profile.Email,
			Name:         profile.FirstName,
			LastName:     profile.LastName,
			PhoneNumber:  profile.Phone,
			FiscalNumber: profile.DocumentID,
		},
		Order: orderDetails{
			DevReference:     req.Intent.CorrelationID(),
			Description:      description,
			Amount:           json.Number(req.Intent.Amount.StringFixed(2)),
			Currency:         req.Intent.Currency,
			InstallmentsType: 0,
			Vat:              zero,
			TaxableAmount:    zero,
			TaxPercentage:    zero,
		},
		Configuration: orderConfiguration{
			ExpirationDays:        p.cfg.ExpirationDays,
			AllowedPaymentMethods: append([]string(nil), p.cfg.AllowedPaymentMethods...),
			SuccessURL:            urls.Success,
			FailureURL:            urls.Failure,
			PendingURL:            urls.Pending,
			ReviewURL:             urls.Review,
		},
	}
}

func mergeRedirectURLs(primary core.RedirectURLs, fallback core.RedirectURLs) core.RedirectURLs {
	return core.RedirectURLs{
		Success: firstNonEmpty(primary.Success, fallback.Success),
		Failure: firstNonEmpty(primary.Failure, fallback.Failure),
		Pending: firstNonEmpty(primary.Pending, fallback.Pending),
		Review:  firstNonEmpty(primary.Review, fallback.Review),
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var _ core.Provider = (*Provider)(nil)
