package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/shopspring/decimal"
	stripeapi "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

const testWebhookSecret = "whsec_test_secret"

type stubSessionCreator struct {
	params  *stripeapi.CheckoutSessionParams
	session *stripeapi.CheckoutSession
	err     error
}

func (s *stubSessionCreator) New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func TestCreateOrder_BuildsCheckoutSession(t *testing.T) {
	creator := &stubSessionCreator{session: &stripeapi.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}}
	provider := newTestProvider(t, creator)

	order, err := provider.CreateOrder(context.Background(), core.OrderRequest{
		Intent: core.PaymentIntent{
			ID:       7,
			UserRef:  "usr_1",
			Amount:   decimal.RequireFromString("12.34"),
			Currency: "USD",
		},
		Profile: core.UserProfile{Email: "ada@example.com"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ProviderOrderID != "cs_test_1" || order.PaymentURL != "https://checkout.stripe.com/c/cs_test_1" {
		t.Fatalf("unexpected order %+v", order)
	}

	params := creator.params
	if params == nil {
		t.Fatalf("expected session params to be captured")
	}
	if *params.Mode != string(stripeapi.CheckoutSessionModePayment) {
		t.Fatalf("expected payment mode, got %q", *params.Mode)
	}
	if len(params.LineItems) != 1 {
		t.Fatalf("expected one line item, got %d", len(params.LineItems))
	}
	price := params.LineItems[0].PriceData
	if *price.UnitAmount != 1234 || *price.Currency != "usd" {
		t.Fatalf("expected 1234 usd minor units, got %d %s", *price.UnitAmount, *price.Currency)
	}
	if *params.ClientReferenceID != "7" {
		t.Fatalf("expected client reference 7, got %q", *params.ClientReferenceID)
	}
	if *params.SuccessURL != "https://app.example/ok" || *params.CancelURL != "https://app.example/cancel" {
		t.Fatalf("expected configured redirect urls")
	}
	if *params.CustomerEmail != "ada@example.com" {
		t.Fatalf("expected customer email, got %q", *params.CustomerEmail)
	}
}

func TestCreateOrder_GatewayFailureIsUpstream(t *testing.T) {
	provider := newTestProvider(t, &stubSessionCreator{err: errors.New("card network down")})
	_, err := provider.CreateOrder(context.Background(), core.OrderRequest{
		Intent: core.PaymentIntent{ID: 1, Amount: decimal.RequireFromString("1.00"), Currency: "USD"},
	})
	if !core.IsErrorKind(err, core.ErrorUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}

	provider = newTestProvider(t, &stubSessionCreator{session: &stripeapi.CheckoutSession{ID: "cs_1"}})
	_, err = provider.CreateOrder(context.Background(), core.OrderRequest{
		Intent: core.PaymentIntent{ID: 1, Amount: decimal.RequireFromString("1.00"), Currency: "USD"},
	})
	if !core.IsErrorKind(err, core.ErrorUpstreamUnavailable) {
		t.Fatalf("expected missing url to be upstream unavailable, got %v", err)
	}
}

func TestValidateCallback_CompletedPaidSession(t *testing.T) {
	provider := newTestProvider(t, &stubSessionCreator{})
	body, header := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":                  "cs_test_1",
		"object":              "checkout.session",
		"client_reference_id": "7",
		"payment_status":      "paid",
		"amount_total":        1234,
		"payment_intent":      "pi_123",
		"metadata":            map[string]string{"intent_id": "7", "user_ref": "usr_1"},
	})

	facts, err := provider.ValidateCallback(context.Background(), callbackRequest(body, header), ownedBy("usr_1"))
	if err != nil {
		t.Fatalf("validate callback: %v", err)
	}
	if !facts.Approved() {
		t.Fatalf("expected approved facts, got %+v", facts)
	}
	if facts.CorrelationID != "7" || facts.TransactionID != "pi_123" || facts.ProviderOrderID != "cs_test_1" {
		t.Fatalf("unexpected facts %+v", facts)
	}
}

func TestValidateCallback_FailureEvents(t *testing.T) {
	provider := newTestProvider(t, &stubSessionCreator{})
	for _, eventType := range []string{"checkout.session.async_payment_failed", "checkout.session.expired"} {
		body, header := signedEvent(t, eventType, map[string]any{
			"id":                  "cs_test_2",
			"object":              "checkout.session",
			"client_reference_id": "7",
			"payment_status":      "unpaid",
		})
		facts, err := provider.ValidateCallback(context.Background(), callbackRequest(body, header), ownedBy("usr_1"))
		if err != nil {
			t.Fatalf("validate %s: %v", eventType, err)
		}
		if facts.Outcome().Kind != core.OutcomeFailed {
			t.Fatalf("expected %s to fail the intent, got %+v", eventType, facts)
		}
	}
}

func TestValidateCallback_IgnoresNonSettlingEvents(t *testing.T) {
	provider := newTestProvider(t, &stubSessionCreator{})

	body, header := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":                  "cs_test_3",
		"object":              "checkout.session",
		"client_reference_id": "7",
		"payment_status":      "unpaid",
	})
	if _, err := provider.ValidateCallback(context.Background(), callbackRequest(body, header), ownedBy("usr_1")); !errors.Is(err, core.ErrCallbackIgnored) {
		t.Fatalf("expected unpaid completion to be ignored, got %v", err)
	}

	body, header = signedEvent(t, "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
	if _, err := provider.ValidateCallback(context.Background(), callbackRequest(body, header), ownedBy("usr_1")); !errors.Is(err, core.ErrCallbackIgnored) {
		t.Fatalf("expected unrelated event to be ignored, got %v", err)
	}
}

func TestValidateCallback_RejectsBadSignatureAndOwner(t *testing.T) {
	provider := newTestProvider(t, &stubSessionCreator{})
	object := map[string]any{
		"id":                  "cs_test_4",
		"object":              "checkout.session",
		"client_reference_id": "7",
		"payment_status":      "paid",
		"metadata":            map[string]string{"user_ref": "usr_other"},
	}
	body, _ := signedEvent(t, "checkout.session.completed", object)
	if _, err := provider.ValidateCallback(context.Background(), callbackRequest(body, "t=1,v1=bad"), ownedBy("usr_1")); !core.IsErrorKind(err, core.ErrorAuthenticationFailed) {
		t.Fatalf("expected signature rejection, got %v", err)
	}

	body, header := signedEvent(t, "checkout.session.completed", object)
	if _, err := provider.ValidateCallback(context.Background(), callbackRequest(body, header), ownedBy("usr_1")); !core.IsErrorKind(err, core.ErrorAuthenticationFailed) {
		t.Fatalf("expected owner mismatch rejection, got %v", err)
	}
}

func TestValidateCallback_MissingCorrelationIsDropped(t *testing.T) {
	provider := newTestProvider(t, &stubSessionCreator{})
	body, header := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_5",
		"object":         "checkout.session",
		"payment_status": "paid",
	})
	if _, err := provider.ValidateCallback(context.Background(), callbackRequest(body, header), ownedBy("usr_1")); !errors.Is(err, core.ErrMissingCorrelation) {
		t.Fatalf("expected missing correlation, got %v", err)
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{SecretKey: "sk_test"}); err == nil {
		t.Fatalf("expected missing webhook secret to fail")
	}
	if _, err := New(Config{WebhookSecret: testWebhookSecret}); err == nil {
		t.Fatalf("expected missing secret key to fail without a session creator")
	}
}

func newTestProvider(t *testing.T, creator SessionCreator) *Provider {
	t.Helper()
	provider, err := New(Config{
		WebhookSecret: testWebhookSecret,
		RedirectURLs: core.RedirectURLs{
			Success: "https://app.example/ok",
			Failure: "https://app.example/cancel",
		},
	}, WithSessionCreator(creator))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func signedEvent(t *testing.T, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test",
		"object":      "event",
		"type":        eventType,
		"api_version": stripeapi.APIVersion,
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func callbackRequest(body []byte, signature string) core.CallbackRequest {
	return core.CallbackRequest{
		ProviderID: ProviderID,
		Headers:    map[string]string{"stripe-signature": signature},
		Body:       body,
	}
}

func ownedBy(userRef string) core.IntentLookup {
	return func(_ context.Context, correlationID string) (core.PaymentIntent, error) {
		id, err := core.ParseIntentID(correlationID)
		if err != nil {
			return core.PaymentIntent{}, core.ErrIntentNotFound
		}
		return core.PaymentIntent{ID: id, UserRef: userRef, Status: core.IntentStatusPending}, nil
	}
}
