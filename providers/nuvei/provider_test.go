package nuvei

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/transport"
	"github.com/shopspring/decimal"
)

func TestAuthToken_Format(t *testing.T) {
	at := time.Unix(1700000000, 0)
	token := AuthToken("APP", "KEY", at)
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	parts := strings.Split(string(raw), ";")
	if len(parts) != 3 {
		t.Fatalf("expected three token segments, got %q", string(raw))
	}
	if parts[0] != "APP" || parts[1] != "1700000000" {
		t.Fatalf("unexpected token prefix %q", string(raw))
	}
	// sha256("KEY1700000000")
	if len(parts[2]) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", parts[2])
	}
	if AuthToken("APP", "KEY", at) != token {
		t.Fatalf("expected deterministic token for the same timestamp")
	}
}

func TestCallbackToken_MatchesMD5Layout(t *testing.T) {
	got := CallbackToken("tx-1", "SRV", "usr_1", "SECRET")
	// md5("tx-1_SRV_usr_1_SECRET")
	if len(got) != 32 {
		t.Fatalf("expected md5 hex digest, got %q", got)
	}
	if got == CallbackToken("tx-1", "SRV", "usr_2", "SECRET") {
		t.Fatalf("expected user id to change the token")
	}
}

func TestNew_ResolvesEnvironmentBaseURL(t *testing.T) {
	provider, err := New(Config{Environment: "prod", AppCode: "APP", AppKey: "KEY"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if provider.cfg.BaseURL != ProductionBaseURL {
		t.Fatalf("expected production base url, got %q", provider.cfg.BaseURL)
	}
	if provider.cfg.ServerAppCode != "APP" || provider.cfg.ServerAppKey != "KEY" {
		t.Fatalf("expected server credentials to default to client credentials")
	}
	if _, err := New(Config{AppCode: "APP"}); err == nil {
		t.Fatalf("expected missing app key to fail")
	}
	if _, err := New(Config{Environment: "qa", AppCode: "APP", AppKey: "KEY"}); err == nil {
		t.Fatalf("expected unsupported environment to fail")
	}
}

func TestCreateOrder_PostsLinkToPayOrder(t *testing.T) {
	now := time.Unix(1700000000, 0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/linktopay/init_order/" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Auth-Token"); got != AuthToken("APP", "KEY", now) {
			t.Fatalf("unexpected auth token %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["order"]["dev_reference"] != "42" {
			t.Fatalf("expected dev_reference 42, got %v", payload["order"]["dev_reference"])
		}
		if payload["order"]["amount"] != 25.5 {
			t.Fatalf("expected numeric amount 25.5, got %v", payload["order"]["amount"])
		}
		if payload["user"]["id"] != "usr_1" || payload["user"]["email"] != "ada@example.com" {
			t.Fatalf("unexpected user payload %v", payload["user"])
		}
		if payload["configuration"]["success_url"] != "https://app.example/ok" {
			t.Fatalf("expected request success url, got %v", payload["configuration"]["success_url"])
		}
		if payload["configuration"]["failure_url"] != "https://app.example/default-fail" {
			t.Fatalf("expected config failure url fallback, got %v", payload["configuration"]["failure_url"])
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"order":{"id":"LTP-9"},"payment":{"payment_url":"https://pay.example/LTP-9"}}}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server, now)
	order, err := provider.CreateOrder(context.Background(), testOrderRequest())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ProviderOrderID != "LTP-9" || order.PaymentURL != "https://pay.example/LTP-9" {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestCreateOrder_FailuresAreUpstreamErrors(t *testing.T) {
	cases := map[string]func(w http.ResponseWriter){
		"http_500": func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"success_false": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"success":false,"detail":"invalid amount"}`))
		},
		"missing_url": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"success":true,"data":{"order":{"id":"LTP-1"}}}`))
		},
		"not_json": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		},
	}
	for name, respond := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				respond(w)
			}))
			defer server.Close()

			provider := newTestProvider(t, server, time.Now())
			_, err := provider.CreateOrder(context.Background(), testOrderRequest())
			if err == nil {
				t.Fatalf("expected create order to fail")
			}
			if !core.IsErrorKind(err, core.ErrorUpstreamUnavailable) {
				t.Fatalf("expected upstream unavailable, got %v", err)
			}
		})
	}
}

func TestValidateCallback_ApprovedPayment(t *testing.T) {
	provider := newTestProvider(t, nil, time.Now())
	body := callbackJSON("tx-77", "1", "3", "42", "usr_1", "LTP-9", CallbackToken("tx-77", "SRV", "usr_1", "SRVKEY"))

	facts, err := provider.ValidateCallback(context.Background(), core.CallbackRequest{Body: body}, ownedBy("usr_1"))
	if err != nil {
		t.Fatalf("validate callback: %v", err)
	}
	if !facts.Approved() {
		t.Fatalf("expected approved facts, got %+v", facts)
	}
	if facts.CorrelationID != "42" || facts.TransactionID != "tx-77" || facts.ProviderOrderID != "LTP-9" {
		t.Fatalf("unexpected facts %+v", facts)
	}
	outcome := facts.Outcome()
	if outcome.Kind != core.OutcomePaid || outcome.TransactionID != "tx-77" || outcome.AuthorizationCode != "AUTH1" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestValidateCallback_NumericStatusCodes(t *testing.T) {
	provider := newTestProvider(t, nil, time.Now())
	token := CallbackToken("tx-1", "SRV", "usr_1", "SRVKEY")
	body := []byte(fmt.Sprintf(`{"transaction":{"id":"tx-1","status":1,"status_detail":3,"dev_reference":42,"stoken":%q},"user":{"id":"usr_1"}}`, token))

	facts, err := provider.ValidateCallback(context.Background(), core.CallbackRequest{Body: body}, ownedBy("usr_1"))
	if err != nil {
		t.Fatalf("validate callback: %v", err)
	}
	if !facts.Approved() {
		t.Fatalf("expected numeric codes to map to approved, got %+v", facts)
	}
}

func TestValidateCallback_RejectedPaymentIsFailure(t *testing.T) {
	provider := newTestProvider(t, nil, time.Now())
	body := callbackJSON("tx-5", "4", "9", "42", "usr_1", "", CallbackToken("tx-5", "SRV", "usr_1", "SRVKEY"))

	facts, err := provider.ValidateCallback(context.Background(), core.CallbackRequest{Body: body}, ownedBy("usr_1"))
	if err != nil {
		t.Fatalf("validate callback: %v", err)
	}
	outcome := facts.Outcome()
	if outcome.Kind != core.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %+v", outcome)
	}
	if !strings.Contains(outcome.Reason, "status=4") || !strings.Contains(outcome.Reason, "status_detail=9") {
		t.Fatalf("expected raw codes in reason, got %q", outcome.Reason)
	}
}

func TestValidateCallback_AuthenticationFailures(t *testing.T) {
	provider := newTestProvider(t, nil, time.Now())
	goodToken := CallbackToken("tx-1", "SRV", "usr_1", "SRVKEY")

	cases := map[string][]byte{
		"bad_token":       callbackJSON("tx-1", "1", "3", "42", "usr_1", "", "deadbeef"),
		"client_key_sign": callbackJSON("tx-1", "1", "3", "42", "usr_1", "", CallbackToken("tx-1", "APP", "usr_1", "KEY")),
		"wrong_owner":     callbackJSON("tx-1", "1", "3", "42", "usr_2", "", CallbackToken("tx-1", "SRV", "usr_2", "SRVKEY")),
		"missing_user":    callbackJSON("tx-1", "1", "3", "42", "", "", goodToken),
		"missing_token":   callbackJSON("tx-1", "1", "3", "42", "usr_1", "", ""),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := provider.ValidateCallback(context.Background(), core.CallbackRequest{Body: body}, ownedBy("usr_1"))
			if !core.IsErrorKind(err, core.ErrorAuthenticationFailed) {
				t.Fatalf("expected authentication failure, got %v", err)
			}
		})
	}
}

func TestValidateCallback_UnusablePayloads(t *testing.T) {
	provider := newTestProvider(t, nil, time.Now())

	if _, err := provider.ValidateCallback(context.Background(), core.CallbackRequest{Body: []byte(`{"user":{"id":"usr_1"}}`)}, ownedBy("usr_1")); !errors.Is(err, core.ErrCallbackIgnored) {
		t.Fatalf("expected ignored callback without transaction, got %v", err)
	}
	if _, err := provider.ValidateCallback(context.Background(), core.CallbackRequest{Body: []byte(`{"transaction":{"id":"tx"}}`)}, ownedBy("usr_1")); !errors.Is(err, core.ErrMissingCorrelation) {
		t.Fatalf("expected missing correlation, got %v", err)
	}
	if _, err := provider.ValidateCallback(context.Background(), core.CallbackRequest{Body: []byte(`not json`)}, ownedBy("usr_1")); err == nil {
		t.Fatalf("expected parse error")
	}

	notFound := func(context.Context, string) (core.PaymentIntent, error) {
		return core.PaymentIntent{}, core.ErrIntentNotFound
	}
	body := callbackJSON("tx-1", "1", "3", "99", "usr_1", "", "x")
	if _, err := provider.ValidateCallback(context.Background(), core.CallbackRequest{Body: body}, notFound); !errors.Is(err, core.ErrIntentNotFound) {
		t.Fatalf("expected intent not found, got %v", err)
	}
}

func TestHandleCallback_CreditsOnceThroughService(t *testing.T) {
	ctx := context.Background()
	store := core.NewMemoryLedgerStore()
	store.SeedUser(core.User{ExternalID: "usr_1", Balance: decimal.RequireFromString("1.00")})
	provider := newTestProvider(t, nil, time.Now())
	svc, err := core.NewService(core.DefaultConfig(),
		core.WithLedgerStore(store),
		core.WithProviders(provider),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	intent, err := svc.CreateIntent(ctx, core.CreateIntentRequest{
		UserRef:    "usr_1",
		Amount:     decimal.RequireFromString("10.00"),
		ProviderID: ProviderID,
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	body := callbackJSON("tx-9", "1", "3", intent.CorrelationID(), "usr_1", "LTP-1", CallbackToken("tx-9", "SRV", "usr_1", "SRVKEY"))
	first := svc.HandleCallback(ctx, core.CallbackRequest{ProviderID: ProviderID, Body: body})
	if first.Disposition != core.CallbackResolved {
		t.Fatalf("expected resolved disposition, got %q (%v)", first.Disposition, first.Err)
	}
	second := svc.HandleCallback(ctx, core.CallbackRequest{ProviderID: ProviderID, Body: body})
	if second.Disposition != core.CallbackReplayed {
		t.Fatalf("expected replayed disposition, got %q (%v)", second.Disposition, second.Err)
	}
	if second.Ack.Status != "OK" {
		t.Fatalf("expected OK ack, got %q", second.Ack.Status)
	}

	user, _ := store.GetUser(ctx, "usr_1")
	if !user.Balance.Equal(decimal.RequireFromString("11.00")) {
		t.Fatalf("expected single credit, balance=%s", user.Balance)
	}
	stored, _ := store.GetIntent(ctx, intent.ID)
	if stored.ProviderOrderID != "LTP-1" {
		t.Fatalf("expected callback order id to be attached, got %q", stored.ProviderOrderID)
	}
}

func newTestProvider(t *testing.T, server *httptest.Server, now time.Time) *Provider {
	t.Helper()
	cfg := Config{
		AppCode:       "APP",
		AppKey:        "KEY",
		ServerAppCode: "SRV",
		ServerAppKey:  "SRVKEY",
		RedirectURLs: core.RedirectURLs{
			Success: "https://app.example/default-ok",
			Failure: "https://app.example/default-fail",
		},
	}
	opts := []Option{WithClock(func() time.Time { return now })}
	if server != nil {
		cfg.BaseURL = server.URL
		opts = append(opts, WithClient(transport.NewRESTAdapter(server.Client())))
	}
	provider, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func testOrderRequest() core.OrderRequest {
	return core.OrderRequest{
		Intent: core.PaymentIntent{
			ID:       42,
			UserRef:  "usr_1",
			Amount:   decimal.RequireFromString("25.50"),
			Currency: "USD",
		},
		Profile: core.UserProfile{
			ExternalID: "usr_1",
			FirstName:  "Ada",
			LastName:   "Lovelace",
			Email:      "ada@example.com",
		},
		RedirectURLs: core.RedirectURLs{Success: "https://app.example/ok"},
	}
}

func callbackJSON(txID, status, detail, devReference, userID, ltpID, stoken string) []byte {
	payload := map[string]any{
		"transaction": map[string]any{
			"id":                 txID,
			"status":             status,
			"status_detail":      detail,
			"dev_reference":      devReference,
			"authorization_code": "AUTH1",
			"amount":             "10.00",
			"ltp_id":             ltpID,
			"stoken":             stoken,
		},
		"user": map[string]any{"id": userID},
	}
	body, _ := json.Marshal(payload)
	return body
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
