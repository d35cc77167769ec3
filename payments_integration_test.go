package payments_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	payments "github.com/goliatone/go-payments"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/httpapi"
	"github.com/goliatone/go-payments/providers/nuvei"
	"github.com/shopspring/decimal"
)

func TestEndToEnd_CheckoutCallbackAndSweep(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"order":{"id":"LTP-` + strconv.FormatInt(time.Now().UnixNano(), 10) +
			`"},"payment":{"payment_url":"https://pay.example/checkout"}}}`))
	}))
	defer gateway.Close()

	provider, err := payments.NuveiProvider(nuvei.Config{
		BaseURL:       gateway.URL,
		AppCode:       "APP",
		AppKey:        "KEY",
		ServerAppCode: "SRV",
		ServerAppKey:  "SRVKEY",
	})
	if err != nil {
		t.Fatalf("nuvei provider: %v", err)
	}

	store := core.NewMemoryLedgerStore()
	store.SeedUser(core.User{ExternalID: "usr_1"})
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := payments.NewService(payments.DefaultConfig(),
		payments.WithLedgerStore(store),
		payments.WithProviders(provider),
		payments.WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	router, err := httpapi.NewRouter(svc, httpapi.Config{
		InternalAPIKey:    "key",
		DefaultProviderID: nuvei.ProviderID,
		Now:               clock.Now,
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	callbackPaid := createIntent(t, router, "10.00")
	if callbackPaid.PaymentURL == "" || callbackPaid.ProviderOrderID == "" {
		t.Fatalf("expected gateway order details, got %#v", callbackPaid)
	}

	forged := nuveiCallback(callbackPaid.IntentID, "tx-1", callbackPaid.ProviderOrderID, "not-the-token")
	postCallback(t, router, forged)
	if got := balance(t, store); !got.IsZero() {
		t.Fatalf("expected forged callback to leave balance untouched, got %s", got)
	}

	valid := nuveiCallback(callbackPaid.IntentID, "tx-1", callbackPaid.ProviderOrderID,
		nuvei.CallbackToken("tx-1", "SRV", "usr_1", "SRVKEY"))
	postCallback(t, router, valid)
	postCallback(t, router, valid)
	if got := balance(t, store); !got.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("expected a single 10.00 credit, got %s", got)
	}

	swept := createIntent(t, router, "5.00")
	clock.Advance(3 * time.Minute)
	sweeper, err := payments.NewSweeper(svc)
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	report, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Resolved != 1 {
		t.Fatalf("expected one swept intent, got %#v", report)
	}

	late := nuveiCallback(swept.IntentID, "tx-2", swept.ProviderOrderID,
		nuvei.CallbackToken("tx-2", "SRV", "usr_1", "SRVKEY"))
	postCallback(t, router, late)
	if got := balance(t, store); !got.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("expected late callback to be a replay, got balance %s", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/payments/intents/"+strconv.FormatInt(swept.IntentID, 10), nil)
	req.Header.Set(httpapi.InternalKeyHeader, "key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"resolution_source":"sweeper"`) {
		t.Fatalf("expected swept intent view, got %d %s", rec.Code, rec.Body.String())
	}
}

type intentCreated struct {
	IntentID        int64  `json:"intent_id"`
	ProviderOrderID string `json:"provider_order_id"`
	PaymentURL      string `json:"payment_url"`
}

func createIntent(t *testing.T, router http.Handler, amount string) intentCreated {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/intents",
		strings.NewReader(`{"user_ref":"usr_1","amount":"`+amount+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpapi.InternalKeyHeader, "key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create intent: %d %s", rec.Code, rec.Body.String())
	}
	var created intentCreated
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return created
}

func postCallback(t *testing.T, router http.Handler, body []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/callbacks/"+nuvei.ProviderID, strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"OK"}` {
		t.Fatalf("expected OK ack, got %d %s", rec.Code, rec.Body.String())
	}
}

func nuveiCallback(intentID int64, txID, orderID, stoken string) []byte {
	body, _ := json.Marshal(map[string]any{
		"transaction": map[string]any{
			"id":                 txID,
			"status":             "1",
			"status_detail":      "3",
			"dev_reference":      strconv.FormatInt(intentID, 10),
			"authorization_code": "AUTH1",
			"ltp_id":             orderID,
			"stoken":             stoken,
		},
		"user": map[string]any{"id": "usr_1"},
	})
	return body
}

func balance(t *testing.T, store *core.MemoryLedgerStore) decimal.Decimal {
	t.Helper()
	user, err := store.GetUser(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return user.Balance
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
