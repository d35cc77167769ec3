package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type testProvider struct {
	id          string
	createOrder func(context.Context, OrderRequest) (Order, error)
	validate    func(context.Context, CallbackRequest, IntentLookup) (CallbackFacts, error)
}

func (p testProvider) ID() string { return p.id }

func (p testProvider) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if p.createOrder != nil {
		return p.createOrder(ctx, req)
	}
	return Order{
		ProviderOrderID: "ord_" + req.Intent.CorrelationID(),
		PaymentURL:      "https://pay.example/" + req.Intent.CorrelationID(),
	}, nil
}

func (p testProvider) ValidateCallback(ctx context.Context, req CallbackRequest, lookup IntentLookup) (CallbackFacts, error) {
	if p.validate != nil {
		return p.validate(ctx, req, lookup)
	}
	return testCallbackFacts(ctx, req, lookup)
}

// testCallbackFacts reads "correlation|status|detail|order|signature" bodies.
func testCallbackFacts(ctx context.Context, req CallbackRequest, lookup IntentLookup) (CallbackFacts, error) {
	parts := strings.Split(string(req.Body), "|")
	for len(parts) < 5 {
		parts = append(parts, "")
	}
	correlationID := strings.TrimSpace(parts[0])
	if correlationID == "" {
		return CallbackFacts{}, ErrMissingCorrelation
	}
	if _, err := lookup(ctx, correlationID); err != nil {
		return CallbackFacts{}, err
	}
	if parts[4] != "valid" {
		return CallbackFacts{}, NewAuthenticationError("signature mismatch", nil)
	}
	facts := CallbackFacts{
		CorrelationID:   correlationID,
		TransactionID:   "tx_" + correlationID,
		RawStatus:       parts[1],
		RawStatusDetail: parts[2],
		ProviderOrderID: parts[3],
		Status:          CallbackStatusFailure,
		StatusDetail:    CallbackDetailUnknown,
	}
	if parts[1] == "1" {
		facts.Status = CallbackStatusSuccess
	}
	if parts[2] == "3" {
		facts.StatusDetail = CallbackDetailApproved
	}
	return facts, nil
}

func callbackBody(intentID int64, status string, detail string, orderID string, signature string) []byte {
	return []byte(fmt.Sprintf("%d|%s|%s|%s|%s", intentID, status, detail, orderID, signature))
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ResolutionEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event ResolutionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) snapshot() []ResolutionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ResolutionEvent, len(n.events))
	copy(out, n.events)
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now.UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

type testHarness struct {
	svc      *Service
	store    *MemoryLedgerStore
	notifier *recordingNotifier
	clock    *testClock
}

func newTestHarness(t *testing.T, opts ...Option) testHarness {
	t.Helper()
	store := NewMemoryLedgerStore()
	store.SeedUser(User{
		ExternalID: "usr_1",
		Balance:    decimal.RequireFromString("10.00"),
		Profile: UserProfile{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
		},
	})
	notifier := &recordingNotifier{}
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	base := []Option{
		WithLedgerStore(store),
		WithProviders(testProvider{id: "gateway"}),
		WithNotifiers(notifier),
		WithClock(clock.Now),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return testHarness{svc: svc, store: store, notifier: notifier, clock: clock}
}

func (h testHarness) createIntent(t *testing.T, amount string) PaymentIntent {
	t.Helper()
	intent, err := h.svc.CreateIntent(context.Background(), CreateIntentRequest{
		UserRef:    "usr_1",
		Amount:     decimal.RequireFromString(amount),
		ProviderID: "gateway",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return intent
}

func (h testHarness) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	user, err := h.store.GetUser(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return user.Balance
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}
