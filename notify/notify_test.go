package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/transport"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

func paidEvent() core.ResolutionEvent {
	return core.ResolutionEvent{
		EventID:         "evt_1",
		IntentID:        42,
		UserRef:         "123456789",
		Outcome:         core.IntentStatusPaid,
		Amount:          decimal.RequireFromString("25"),
		Currency:        "USD",
		Balance:         decimal.RequireFromString("75.5"),
		ProviderID:      "nuvei",
		ProviderOrderID: "ltp_1",
		TransactionID:   "tx_1",
		Source:          core.ResolutionSourceCallback,
		OccurredAt:      time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestTelegramNotifier_PostsChatMessage(t *testing.T) {
	var (
		path string
		body map[string]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	notifier, err := NewTelegramNotifier(TelegramConfig{BotToken: "tok123", BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("new telegram notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), paidEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if path != "/bottok123/sendMessage" {
		t.Fatalf("unexpected path %q", path)
	}
	if body["chat_id"] != "123456789" {
		t.Fatalf("expected chat id to be the user ref, got %q", body["chat_id"])
	}
	if !strings.Contains(body["text"], "Payment intent 42 paid") || !strings.Contains(body["text"], "Balance: 75.50") {
		t.Fatalf("unexpected message text %q", body["text"])
	}
}

func TestTelegramNotifier_RejectedStatusIsError(t *testing.T) {
	client := transport.ClientFunc(func(context.Context, transport.Request) (transport.Response, error) {
		return transport.Response{StatusCode: http.StatusBadRequest, Body: []byte(`{"ok":false}`)}, nil
	})
	notifier, err := NewTelegramNotifier(TelegramConfig{BotToken: "tok"}, WithTelegramClient(client))
	if err != nil {
		t.Fatalf("new telegram notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), paidEvent()); !core.IsErrorKind(err, core.ErrorUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	event := paidEvent()
	event.UserRef = " "
	if err := notifier.Notify(context.Background(), event); err == nil {
		t.Fatalf("expected empty chat id to fail")
	}
}

func TestNewTelegramNotifier_RequiresToken(t *testing.T) {
	if _, err := NewTelegramNotifier(TelegramConfig{}); err == nil {
		t.Fatalf("expected missing token to fail")
	}
}

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier_WritesKeyedEvent(t *testing.T) {
	writer := &recordingWriter{}
	notifier, err := NewKafkaNotifierWithWriter(writer, "payments.resolutions")
	if err != nil {
		t.Fatalf("new kafka notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), paidEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "42" {
		t.Fatalf("expected intent id key, got %q", msg.Key)
	}
	var payload EventPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.EventType != EventTypeIntentPaid || payload.Amount != "25.00" || payload.Balance != "75.50" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if err := notifier.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed")
	}
}

func TestKafkaNotifier_WrapsWriteError(t *testing.T) {
	cause := errors.New("leader not available")
	notifier, err := NewKafkaNotifierWithWriter(&recordingWriter{err: cause}, "payments.resolutions")
	if err != nil {
		t.Fatalf("new kafka notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), paidEvent()); !errors.Is(err, cause) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestNewKafkaNotifier_ValidatesConfig(t *testing.T) {
	if _, err := NewKafkaNotifier(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatalf("expected missing topic to fail")
	}
	if _, err := NewKafkaNotifier(KafkaConfig{Topic: "payments"}); err == nil {
		t.Fatalf("expected missing brokers to fail")
	}
	notifier, err := NewKafkaNotifier(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "payments"})
	if err != nil {
		t.Fatalf("new kafka notifier: %v", err)
	}
	_ = notifier.Close()
}

type recordingSNS struct {
	inputs []*sns.PublishInput
}

func (r *recordingSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	r.inputs = append(r.inputs, params)
	return &sns.PublishOutput{}, nil
}

func TestSNSNotifier_PublishesEventWithAttributes(t *testing.T) {
	client := &recordingSNS{}
	notifier, err := NewSNSNotifier(client, "arn:aws:sns:us-east-1:123456789012:payments")
	if err != nil {
		t.Fatalf("new sns notifier: %v", err)
	}
	event := paidEvent()
	event.Outcome = core.IntentStatusFailed
	event.Reason = "no confirmation received"
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("expected one publish, got %d", len(client.inputs))
	}
	input := client.inputs[0]
	if *input.MessageAttributes["event_type"].StringValue != EventTypeIntentFailed {
		t.Fatalf("unexpected event type attribute")
	}
	if input.MessageGroupId != nil {
		t.Fatalf("expected no message group on a standard topic")
	}
	var payload EventPayload
	if err := json.Unmarshal([]byte(*input.Message), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Balance != "" || payload.Reason != "no confirmation received" {
		t.Fatalf("unexpected failed payload %#v", payload)
	}
}

func TestSNSNotifier_FifoTopicSetsGroupAndDedup(t *testing.T) {
	client := &recordingSNS{}
	notifier, err := NewSNSNotifier(client, "arn:aws:sns:us-east-1:123456789012:payments.fifo")
	if err != nil {
		t.Fatalf("new sns notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), paidEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	input := client.inputs[0]
	if input.MessageGroupId == nil || *input.MessageGroupId != "42" {
		t.Fatalf("expected intent id message group")
	}
	if input.MessageDeduplicationId == nil || *input.MessageDeduplicationId != "evt_1" {
		t.Fatalf("expected event id dedup id")
	}
}

func TestNotifiers_FanOutThroughDispatcher(t *testing.T) {
	writer := &recordingWriter{}
	kafkaNotifier, _ := NewKafkaNotifierWithWriter(writer, "payments")
	snsClient := &recordingSNS{}
	snsNotifier, _ := NewSNSNotifier(snsClient, "arn:aws:sns:us-east-1:1:payments")

	dispatcher := core.NewNotificationDispatcher([]core.Notifier{kafkaNotifier, snsNotifier})
	report := dispatcher.Dispatch(context.Background(), paidEvent())
	if report.Delivered != 2 || report.Failed != 0 {
		t.Fatalf("unexpected dispatch report %#v", report)
	}
}
