package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultNotificationTimeout = 10 * time.Second

// NamedNotifier lets a notifier report a stable name for logs and metrics.
type NamedNotifier interface {
	Name() string
}

type DispatchReport struct {
	Delivered int
	Failed    int
}

// NotificationDispatcher fans a resolution event out to every configured
// notifier. Delivery is best effort: failures are logged, counted and never
// returned to the caller, and the ledger is never touched.
type NotificationDispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	telemetry telemetry
}

type DispatchOption func(*NotificationDispatcher)

func WithDispatchTimeout(timeout time.Duration) DispatchOption {
	return func(d *NotificationDispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithDispatchLogger(logger Logger) DispatchOption {
	return func(d *NotificationDispatcher) {
		d.telemetry.logger = logger
	}
}

func WithDispatchMetrics(recorder MetricsRecorder) DispatchOption {
	return func(d *NotificationDispatcher) {
		d.telemetry.metrics = recorder
	}
}

func NewNotificationDispatcher(notifiers []Notifier, opts ...DispatchOption) *NotificationDispatcher {
	dispatcher := &NotificationDispatcher{
		timeout:   defaultNotificationTimeout,
		telemetry: telemetry{metrics: NopMetricsRecorder{}},
	}
	for _, notifier := range notifiers {
		if notifier != nil {
			dispatcher.notifiers = append(dispatcher.notifiers, notifier)
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(dispatcher)
		}
	}
	return dispatcher
}

func (d *NotificationDispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.notifiers)
}

// Dispatch runs after the transition has committed, so it detaches from the
// caller's cancellation and bounds each notifier with its own timeout.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, event ResolutionEvent) DispatchReport {
	report := DispatchReport{}
	if d == nil || len(d.notifiers) == 0 {
		return report
	}
	if ctx == nil {
		ctx = context.Background()
	}
	base := context.WithoutCancel(ctx)

	for _, notifier := range d.notifiers {
		startedAt := time.Now().UTC()
		err := d.deliver(base, notifier, event)
		d.telemetry.observe(base, startedAt, "notify", err, map[string]any{
			"notifier":    notifierName(notifier),
			"intent_id":   event.IntentID,
			"event_id":    event.EventID,
			"outcome":     string(event.Outcome),
			"provider_id": event.ProviderID,
			"source":      string(event.Source),
		})
		if err != nil {
			report.Failed++
			continue
		}
		report.Delivered++
	}
	return report
}

func (d *NotificationDispatcher) deliver(ctx context.Context, notifier Notifier, event ResolutionEvent) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: notifier %s panicked: %v", notifierName(notifier), recovered)
		}
	}()
	return notifier.Notify(ctx, event)
}

func notifierName(notifier Notifier) string {
	if named, ok := notifier.(NamedNotifier); ok {
		if name := strings.TrimSpace(named.Name()); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%T", notifier)
}

// FormatResolutionMessage renders the operator-facing text shared by the
// chat style notifiers.
func FormatResolutionMessage(event ResolutionEvent) string {
	var builder strings.Builder
	switch event.Outcome {
	case IntentStatusPaid:
		fmt.Fprintf(&builder, "Payment intent %d paid\n", event.IntentID)
	case IntentStatusFailed:
		fmt.Fprintf(&builder, "Payment intent %d failed\n", event.IntentID)
	default:
		fmt.Fprintf(&builder, "Payment intent %d %s\n", event.IntentID, event.Outcome)
	}
	fmt.Fprintf(&builder, "User: %s\n", event.UserRef)
	fmt.Fprintf(&builder, "Amount: %s %s\n", event.Amount.StringFixed(2), event.Currency)
	if event.Outcome == IntentStatusPaid {
		fmt.Fprintf(&builder, "Balance: %s\n", event.Balance.StringFixed(2))
	}
	if event.ProviderID != "" {
		fmt.Fprintf(&builder, "Provider: %s\n", event.ProviderID)
	}
	if event.ProviderOrderID != "" {
		fmt.Fprintf(&builder, "Order: %s\n", event.ProviderOrderID)
	}
	if event.TransactionID != "" {
		fmt.Fprintf(&builder, "Transaction: %s\n", event.TransactionID)
	}
	if event.Reason != "" {
		fmt.Fprintf(&builder, "Reason: %s\n", event.Reason)
	}
	fmt.Fprintf(&builder, "Source: %s", event.Source)
	return builder.String()
}
