package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// LedgerStore persists users and payment intents. ApplyResolution must move
// the intent out of pending and credit the owner's balance in one atomic
// commit, guarded by the stored status.
type LedgerStore interface {
	GetUser(ctx context.Context, externalID string) (User, error)
	CreateIntent(ctx context.Context, in CreateIntentInput) (PaymentIntent, error)
	GetIntent(ctx context.Context, id int64) (PaymentIntent, error)
	AttachProviderOrderID(ctx context.Context, id int64, orderID string) (PaymentIntent, error)
	ApplyResolution(ctx context.Context, res Resolution) (ResolutionResult, error)
	// ListStalePending pages through pending intents created before the
	// cutoff, oldest first, starting strictly after the cursor.
	ListStalePending(ctx context.Context, createdBefore time.Time, after StaleCursor, limit int) ([]PaymentIntent, error)
}

// StaleCursor is the (created_at, id) keyset position of the last intent in a
// stale page. The zero value starts from the oldest intent.
type StaleCursor struct {
	CreatedAt time.Time
	ID        int64
}

func StaleCursorAfter(intent PaymentIntent) StaleCursor {
	return StaleCursor{CreatedAt: intent.CreatedAt.UTC(), ID: intent.ID}
}

func (c StaleCursor) IsZero() bool {
	return c.ID <= 0 && c.CreatedAt.IsZero()
}

// Precedes reports whether intent sorts strictly after the cursor.
func (c StaleCursor) Precedes(intent PaymentIntent) bool {
	if c.IsZero() {
		return true
	}
	if intent.CreatedAt.Equal(c.CreatedAt) {
		return intent.ID > c.ID
	}
	return intent.CreatedAt.After(c.CreatedAt)
}

type LedgerStoreFactory interface {
	BuildLedgerStore(persistenceClient any) (LedgerStore, error)
}

type UserProfileReader interface {
	GetUserProfile(ctx context.Context, externalID string) (UserProfile, error)
}

// IntentLookup resolves a correlation id into the intent it names. Providers
// use it to recover the correlation user identity during authentication.
type IntentLookup func(ctx context.Context, correlationID string) (PaymentIntent, error)

// Provider is one payment gateway variant.
type Provider interface {
	ID() string
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	ValidateCallback(ctx context.Context, req CallbackRequest, lookup IntentLookup) (CallbackFacts, error)
}

type Registry interface {
	Register(provider Provider) error
	Get(providerID string) (Provider, bool)
	List() []Provider
}

// Notifier receives resolution events. Implementations must honor ctx
// deadlines; failures are logged by the dispatcher and never propagated.
type Notifier interface {
	Notify(ctx context.Context, event ResolutionEvent) error
}

type NotifierFunc func(ctx context.Context, event ResolutionEvent) error

func (fn NotifierFunc) Notify(ctx context.Context, event ResolutionEvent) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

type SweepLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// SweepPolicy decides what a stale pending intent resolves to. Returning
// false leaves the intent untouched.
type SweepPolicy interface {
	Decide(ctx context.Context, intent PaymentIntent, now time.Time) (Outcome, bool)
}

type SweepPolicyFunc func(ctx context.Context, intent PaymentIntent, now time.Time) (Outcome, bool)

func (fn SweepPolicyFunc) Decide(ctx context.Context, intent PaymentIntent, now time.Time) (Outcome, bool) {
	if fn == nil {
		return Outcome{}, false
	}
	return fn(ctx, intent, now)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// PaymentService is the surface transports and workers depend on.
type PaymentService interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (PaymentIntent, error)
	Get(ctx context.Context, intentID int64) (PaymentIntent, error)
	AttachProviderOrderID(ctx context.Context, intentID int64, orderID string) (PaymentIntent, error)
	Resolve(ctx context.Context, req ResolveRequest) (ResolutionResult, error)
	Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
	HandleCallback(ctx context.Context, req CallbackRequest) CallbackResult
}
