package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type IntentStatus string

const (
	IntentStatusPending IntentStatus = "pending"
	IntentStatusPaid    IntentStatus = "paid"
	IntentStatusFailed  IntentStatus = "failed"
)

func (s IntentStatus) Valid() bool {
	switch s {
	case IntentStatusPending, IntentStatusPaid, IntentStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is permitted.
func (s IntentStatus) Terminal() bool {
	return s == IntentStatusPaid || s == IntentStatusFailed
}

type ResolutionSource string

const (
	ResolutionSourceCallback ResolutionSource = "callback"
	ResolutionSourceSweeper  ResolutionSource = "sweeper"
	ResolutionSourceCheckout ResolutionSource = "checkout"
	ResolutionSourceManual   ResolutionSource = "manual"
)

type UserProfile struct {
	ExternalID string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Country    string
	DocumentID string
}

type User struct {
	ID         string
	ExternalID string
	Balance    decimal.Decimal
	Profile    UserProfile
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type PaymentIntent struct {
	ID                    int64
	UserRef               string
	ProviderID            string
	ProviderOrderID       string
	Amount                decimal.Decimal
	Currency              string
	Status                IntentStatus
	ProviderTransactionID string
	AuthorizationCode     string
	StatusDetail          string
	FailureReason         string
	ResolutionSource      ResolutionSource
	CreatedAt             time.Time
	PaidAt                *time.Time
	ResolvedAt            *time.Time
}

// CorrelationID is the token handed to the gateway so its callback can be
// matched back to the intent.
func (i PaymentIntent) CorrelationID() string {
	return FormatIntentID(i.ID)
}

func FormatIntentID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func ParseIntentID(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("core: intent id is required")
	}
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("core: invalid intent id %q", trimmed)
	}
	return id, nil
}

type OutcomeKind string

const (
	OutcomePaid   OutcomeKind = "paid"
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the terminal result requested for a pending intent. Paid carries
// the provider transaction facts, Failed carries a reason.
type Outcome struct {
	Kind              OutcomeKind
	TransactionID     string
	AuthorizationCode string
	StatusDetail      string
	Reason            string
}

func PaidOutcome(transactionID string, authorizationCode string, statusDetail string) Outcome {
	return Outcome{
		Kind:              OutcomePaid,
		TransactionID:     strings.TrimSpace(transactionID),
		AuthorizationCode: strings.TrimSpace(authorizationCode),
		StatusDetail:      strings.TrimSpace(statusDetail),
	}
}

func FailedOutcome(reason string) Outcome {
	return Outcome{
		Kind:   OutcomeFailed,
		Reason: strings.TrimSpace(reason),
	}
}

func (o Outcome) Status() IntentStatus {
	switch o.Kind {
	case OutcomePaid:
		return IntentStatusPaid
	case OutcomeFailed:
		return IntentStatusFailed
	default:
		return ""
	}
}

func (o Outcome) Validate() error {
	switch o.Kind {
	case OutcomePaid, OutcomeFailed:
		return nil
	case "":
		return fmt.Errorf("core: outcome kind is required")
	default:
		return fmt.Errorf("core: unsupported outcome kind %q", o.Kind)
	}
}

type Resolution struct {
	IntentID   int64
	Outcome    Outcome
	Source     ResolutionSource
	ResolvedAt time.Time
}

// ResolutionResult reports what a resolve attempt observed. Applied is true
// only for the single attempt that moved the intent out of pending.
type ResolutionResult struct {
	Intent   PaymentIntent
	Applied  bool
	Replayed bool
	Credited decimal.Decimal
	Balance  decimal.Decimal
}

type CreateIntentRequest struct {
	UserRef    string
	Amount     decimal.Decimal
	ProviderID string
}

type CreateIntentInput struct {
	UserRef    string
	ProviderID string
	Amount     decimal.Decimal
	Currency   string
	CreatedAt  time.Time
}

type ResolveRequest struct {
	IntentID int64
	Outcome  Outcome
	Source   ResolutionSource
}

type RedirectURLs struct {
	Success string
	Failure string
	Pending string
	Review  string
}

type CheckoutRequest struct {
	UserRef      string
	Amount       decimal.Decimal
	ProviderID   string
	Description  string
	RedirectURLs RedirectURLs
}

type CheckoutResult struct {
	Intent          PaymentIntent
	ProviderOrderID string
	PaymentURL      string
}

type OrderRequest struct {
	Intent       PaymentIntent
	Profile      UserProfile
	Description  string
	RedirectURLs RedirectURLs
}

type Order struct {
	ProviderOrderID string
	PaymentURL      string
	Metadata        map[string]any
}

type CallbackRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	ReceivedAt time.Time
}

func (r CallbackRequest) Header(name string) string {
	for key, value := range r.Headers {
		if strings.EqualFold(strings.TrimSpace(key), strings.TrimSpace(name)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

type CallbackStatus string

const (
	CallbackStatusSuccess   CallbackStatus = "success"
	CallbackStatusPending   CallbackStatus = "pending"
	CallbackStatusFailure   CallbackStatus = "failure"
	CallbackStatusCancelled CallbackStatus = "cancelled"
	CallbackStatusUnknown   CallbackStatus = "unknown"
)

type CallbackStatusDetail string

const (
	CallbackDetailApproved CallbackStatusDetail = "approved"
	CallbackDetailUnknown  CallbackStatusDetail = "unknown"
)

// CallbackFacts is the canonical, authenticated view of a provider callback.
// Raw codes are kept for failure reasons and audit.
type CallbackFacts struct {
	CorrelationID     string
	TransactionID     string
	Status            CallbackStatus
	StatusDetail      CallbackStatusDetail
	RawStatus         string
	RawStatusDetail   string
	AuthorizationCode string
	ProviderOrderID   string
	UserRef           string
	ReportedAmount    string
}

// Approved is true only for the success/approved combination.
func (f CallbackFacts) Approved() bool {
	return f.Status == CallbackStatusSuccess && f.StatusDetail == CallbackDetailApproved
}

// Outcome maps the callback facts onto a resolution outcome. Every
// combination other than success/approved is a failure carrying the raw codes.
func (f CallbackFacts) Outcome() Outcome {
	if f.Approved() {
		return PaidOutcome(f.TransactionID, f.AuthorizationCode, f.RawStatusDetail)
	}
	return FailedOutcome(fmt.Sprintf(
		"status=%s status_detail=%s",
		emptyAs(f.RawStatus, "<none>"),
		emptyAs(f.RawStatusDetail, "<none>"),
	))
}

type CallbackDisposition string

const (
	CallbackResolved        CallbackDisposition = "resolved"
	CallbackReplayed        CallbackDisposition = "replayed"
	CallbackIgnored         CallbackDisposition = "ignored"
	CallbackDropped         CallbackDisposition = "dropped"
	CallbackRejected        CallbackDisposition = "rejected"
	CallbackUnknownIntent   CallbackDisposition = "unknown_intent"
	CallbackUnknownProvider CallbackDisposition = "unknown_provider"
	CallbackInvalidPayload  CallbackDisposition = "invalid_payload"
	CallbackConflict        CallbackDisposition = "conflict"
	CallbackFailed          CallbackDisposition = "failed"
)

type CallbackAck struct {
	Status string `json:"status"`
}

// AckOK is the only response a gateway ever receives for a callback.
func AckOK() CallbackAck {
	return CallbackAck{Status: "OK"}
}

type CallbackResult struct {
	Ack         CallbackAck
	Disposition CallbackDisposition
	ProviderID  string
	IntentID    int64
	Outcome     *Outcome
	Err         error
}

// ResolutionEvent is emitted after a transition commits.
type ResolutionEvent struct {
	EventID         string
	IntentID        int64
	UserRef         string
	Outcome         IntentStatus
	Amount          decimal.Decimal
	Currency        string
	Balance         decimal.Decimal
	ProviderID      string
	ProviderOrderID string
	TransactionID   string
	Reason          string
	Source          ResolutionSource
	OccurredAt      time.Time
}

func emptyAs(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
