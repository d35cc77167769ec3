package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type userRecord struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID         string          `bun:"id,pk"`
	ExternalID string          `bun:"external_id,notnull"`
	Balance    decimal.Decimal `bun:"balance,notnull"`
	FirstName  string          `bun:"first_name,notnull"`
	LastName   string          `bun:"last_name,notnull"`
	Email      string          `bun:"email,notnull"`
	Phone      string          `bun:"phone,notnull"`
	Country    string          `bun:"country,notnull"`
	DocumentID string          `bun:"document_id,notnull"`
	CreatedAt  time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type paymentIntentRecord struct {
	bun.BaseModel `bun:"table:payment_intents,alias:pi"`

	ID                    int64           `bun:"id,pk,autoincrement"`
	UserRef               string          `bun:"user_ref,notnull"`
	ProviderID            string          `bun:"provider_id,notnull"`
	ProviderOrderID       *string         `bun:"provider_order_id"`
	Amount                decimal.Decimal `bun:"amount,notnull"`
	Currency              string          `bun:"currency,notnull"`
	Status                string          `bun:"status,notnull"`
	ProviderTransactionID string          `bun:"provider_transaction_id,notnull"`
	AuthorizationCode     string          `bun:"authorization_code,notnull"`
	StatusDetail          string          `bun:"status_detail,notnull"`
	FailureReason         string          `bun:"failure_reason,notnull"`
	ResolutionSource      string          `bun:"resolution_source,notnull"`
	CreatedAt             time.Time       `bun:"created_at,notnull"`
	PaidAt                *time.Time      `bun:"paid_at"`
	ResolvedAt            *time.Time      `bun:"resolved_at"`
}

func newUserRecord(user core.User, now time.Time) *userRecord {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &userRecord{
		ID:         strings.TrimSpace(user.ID),
		ExternalID: strings.TrimSpace(user.ExternalID),
		Balance:    user.Balance,
		FirstName:  strings.TrimSpace(user.Profile.FirstName),
		LastName:   strings.TrimSpace(user.Profile.LastName),
		Email:      strings.TrimSpace(user.Profile.Email),
		Phone:      strings.TrimSpace(user.Profile.Phone),
		Country:    strings.TrimSpace(user.Profile.Country),
		DocumentID: strings.TrimSpace(user.Profile.DocumentID),
		CreatedAt:  createdAt.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

func (r *userRecord) toDomain() core.User {
	if r == nil {
		return core.User{}
	}
	return core.User{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Balance:    r.Balance,
		Profile:    r.profile(),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (r *userRecord) profile() core.UserProfile {
	return core.UserProfile{
		ExternalID: r.ExternalID,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		Phone:      r.Phone,
		Country:    r.Country,
		DocumentID: r.DocumentID,
	}
}

func newPaymentIntentRecord(in core.CreateIntentInput) *paymentIntentRecord {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &paymentIntentRecord{
		UserRef:    strings.TrimSpace(in.UserRef),
		ProviderID: strings.TrimSpace(in.ProviderID),
		Amount:     in.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(in.Currency)),
		Status:     string(core.IntentStatusPending),
		CreatedAt:  createdAt.UTC(),
	}
}

func (r *paymentIntentRecord) toDomain() core.PaymentIntent {
	if r == nil {
		return core.PaymentIntent{}
	}
	intent := core.PaymentIntent{
		ID:                    r.ID,
		UserRef:               r.UserRef,
		ProviderID:            r.ProviderID,
		Amount:                r.Amount,
		Currency:              r.Currency,
		Status:                core.IntentStatus(r.Status),
		ProviderTransactionID: r.ProviderTransactionID,
		AuthorizationCode:     r.AuthorizationCode,
		StatusDetail:          r.StatusDetail,
		FailureReason:         r.FailureReason,
		ResolutionSource:      core.ResolutionSource(r.ResolutionSource),
		CreatedAt:             r.CreatedAt.UTC(),
		PaidAt:                utcPointer(r.PaidAt),
		ResolvedAt:            utcPointer(r.ResolvedAt),
	}
	if r.ProviderOrderID != nil {
		intent.ProviderOrderID = *r.ProviderOrderID
	}
	return intent
}

func utcPointer(input *time.Time) *time.Time {
	if input == nil || input.IsZero() {
		return nil
	}
	value := input.UTC()
	return &value
}
