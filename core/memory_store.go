package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryLedgerStore keeps users and intents in process memory. A single mutex
// serialises every write, which gives ApplyResolution the same all-or-nothing
// semantics as the SQL store.
type MemoryLedgerStore struct {
	mu       sync.Mutex
	users    map[string]User
	intents  map[int64]PaymentIntent
	orderIDs map[string]int64
	nextID   int64
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		users:    map[string]User{},
		intents:  map[int64]PaymentIntent{},
		orderIDs: map[string]int64{},
	}
}

// SeedUser inserts or replaces a user. Users are provisioned outside the
// payment flow.
func (s *MemoryLedgerStore) SeedUser(user User) User {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.ExternalID = strings.TrimSpace(user.ExternalID)
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Profile.ExternalID == "" {
		user.Profile.ExternalID = user.ExternalID
	}
	s.users[user.ExternalID] = user
	return user
}

func (s *MemoryLedgerStore) GetUser(_ context.Context, externalID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[strings.TrimSpace(externalID)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *MemoryLedgerStore) GetUserProfile(ctx context.Context, externalID string) (UserProfile, error) {
	user, err := s.GetUser(ctx, externalID)
	if err != nil {
		return UserProfile{}, err
	}
	return user.Profile, nil
}

func (s *MemoryLedgerStore) CreateIntent(_ context.Context, in CreateIntentInput) (PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.UserRef]; !ok {
		return PaymentIntent{}, ErrUserNotFound
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	s.nextID++
	intent := PaymentIntent{
		ID:         s.nextID,
		UserRef:    in.UserRef,
		ProviderID: in.ProviderID,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Status:     IntentStatusPending,
		CreatedAt:  createdAt.UTC(),
	}
	s.intents[intent.ID] = intent
	return intent, nil
}

func (s *MemoryLedgerStore) GetIntent(_ context.Context, id int64) (PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return PaymentIntent{}, ErrIntentNotFound
	}
	return intent, nil
}

func (s *MemoryLedgerStore) AttachProviderOrderID(_ context.Context, id int64, orderID string) (PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]
	if !ok {
		return PaymentIntent{}, ErrIntentNotFound
	}
	if intent.ProviderOrderID != "" {
		return intent, nil
	}
	if owner, taken := s.orderIDs[orderID]; taken && owner != id {
		return PaymentIntent{}, fmt.Errorf("%w: %s", ErrOrderIDTaken, orderID)
	}
	intent.ProviderOrderID = orderID
	s.intents[id] = intent
	s.orderIDs[orderID] = id
	return intent, nil
}

func (s *MemoryLedgerStore) ApplyResolution(_ context.Context, res Resolution) (ResolutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[res.IntentID]
	if !ok {
		return ResolutionResult{}, ErrIntentNotFound
	}
	if intent.Status != IntentStatusPending {
		return ResolutionResult{Intent: intent}, nil
	}

	resolvedAt := res.ResolvedAt.UTC()
	var (
		user     User
		credited = decimal.Zero
	)
	if res.Outcome.Kind == OutcomePaid {
		user, ok = s.users[intent.UserRef]
		if !ok {
			return ResolutionResult{}, ErrUserNotFound
		}
		credited = intent.Amount
		user.Balance = user.Balance.Add(credited)
		user.UpdatedAt = resolvedAt
		s.users[user.ExternalID] = user
	}

	applyResolutionFields(&intent, res)
	s.intents[intent.ID] = intent
	return ResolutionResult{
		Intent:   intent,
		Applied:  true,
		Credited: credited,
		Balance:  user.Balance,
	}, nil
}

func (s *MemoryLedgerStore) ListStalePending(_ context.Context, createdBefore time.Time, after StaleCursor, limit int) ([]PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PaymentIntent, 0)
	for _, intent := range s.intents {
		if intent.Status == IntentStatusPending && intent.CreatedAt.Before(createdBefore) && after.Precedes(intent) {
			out = append(out, intent)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// applyResolutionFields copies the outcome onto a pending intent. PaidAt is
// only ever set for paid intents.
func applyResolutionFields(intent *PaymentIntent, res Resolution) {
	resolvedAt := res.ResolvedAt.UTC()
	intent.Status = res.Outcome.Status()
	intent.ResolutionSource = res.Source
	intent.ResolvedAt = &resolvedAt
	switch res.Outcome.Kind {
	case OutcomePaid:
		intent.ProviderTransactionID = res.Outcome.TransactionID
		intent.AuthorizationCode = res.Outcome.AuthorizationCode
		intent.StatusDetail = res.Outcome.StatusDetail
		paidAt := resolvedAt
		intent.PaidAt = &paidAt
	case OutcomeFailed:
		intent.FailureReason = res.Outcome.Reason
	}
}
