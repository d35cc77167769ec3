package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// LedgerStore is the bun backed ledger. Every transition is a conditional
// update on the stored status, and a paid transition credits the owner in the
// same transaction.
type LedgerStore struct {
	db    *bun.DB
	users repository.Repository[*userRecord]
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	users := repository.NewRepository[*userRecord](db, userHandlers())
	if validator, ok := users.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid user repository wiring: %w", err)
		}
	}
	return &LedgerStore{db: db, users: users}, nil
}

// CreateUser provisions a user with its starting balance and profile.
func (s *LedgerStore) CreateUser(ctx context.Context, user core.User) (core.User, error) {
	if s == nil || s.users == nil {
		return core.User{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	if strings.TrimSpace(user.ExternalID) == "" {
		return core.User{}, fmt.Errorf("sqlstore: user external id is required")
	}
	if user.Balance.IsNegative() {
		return core.User{}, fmt.Errorf("sqlstore: user balance must not be negative")
	}
	record := newUserRecord(user, time.Now().UTC())
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	created, err := s.users.Create(ctx, record)
	if err != nil {
		return core.User{}, err
	}
	return created.toDomain(), nil
}

func (s *LedgerStore) GetUser(ctx context.Context, externalID string) (core.User, error) {
	record, err := s.findUser(ctx, externalID)
	if err != nil {
		return core.User{}, err
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) GetUserProfile(ctx context.Context, externalID string) (core.UserProfile, error) {
	record, err := s.findUser(ctx, externalID)
	if err != nil {
		return core.UserProfile{}, err
	}
	return record.profile(), nil
}

// UpdateUserProfile replaces the profile fields of an existing user. The
// balance is never touched here.
func (s *LedgerStore) UpdateUserProfile(ctx context.Context, externalID string, profile core.UserProfile) error {
	record, err := s.findUser(ctx, externalID)
	if err != nil {
		return err
	}
	record.FirstName = strings.TrimSpace(profile.FirstName)
	record.LastName = strings.TrimSpace(profile.LastName)
	record.Email = strings.TrimSpace(profile.Email)
	record.Phone = strings.TrimSpace(profile.Phone)
	record.Country = strings.TrimSpace(profile.Country)
	record.DocumentID = strings.TrimSpace(profile.DocumentID)
	record.UpdatedAt = time.Now().UTC()

	_, err = s.db.NewUpdate().
		Model(record).
		Column("first_name", "last_name", "email", "phone", "country", "document_id", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

func (s *LedgerStore) findUser(ctx context.Context, externalID string) (*userRecord, error) {
	if s == nil || s.users == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, core.ErrUserNotFound
	}
	records, _, err := s.users.List(ctx,
		repository.SelectBy("external_id", "=", externalID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrUserNotFound
	}
	return records[0], nil
}

func (s *LedgerStore) CreateIntent(ctx context.Context, in core.CreateIntentInput) (core.PaymentIntent, error) {
	if s == nil || s.db == nil {
		return core.PaymentIntent{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	if in.Amount.Sign() <= 0 {
		return core.PaymentIntent{}, fmt.Errorf("sqlstore: intent amount must be positive")
	}
	if _, err := s.findUser(ctx, in.UserRef); err != nil {
		return core.PaymentIntent{}, err
	}
	record := newPaymentIntentRecord(in)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.PaymentIntent{}, err
	}
	if record.ID <= 0 {
		return core.PaymentIntent{}, fmt.Errorf("sqlstore: insert did not return an intent id")
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) GetIntent(ctx context.Context, id int64) (core.PaymentIntent, error) {
	if s == nil || s.db == nil {
		return core.PaymentIntent{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	record, err := findIntent(ctx, s.db, id)
	if err != nil {
		return core.PaymentIntent{}, err
	}
	return record.toDomain(), nil
}

// AttachProviderOrderID only writes when no order id is stored yet and
// returns the intent as stored afterwards. Callers compare the returned
// order id to detect a conflicting attach.
func (s *LedgerStore) AttachProviderOrderID(ctx context.Context, id int64, orderID string) (core.PaymentIntent, error) {
	if s == nil || s.db == nil {
		return core.PaymentIntent{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return core.PaymentIntent{}, fmt.Errorf("sqlstore: provider order id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*paymentIntentRecord)(nil)).
		Set("provider_order_id = ?", orderID).
		Where("id = ?", id).
		Where("(provider_order_id IS NULL OR provider_order_id = '')").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return core.PaymentIntent{}, fmt.Errorf("%w: %s", core.ErrOrderIDTaken, orderID)
		}
		return core.PaymentIntent{}, err
	}
	return s.GetIntent(ctx, id)
}

func (s *LedgerStore) ApplyResolution(ctx context.Context, res core.Resolution) (core.ResolutionResult, error) {
	if s == nil || s.db == nil {
		return core.ResolutionResult{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	status := res.Outcome.Status()
	if status == "" {
		return core.ResolutionResult{}, fmt.Errorf("sqlstore: unsupported outcome %q", res.Outcome.Kind)
	}
	resolvedAt := res.ResolvedAt.UTC()
	if res.ResolvedAt.IsZero() {
		resolvedAt = time.Now().UTC()
	}

	var result core.ResolutionResult
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		update := tx.NewUpdate().
			Model((*paymentIntentRecord)(nil)).
			Set("status = ?", string(status)).
			Set("resolution_source = ?", string(res.Source)).
			Set("resolved_at = ?", resolvedAt)
		switch res.Outcome.Kind {
		case core.OutcomePaid:
			update = update.
				Set("provider_transaction_id = ?", res.Outcome.TransactionID).
				Set("authorization_code = ?", res.Outcome.AuthorizationCode).
				Set("status_detail = ?", res.Outcome.StatusDetail).
				Set("paid_at = ?", resolvedAt)
		default:
			update = update.Set("failure_reason = ?", res.Outcome.Reason)
		}
		outcome, err := update.
			Where("id = ?", res.IntentID).
			Where("status = ?", string(core.IntentStatusPending)).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := outcome.RowsAffected()
		if err != nil {
			return err
		}

		intent, err := findIntent(ctx, tx, res.IntentID)
		if err != nil {
			return err
		}
		if affected == 0 {
			result = core.ResolutionResult{Intent: intent.toDomain()}
			return nil
		}

		result = core.ResolutionResult{Intent: intent.toDomain(), Applied: true, Credited: decimal.Zero}
		if res.Outcome.Kind != core.OutcomePaid {
			return nil
		}
		balance, err := creditUser(ctx, tx, intent.UserRef, intent.Amount, resolvedAt)
		if err != nil {
			return err
		}
		result.Credited = intent.Amount
		result.Balance = balance
		return nil
	})
	if err != nil {
		return core.ResolutionResult{}, err
	}
	return result, nil
}

func (s *LedgerStore) ListStalePending(ctx context.Context, createdBefore time.Time, after core.StaleCursor, limit int) ([]core.PaymentIntent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	records := []*paymentIntentRecord{}
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.IntentStatusPending)).
		Where("?TableAlias.created_at < ?", createdBefore.UTC()).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC")
	if !after.IsZero() {
		cursorAt := after.CreatedAt.UTC()
		query = query.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.created_at > ?", cursorAt).
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.
						Where("?TableAlias.created_at = ?", cursorAt).
						Where("?TableAlias.id > ?", after.ID)
				})
		})
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.PaymentIntent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findIntent(ctx context.Context, db bun.IDB, id int64) (*paymentIntentRecord, error) {
	if id <= 0 {
		return nil, core.ErrIntentNotFound
	}
	record := &paymentIntentRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrIntentNotFound
		}
		return nil, err
	}
	return record, nil
}

// creditUser adds amount to the owner's balance inside tx. Postgres locks the
// row; SQLite already serialises writers behind the intent update.
func creditUser(ctx context.Context, tx bun.Tx, externalID string, amount decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	record := &userRecord{}
	query := tx.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", externalID).
		Limit(1)
	if tx.Dialect().Name() == dialect.PG {
		query = query.For("UPDATE")
	}
	if err := query.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, core.ErrUserNotFound
		}
		return decimal.Zero, err
	}

	record.Balance = record.Balance.Add(amount)
	record.UpdatedAt = at.UTC()
	if _, err := tx.NewUpdate().
		Model(record).
		Column("balance", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return decimal.Zero, err
	}
	return record.Balance, nil
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	// Other drivers only expose the message.
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
