package query

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
)

type IntentReader interface {
	Get(ctx context.Context, intentID int64) (core.PaymentIntent, error)
}

type UserReader interface {
	GetUser(ctx context.Context, externalID string) (core.User, error)
}

type StalePendingReader interface {
	ListStalePending(ctx context.Context, createdBefore time.Time, after core.StaleCursor, limit int) ([]core.PaymentIntent, error)
}

type GetIntentQuery struct {
	reader IntentReader
}

func NewGetIntentQuery(reader IntentReader) *GetIntentQuery {
	return &GetIntentQuery{reader: reader}
}

func (q *GetIntentQuery) Query(ctx context.Context, msg GetIntentMessage) (core.PaymentIntent, error) {
	if q == nil || q.reader == nil {
		return core.PaymentIntent{}, queryDependencyError("query: intent reader is required")
	}
	return q.reader.Get(ctx, msg.IntentID)
}

type GetUserQuery struct {
	reader UserReader
}

func NewGetUserQuery(reader UserReader) *GetUserQuery {
	return &GetUserQuery{reader: reader}
}

func (q *GetUserQuery) Query(ctx context.Context, msg GetUserMessage) (core.User, error) {
	if q == nil || q.reader == nil {
		return core.User{}, queryDependencyError("query: user reader is required")
	}
	return q.reader.GetUser(ctx, strings.TrimSpace(msg.UserRef))
}

// ListStalePendingQuery exposes the sweeper's view of unresolved intents.
type ListStalePendingQuery struct {
	reader StalePendingReader
}

func NewListStalePendingQuery(reader StalePendingReader) *ListStalePendingQuery {
	return &ListStalePendingQuery{reader: reader}
}

func (q *ListStalePendingQuery) Query(ctx context.Context, msg ListStalePendingMessage) ([]core.PaymentIntent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: stale pending reader is required")
	}
	after := core.StaleCursor{CreatedAt: msg.AfterCreatedAt.UTC(), ID: msg.AfterID}
	if msg.AfterID <= 0 {
		after = core.StaleCursor{}
	}
	return q.reader.ListStalePending(ctx, msg.CreatedBefore.UTC(), after, msg.Limit)
}
