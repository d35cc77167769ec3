package query

import (
	"strings"
	"time"
)

const (
	TypeGetIntent        = "payments.query.intent.get"
	TypeGetUser          = "payments.query.user.get"
	TypeListStalePending = "payments.query.intent.list_stale_pending"

	maxStalePendingLimit = 1000
)

type GetIntentMessage struct {
	IntentID int64
}

func (GetIntentMessage) Type() string { return TypeGetIntent }

func (m GetIntentMessage) Validate() error {
	if m.IntentID <= 0 {
		return queryValidationError("intent_id", "intent id must be positive")
	}
	return nil
}

type GetUserMessage struct {
	UserRef string
}

func (GetUserMessage) Type() string { return TypeGetUser }

func (m GetUserMessage) Validate() error {
	if strings.TrimSpace(m.UserRef) == "" {
		return queryValidationError("user_ref", "user reference is required")
	}
	return nil
}

// ListStalePendingMessage reads one page of stale intents. AfterCreatedAt and
// AfterID continue from the last intent of the previous page.
type ListStalePendingMessage struct {
	CreatedBefore  time.Time
	AfterCreatedAt time.Time
	AfterID        int64
	Limit          int
}

func (ListStalePendingMessage) Type() string { return TypeListStalePending }

func (m ListStalePendingMessage) Validate() error {
	if m.CreatedBefore.IsZero() {
		return queryValidationError("created_before", "cutoff is required")
	}
	if m.AfterID < 0 {
		return queryValidationError("after_id", "cursor id must not be negative")
	}
	if m.AfterID > 0 && m.AfterCreatedAt.IsZero() {
		return queryValidationError("after_created_at", "cursor time is required with a cursor id")
	}
	if m.Limit <= 0 || m.Limit > maxStalePendingLimit {
		return queryValidationError("limit", "limit must be between 1 and 1000")
	}
	return nil
}
