package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

var (
	_ gocmd.Querier[GetIntentMessage, core.PaymentIntent]          = (*GetIntentQuery)(nil)
	_ gocmd.Querier[GetUserMessage, core.User]                     = (*GetUserQuery)(nil)
	_ gocmd.Querier[ListStalePendingMessage, []core.PaymentIntent] = (*ListStalePendingQuery)(nil)

	_ IntentReader       = (*core.Service)(nil)
	_ UserReader         = (core.LedgerStore)(nil)
	_ StalePendingReader = (core.LedgerStore)(nil)
)
