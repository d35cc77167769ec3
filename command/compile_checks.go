package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

var (
	_ gocmd.Commander[CreateIntentMessage]   = (*CreateIntentCommand)(nil)
	_ gocmd.Commander[CheckoutMessage]       = (*CheckoutCommand)(nil)
	_ gocmd.Commander[ResolveIntentMessage]  = (*ResolveIntentCommand)(nil)
	_ gocmd.Commander[HandleCallbackMessage] = (*HandleCallbackCommand)(nil)
	_ gocmd.Commander[RunSweepMessage]       = (*RunSweepCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
	_ SweepRunner     = (*core.Sweeper)(nil)
)
