package payments

import (
	"fmt"

	paymentscommand "github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
	paymentsquery "github.com/goliatone/go-payments/query"
)

type CommandQueryService interface {
	paymentscommand.MutatingService
	paymentsquery.IntentReader
}

// LedgerReader is the read side of the ledger exposed through queries.
type LedgerReader interface {
	paymentsquery.UserReader
	paymentsquery.StalePendingReader
}

type Commands struct {
	CreateIntent   *paymentscommand.CreateIntentCommand
	Checkout       *paymentscommand.CheckoutCommand
	ResolveIntent  *paymentscommand.ResolveIntentCommand
	HandleCallback *paymentscommand.HandleCallbackCommand
	RunSweep       *paymentscommand.RunSweepCommand
}

type Queries struct {
	GetIntent        *paymentsquery.GetIntentQuery
	GetUser          *paymentsquery.GetUserQuery
	ListStalePending *paymentsquery.ListStalePendingQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	ledger  LedgerReader
	sweeper paymentscommand.SweepRunner
}

func WithLedgerReader(reader LedgerReader) FacadeOption {
	return func(options *facadeOptions) {
		options.ledger = reader
	}
}

func WithSweepRunner(sweeper paymentscommand.SweepRunner) FacadeOption {
	return func(options *facadeOptions) {
		options.sweeper = sweeper
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("payments: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	ledger := cfg.ledger
	if ledger == nil {
		ledger = resolveLedgerReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateIntent:   paymentscommand.NewCreateIntentCommand(service),
		Checkout:       paymentscommand.NewCheckoutCommand(service),
		ResolveIntent:  paymentscommand.NewResolveIntentCommand(service),
		HandleCallback: paymentscommand.NewHandleCallbackCommand(service),
		RunSweep:       paymentscommand.NewRunSweepCommand(cfg.sweeper),
	}
	facade.queries = Queries{
		GetIntent:        paymentsquery.NewGetIntentQuery(service),
		GetUser:          paymentsquery.NewGetUserQuery(ledger),
		ListStalePending: paymentsquery.NewListStalePendingQuery(ledger),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveLedgerReader(service CommandQueryService) LedgerReader {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	store := provider.Dependencies().LedgerStore
	if store == nil {
		return nil
	}
	return store
}
