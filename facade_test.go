package payments

import (
	"context"
	"testing"
	"time"

	paymentscommand "github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
	paymentsquery "github.com/goliatone/go-payments/query"
	"github.com/shopspring/decimal"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc, _ := newFacadeTestService(t)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.CreateIntent == nil || commands.ResolveIntent == nil || commands.HandleCallback == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetIntent == nil || queries.GetUser == nil || queries.ListStalePending == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc, _ := newFacadeTestService(t)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	ctx := context.Background()

	intent, err := svc.CreateIntent(ctx, core.CreateIntentRequest{UserRef: "usr_1", Amount: decimal.NewFromInt(40)})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if err := facade.Commands().ResolveIntent.Execute(ctx, paymentscommand.ResolveIntentMessage{Request: core.ResolveRequest{
		IntentID: intent.ID,
		Outcome:  core.PaidOutcome("tx_1", "auth_1", "3"),
	}}); err != nil {
		t.Fatalf("execute resolve command: %v", err)
	}

	got, err := facade.Queries().GetIntent.Query(ctx, paymentsquery.GetIntentMessage{IntentID: intent.ID})
	if err != nil {
		t.Fatalf("query intent: %v", err)
	}
	if got.Status != core.IntentStatusPaid || got.ResolutionSource != core.ResolutionSourceManual {
		t.Fatalf("unexpected intent after resolve: %#v", got)
	}

	user, err := facade.Queries().GetUser.Query(ctx, paymentsquery.GetUserMessage{UserRef: "usr_1"})
	if err != nil {
		t.Fatalf("query user: %v", err)
	}
	if !user.Balance.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected credited balance 40, got %s", user.Balance)
	}

	pending, err := facade.Queries().ListStalePending.Query(ctx, paymentsquery.ListStalePendingMessage{
		CreatedBefore: time.Now().Add(time.Hour),
		Limit:         10,
	})
	if err != nil {
		t.Fatalf("query stale pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending intents after resolve, got %d", len(pending))
	}
}

func TestFacade_RunSweepRequiresSweeper(t *testing.T) {
	svc, _ := newFacadeTestService(t)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if err := facade.Commands().RunSweep.Execute(context.Background(), paymentscommand.RunSweepMessage{}); err == nil {
		t.Fatalf("expected sweep without sweeper to fail")
	}

	sweeper, err := core.NewSweeper(svc)
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	facade, err = NewFacade(svc, WithSweepRunner(sweeper))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if err := facade.Commands().RunSweep.Execute(context.Background(), paymentscommand.RunSweepMessage{}); err != nil {
		t.Fatalf("run sweep: %v", err)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected nil service to fail")
	}
}

func newFacadeTestService(t *testing.T) (*core.Service, *core.MemoryLedgerStore) {
	t.Helper()
	store := core.NewMemoryLedgerStore()
	store.SeedUser(core.User{ExternalID: "usr_1"})
	svc, err := NewService(DefaultConfig(), WithLedgerStore(store))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}
