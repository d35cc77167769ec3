package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

type MutatingService interface {
	CreateIntent(ctx context.Context, req core.CreateIntentRequest) (core.PaymentIntent, error)
	Checkout(ctx context.Context, req core.CheckoutRequest) (core.CheckoutResult, error)
	Resolve(ctx context.Context, req core.ResolveRequest) (core.ResolutionResult, error)
	HandleCallback(ctx context.Context, req core.CallbackRequest) core.CallbackResult
}

type SweepRunner interface {
	RunOnce(ctx context.Context) (core.SweepReport, error)
}

type CreateIntentCommand struct {
	service MutatingService
}

func NewCreateIntentCommand(service MutatingService) *CreateIntentCommand {
	return &CreateIntentCommand{service: service}
}

func (c *CreateIntentCommand) Execute(ctx context.Context, msg CreateIntentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: intent service is required")
	}
	out, err := c.service.CreateIntent(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CheckoutCommand struct {
	service MutatingService
}

func NewCheckoutCommand(service MutatingService) *CheckoutCommand {
	return &CheckoutCommand{service: service}
}

func (c *CheckoutCommand) Execute(ctx context.Context, msg CheckoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: checkout service is required")
	}
	out, err := c.service.Checkout(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResolveIntentCommand struct {
	service MutatingService
}

func NewResolveIntentCommand(service MutatingService) *ResolveIntentCommand {
	return &ResolveIntentCommand{service: service}
}

func (c *ResolveIntentCommand) Execute(ctx context.Context, msg ResolveIntentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: resolve service is required")
	}
	req := msg.Request
	if req.Source == "" {
		req.Source = core.ResolutionSourceManual
	}
	out, err := c.service.Resolve(ctx, req)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// HandleCallbackCommand never fails on gateway input; the disposition is
// stored as the result.
type HandleCallbackCommand struct {
	service MutatingService
}

func NewHandleCallbackCommand(service MutatingService) *HandleCallbackCommand {
	return &HandleCallbackCommand{service: service}
}

func (c *HandleCallbackCommand) Execute(ctx context.Context, msg HandleCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	storeResult(ctx, c.service.HandleCallback(ctx, msg.Request))
	return nil
}

type RunSweepCommand struct {
	sweeper SweepRunner
}

func NewRunSweepCommand(sweeper SweepRunner) *RunSweepCommand {
	return &RunSweepCommand{sweeper: sweeper}
}

func (c *RunSweepCommand) Execute(ctx context.Context, _ RunSweepMessage) error {
	if c == nil || c.sweeper == nil {
		return commandDependencyError("command: sweeper is required")
	}
	report, err := c.sweeper.RunOnce(ctx)
	storeResult(ctx, report)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
