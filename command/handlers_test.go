package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
	"github.com/shopspring/decimal"
)

type stubMutatingService struct {
	createIntentFn   func(context.Context, core.CreateIntentRequest) (core.PaymentIntent, error)
	checkoutFn       func(context.Context, core.CheckoutRequest) (core.CheckoutResult, error)
	resolveFn        func(context.Context, core.ResolveRequest) (core.ResolutionResult, error)
	handleCallbackFn func(context.Context, core.CallbackRequest) core.CallbackResult
}

func (s stubMutatingService) CreateIntent(ctx context.Context, req core.CreateIntentRequest) (core.PaymentIntent, error) {
	if s.createIntentFn == nil {
		return core.PaymentIntent{}, nil
	}
	return s.createIntentFn(ctx, req)
}

func (s stubMutatingService) Checkout(ctx context.Context, req core.CheckoutRequest) (core.CheckoutResult, error) {
	if s.checkoutFn == nil {
		return core.CheckoutResult{}, nil
	}
	return s.checkoutFn(ctx, req)
}

func (s stubMutatingService) Resolve(ctx context.Context, req core.ResolveRequest) (core.ResolutionResult, error) {
	if s.resolveFn == nil {
		return core.ResolutionResult{}, nil
	}
	return s.resolveFn(ctx, req)
}

func (s stubMutatingService) HandleCallback(ctx context.Context, req core.CallbackRequest) core.CallbackResult {
	if s.handleCallbackFn == nil {
		return core.CallbackResult{}
	}
	return s.handleCallbackFn(ctx, req)
}

type stubSweepRunner struct {
	report core.SweepReport
	err    error
}

func (s stubSweepRunner) RunOnce(context.Context) (core.SweepReport, error) {
	return s.report, s.err
}

func TestCreateIntentCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	called := false
	svc := stubMutatingService{
		createIntentFn: func(_ context.Context, req core.CreateIntentRequest) (core.PaymentIntent, error) {
			called = true
			if req.UserRef != "usr_1" || !req.Amount.Equal(decimal.NewFromInt(25)) {
				t.Fatalf("unexpected create request: %#v", req)
			}
			return core.PaymentIntent{ID: 9, UserRef: req.UserRef, Amount: req.Amount, Status: core.IntentStatusPending}, nil
		},
	}

	collector := gocmd.NewResult[core.PaymentIntent]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewCreateIntentCommand(svc).Execute(ctx, CreateIntentMessage{Request: core.CreateIntentRequest{
		UserRef: "usr_1",
		Amount:  decimal.NewFromInt(25),
	}})
	if err != nil {
		t.Fatalf("execute create intent: %v", err)
	}
	if !called {
		t.Fatalf("expected create intent invocation")
	}
	intent, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if intent.ID != 9 || intent.Status != core.IntentStatusPending {
		t.Fatalf("unexpected intent: %#v", intent)
	}
}

func TestResolveIntentCommand_DefaultsToManualSource(t *testing.T) {
	svc := stubMutatingService{
		resolveFn: func(_ context.Context, req core.ResolveRequest) (core.ResolutionResult, error) {
			if req.Source != core.ResolutionSourceManual {
				t.Fatalf("expected manual source, got %q", req.Source)
			}
			return core.ResolutionResult{Applied: true}, nil
		},
	}
	collector := gocmd.NewResult[core.ResolutionResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewResolveIntentCommand(svc).Execute(ctx, ResolveIntentMessage{Request: core.ResolveRequest{
		IntentID: 3,
		Outcome:  core.FailedOutcome("operator"),
	}})
	if err != nil {
		t.Fatalf("execute resolve: %v", err)
	}
	result, ok := collector.Load()
	if !ok || !result.Applied {
		t.Fatalf("expected applied resolution to be stored, got %#v", result)
	}
}

func TestCheckoutCommand_PropagatesServiceError(t *testing.T) {
	expected := errors.New("gateway down")
	svc := stubMutatingService{
		checkoutFn: func(context.Context, core.CheckoutRequest) (core.CheckoutResult, error) {
			return core.CheckoutResult{}, expected
		},
	}
	err := NewCheckoutCommand(svc).Execute(context.Background(), CheckoutMessage{})
	if !errors.Is(err, expected) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestHandleCallbackCommand_StoresDisposition(t *testing.T) {
	svc := stubMutatingService{
		handleCallbackFn: func(_ context.Context, req core.CallbackRequest) core.CallbackResult {
			return core.CallbackResult{ProviderID: req.ProviderID, Disposition: core.CallbackDropped}
		},
	}
	collector := gocmd.NewResult[core.CallbackResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewHandleCallbackCommand(svc).Execute(ctx, HandleCallbackMessage{Request: core.CallbackRequest{ProviderID: "nuvei"}}); err != nil {
		t.Fatalf("execute callback: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.Disposition != core.CallbackDropped || result.ProviderID != "nuvei" {
		t.Fatalf("unexpected callback result: %#v", result)
	}
}

func TestRunSweepCommand_StoresReportAndReturnsError(t *testing.T) {
	expected := errors.New("store offline")
	collector := gocmd.NewResult[core.SweepReport]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewRunSweepCommand(stubSweepRunner{report: core.SweepReport{Scanned: 4, Failed: 4}, err: expected}).Execute(ctx, RunSweepMessage{})
	if !errors.Is(err, expected) {
		t.Fatalf("expected sweep error, got %v", err)
	}
	report, ok := collector.Load()
	if !ok || report.Scanned != 4 {
		t.Fatalf("expected partial report to be stored, got %#v", report)
	}
}

func TestMessages_ValidateReturnsRichError(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "create without user", err: CreateIntentMessage{Request: core.CreateIntentRequest{Amount: decimal.NewFromInt(1)}}.Validate()},
		{name: "create with zero amount", err: CreateIntentMessage{Request: core.CreateIntentRequest{UserRef: "usr_1"}}.Validate()},
		{name: "checkout without provider", err: CheckoutMessage{Request: core.CheckoutRequest{UserRef: "usr_1", Amount: decimal.NewFromInt(1)}}.Validate()},
		{name: "resolve without id", err: ResolveIntentMessage{Request: core.ResolveRequest{Outcome: core.FailedOutcome("x")}}.Validate()},
		{name: "resolve without outcome", err: ResolveIntentMessage{Request: core.ResolveRequest{IntentID: 1}}.Validate()},
		{name: "callback without provider", err: HandleCallbackMessage{}.Validate()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err == nil {
				t.Fatalf("expected validation error")
			}
			var rich *goerrors.Error
			if !goerrors.As(tc.err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", tc.err)
			}
			if rich.Category != goerrors.CategoryValidation {
				t.Fatalf("expected validation category, got %q", rich.Category)
			}
			if rich.TextCode != core.ErrorInvalidRequest {
				t.Fatalf("expected %q text code, got %q", core.ErrorInvalidRequest, rich.TextCode)
			}
		})
	}
}

func TestCreateIntentCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *CreateIntentCommand
	err := cmd.Execute(context.Background(), CreateIntentMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
