package command

import (
	"strings"

	"github.com/goliatone/go-payments/core"
)

const (
	TypeCreateIntent   = "payments.command.intent.create"
	TypeCheckout       = "payments.command.intent.checkout"
	TypeResolveIntent  = "payments.command.intent.resolve"
	TypeHandleCallback = "payments.command.callback.handle"
	TypeRunSweep       = "payments.command.sweep.run"
)

type CreateIntentMessage struct {
	Request core.CreateIntentRequest
}

func (CreateIntentMessage) Type() string { return TypeCreateIntent }

func (m CreateIntentMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserRef) == "" {
		return commandValidationError("user_ref", "user reference is required")
	}
	if !m.Request.Amount.IsPositive() {
		return commandValidationError("amount", "amount must be positive")
	}
	return nil
}

type CheckoutMessage struct {
	Request core.CheckoutRequest
}

func (CheckoutMessage) Type() string { return TypeCheckout }

func (m CheckoutMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserRef) == "" {
		return commandValidationError("user_ref", "user reference is required")
	}
	if !m.Request.Amount.IsPositive() {
		return commandValidationError("amount", "amount must be positive")
	}
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	return nil
}

type ResolveIntentMessage struct {
	Request core.ResolveRequest
}

func (ResolveIntentMessage) Type() string { return TypeResolveIntent }

func (m ResolveIntentMessage) Validate() error {
	if m.Request.IntentID <= 0 {
		return commandValidationError("intent_id", "intent id must be positive")
	}
	switch m.Request.Outcome.Kind {
	case core.OutcomePaid, core.OutcomeFailed:
		return nil
	default:
		return commandValidationError("outcome", "outcome must be paid or failed")
	}
}

type HandleCallbackMessage struct {
	Request core.CallbackRequest
}

func (HandleCallbackMessage) Type() string { return TypeHandleCallback }

func (m HandleCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	return nil
}

type RunSweepMessage struct{}

func (RunSweepMessage) Type() string { return TypeRunSweep }

func (RunSweepMessage) Validate() error { return nil }
