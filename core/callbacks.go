package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// HandleCallback authenticates and applies a gateway callback. The ack is
// always OK: gateways retry on anything else, and a retry can never change
// the outcome of a callback that was already judged. The disposition records
// what actually happened.
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) (result CallbackResult) {
	startedAt := time.Now().UTC()
	providerID := normalizeProviderID(req.ProviderID)
	result = CallbackResult{Ack: AckOK(), ProviderID: providerID}
	fields := map[string]any{
		"provider_id": providerID,
		"body_bytes":  len(req.Body),
	}
	defer func() {
		fields["disposition"] = string(result.Disposition)
		if result.IntentID > 0 {
			fields["intent_id"] = result.IntentID
		}
		if result.Outcome != nil {
			fields["outcome"] = string(result.Outcome.Kind)
		}
		s.observeOperation(ctx, startedAt, "callback", result.Err, fields)
	}()

	if s == nil || s.store == nil {
		result.Disposition = CallbackFailed
		result.Err = fmt.Errorf("core: ledger store is not configured")
		return result
	}
	provider, err := s.resolveProvider(providerID)
	if err != nil {
		result.Disposition = CallbackUnknownProvider
		result.Err = s.mapError(err)
		return result
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = s.now()
	}
	req.ProviderID = providerID

	facts, err := provider.ValidateCallback(ctx, req, s.lookupByCorrelation)
	if err != nil {
		result.Disposition = classifyValidationError(err)
		switch result.Disposition {
		case CallbackIgnored, CallbackDropped:
			fields["reason"] = err.Error()
		default:
			result.Err = s.mapError(err)
		}
		return result
	}

	intentID, err := ParseIntentID(facts.CorrelationID)
	if err != nil {
		result.Disposition = CallbackUnknownIntent
		result.Err = s.mapError(NewIntentNotFoundError(0))
		return result
	}
	result.IntentID = intentID
	outcome := facts.Outcome()
	result.Outcome = &outcome
	fields["transaction_id"] = facts.TransactionID
	fields["raw_status"] = facts.RawStatus
	fields["raw_status_detail"] = facts.RawStatusDetail

	if facts.ProviderOrderID != "" {
		s.attachCallbackOrderID(ctx, intentID, facts.ProviderOrderID)
	}

	resolved, err := s.Resolve(ctx, ResolveRequest{
		IntentID: intentID,
		Outcome:  outcome,
		Source:   ResolutionSourceCallback,
	})
	switch {
	case err == nil && resolved.Replayed:
		result.Disposition = CallbackReplayed
	case err == nil:
		result.Disposition = CallbackResolved
	case IsErrorKind(err, ErrorConflict):
		result.Disposition = CallbackConflict
		result.Err = err
	case IsErrorKind(err, ErrorIntentNotFound):
		result.Disposition = CallbackUnknownIntent
		result.Err = err
	default:
		result.Disposition = CallbackFailed
		result.Err = err
	}
	return result
}

func (s *Service) lookupByCorrelation(ctx context.Context, correlationID string) (PaymentIntent, error) {
	intentID, err := ParseIntentID(correlationID)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("%w: correlation id %q", ErrIntentNotFound, correlationID)
	}
	return s.store.GetIntent(ctx, intentID)
}

// attachCallbackOrderID records the order id a callback reports when checkout
// never did. A different stored value is logged and otherwise ignored.
func (s *Service) attachCallbackOrderID(ctx context.Context, intentID int64, orderID string) {
	intent, err := s.store.AttachProviderOrderID(ctx, intentID, orderID)
	if err != nil {
		if !errors.Is(err, ErrIntentNotFound) {
			s.telemetry.log(ctx, "warn", "callback order id not attached", map[string]any{
				"intent_id":         intentID,
				"provider_order_id": orderID,
				"error":             err.Error(),
			})
		}
		return
	}
	if intent.ProviderOrderID != orderID {
		s.telemetry.log(ctx, "warn", "callback order id differs from stored order id", map[string]any{
			"intent_id":                intentID,
			"provider_order_id":        orderID,
			"stored_provider_order_id": intent.ProviderOrderID,
		})
	}
}

func classifyValidationError(err error) CallbackDisposition {
	switch {
	case errors.Is(err, ErrMissingCorrelation):
		return CallbackDropped
	case errors.Is(err, ErrCallbackIgnored):
		return CallbackIgnored
	case errors.Is(err, ErrIntentNotFound), IsErrorKind(err, ErrorIntentNotFound):
		return CallbackUnknownIntent
	case IsErrorKind(err, ErrorAuthenticationFailed):
		return CallbackRejected
	default:
		return CallbackInvalidPayload
	}
}
