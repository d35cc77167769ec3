package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Checkout creates a pending intent, asks the gateway for an order and
// attaches the order id. When the gateway never produced an order, or the
// order id cannot be recorded, the intent is failed right away so the sweeper
// cannot settle it.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (result CheckoutResult, err error) {
	startedAt := time.Now().UTC()
	providerID := normalizeProviderID(req.ProviderID)
	fields := map[string]any{
		"user_ref":    strings.TrimSpace(req.UserRef),
		"amount":      req.Amount.String(),
		"provider_id": providerID,
	}
	defer func() {
		if result.Intent.ID > 0 {
			fields["intent_id"] = result.Intent.ID
			fields["intent_status"] = string(result.Intent.Status)
		}
		if result.ProviderOrderID != "" {
			fields["provider_order_id"] = result.ProviderOrderID
		}
		s.observeOperation(ctx, startedAt, "checkout", err, fields)
	}()

	if providerID == "" {
		return CheckoutResult{}, s.mapError(NewInvalidRequestError(
			"provider id is required for checkout",
			goerrors.FieldError{Field: "provider_id", Message: "required"},
		))
	}
	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return CheckoutResult{}, s.mapError(err)
	}

	intent, user, err := s.createIntent(ctx, CreateIntentRequest{
		UserRef:    req.UserRef,
		Amount:     req.Amount,
		ProviderID: providerID,
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	result.Intent = intent

	profile := s.orderProfile(ctx, user)
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("Balance top-up %s", intent.CorrelationID())
	}

	orderCtx, cancel := context.WithTimeout(ctx, s.config.OrderTimeout)
	order, orderErr := provider.CreateOrder(orderCtx, OrderRequest{
		Intent:       intent,
		Profile:      profile,
		Description:  description,
		RedirectURLs: req.RedirectURLs,
	})
	cancel()
	if orderErr == nil && strings.TrimSpace(order.ProviderOrderID) == "" {
		orderErr = fmt.Errorf("core: provider %s returned an order without an id", providerID)
	}
	if orderErr != nil {
		result.Intent = s.failCheckoutIntent(ctx, intent, "order creation failed: "+orderErr.Error())
		return result, s.mapError(upstreamOrderError(orderErr, providerID, intent.ID))
	}

	orderID := strings.TrimSpace(order.ProviderOrderID)
	attached, err := s.AttachProviderOrderID(ctx, intent.ID, orderID)
	if err != nil {
		s.telemetry.log(ctx, "error", "provider order orphaned, intent could not record it", map[string]any{
			"intent_id":         intent.ID,
			"provider_id":       providerID,
			"provider_order_id": orderID,
			"error":             err.Error(),
		})
		result.Intent = s.failCheckoutIntent(ctx, intent, "provider order "+orderID+" could not be attached: "+err.Error())
		return result, err
	}
	result.Intent = attached
	result.ProviderOrderID = attached.ProviderOrderID
	result.PaymentURL = strings.TrimSpace(order.PaymentURL)
	return result, nil
}

func (s *Service) orderProfile(ctx context.Context, user User) UserProfile {
	profile := user.Profile
	if s.profiles != nil {
		loaded, err := s.profiles.GetUserProfile(ctx, user.ExternalID)
		if err != nil {
			s.telemetry.log(ctx, "warn", "user profile lookup failed", map[string]any{
				"user_ref": user.ExternalID,
				"error":    err.Error(),
			})
		} else {
			profile = loaded
		}
	}
	if strings.TrimSpace(profile.ExternalID) == "" {
		profile.ExternalID = user.ExternalID
	}
	return profile
}

// failCheckoutIntent closes an intent whose order is missing or unrecorded.
func (s *Service) failCheckoutIntent(ctx context.Context, intent PaymentIntent, reason string) PaymentIntent {
	resolved, err := s.Resolve(context.WithoutCancel(ctx), ResolveRequest{
		IntentID: intent.ID,
		Outcome:  FailedOutcome(reason),
		Source:   ResolutionSourceCheckout,
	})
	if err != nil {
		s.telemetry.log(ctx, "error", "failed to close intent after checkout failure", map[string]any{
			"intent_id": intent.ID,
			"error":     err.Error(),
		})
		return intent
	}
	return resolved.Intent
}

func upstreamOrderError(err error, providerID string, intentID int64) error {
	if IsErrorKind(err, ErrorUpstreamUnavailable) {
		return err
	}
	return NewUpstreamError(err, "payment provider order creation failed", map[string]any{
		"provider_id": providerID,
		"intent_id":   intentID,
	})
}
