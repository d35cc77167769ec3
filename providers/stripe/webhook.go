package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
	stripeapi "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

const SignatureHeader = "Stripe-Signature"

// ValidateCallback verifies the Stripe-Signature header and reduces checkout
// session events to callback facts. Event types that do not settle a
// payment are ignored.
func (p *Provider) ValidateCallback(ctx context.Context, req core.CallbackRequest, lookup core.IntentLookup) (core.CallbackFacts, error) {
	event, err := webhook.ConstructEventWithOptions(req.Body, req.Header(SignatureHeader), p.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.cfg.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return core.CallbackFacts{}, core.NewAuthenticationError("stripe webhook signature rejected", map[string]any{
			"reason": err.Error(),
		})
	}

	var (
		status core.CallbackStatus
		detail = core.CallbackDetailUnknown
	)
	switch event.Type {
	case stripeapi.EventTypeCheckoutSessionCompleted, stripeapi.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		status = core.CallbackStatusSuccess
	case stripeapi.EventTypeCheckoutSessionAsyncPaymentFailed:
		status = core.CallbackStatusFailure
	case stripeapi.EventTypeCheckoutSessionExpired:
		status = core.CallbackStatusCancelled
	default:
		return core.CallbackFacts{}, fmt.Errorf("%w: stripe event %s", core.ErrCallbackIgnored, event.Type)
	}
	if event.Data == nil {
		return core.CallbackFacts{}, fmt.Errorf("providers/stripe: event %s has no data", event.ID)
	}

	sess := stripeapi.CheckoutSession{}
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return core.CallbackFacts{}, fmt.Errorf("providers/stripe: parse checkout session: %w", err)
	}
	if status == core.CallbackStatusSuccess {
		if sess.PaymentStatus != stripeapi.CheckoutSessionPaymentStatusPaid {
			return core.CallbackFacts{}, fmt.Errorf("%w: session %s payment_status=%s", core.ErrCallbackIgnored, sess.ID, sess.PaymentStatus)
		}
		detail = core.CallbackDetailApproved
	}

	correlationID := strings.TrimSpace(sess.ClientReferenceID)
	if correlationID == "" {
		correlationID = strings.TrimSpace(sess.Metadata[metadataIntentID])
	}
	if correlationID == "" {
		return core.CallbackFacts{}, core.ErrMissingCorrelation
	}
	if lookup == nil {
		return core.CallbackFacts{}, fmt.Errorf("providers/stripe: intent lookup is required")
	}
	intent, err := lookup(ctx, correlationID)
	if err != nil {
		return core.CallbackFacts{}, err
	}
	if owner := strings.TrimSpace(sess.Metadata[metadataUserRef]); owner != "" && owner != intent.UserRef {
		return core.CallbackFacts{}, core.NewAuthenticationError("stripe session user does not own the intent", map[string]any{
			"correlation_id": correlationID,
			"session_id":     sess.ID,
		})
	}

	transactionID := sess.ID
	if sess.PaymentIntent != nil && strings.TrimSpace(sess.PaymentIntent.ID) != "" {
		transactionID = sess.PaymentIntent.ID
	}
	return core.CallbackFacts{
		CorrelationID:   correlationID,
		TransactionID:   transactionID,
		Status:          status,
		StatusDetail:    detail,
		RawStatus:       string(event.Type),
		RawStatusDetail: string(sess.PaymentStatus),
		ProviderOrderID: sess.ID,
		UserRef:         intent.UserRef,
		ReportedAmount:  fmt.Sprintf("%d", sess.AmountTotal),
	}, nil
}
