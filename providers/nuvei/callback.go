package nuvei

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
)

const (
	statusPending   = "0"
	statusApproved  = "1"
	statusCancelled = "2"
	statusRejected  = "4"

	detailPaid = "3"
)

// flexString accepts both JSON strings and numbers. Nuvei sends status codes
// either way depending on the product.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(value))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*f = flexString(number.String())
	return nil
}

func (f flexString) String() string {
	return string(f)
}

type callbackTransaction struct {
	ID                flexString `json:"id"`
	Status            flexString `json:"status"`
	StatusDetail      flexString `json:"status_detail"`
	DevReference      flexString `json:"dev_reference"`
	AuthorizationCode flexString `json:"authorization_code"`
	Amount            flexString `json:"amount"`
	LTPID             flexString `json:"ltp_id"`
	SToken            flexString `json:"stoken"`
}

type callbackUser struct {
	ID    flexString `json:"id"`
	Email string     `json:"email"`
}

type callbackPayload struct {
	Transaction *callbackTransaction `json:"transaction"`
	User        callbackUser         `json:"user"`
}

// ValidateCallback authenticates a LinkToPay callback. The user id in the body
// must own the referenced intent before the stoken is checked against it.
func (p *Provider) ValidateCallback(ctx context.Context, req core.CallbackRequest, lookup core.IntentLookup) (core.CallbackFacts, error) {
	payload := callbackPayload{}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return core.CallbackFacts{}, fmt.Errorf("providers/nuvei: parse callback: %w", err)
	}
	if payload.Transaction == nil {
		return core.CallbackFacts{}, fmt.Errorf("%w: no transaction object", core.ErrCallbackIgnored)
	}
	tx := payload.Transaction
	correlationID := tx.DevReference.String()
	if correlationID == "" {
		return core.CallbackFacts{}, core.ErrMissingCorrelation
	}
	if lookup == nil {
		return core.CallbackFacts{}, fmt.Errorf("providers/nuvei: intent lookup is required")
	}
	intent, err := lookup(ctx, correlationID)
	if err != nil {
		return core.CallbackFacts{}, err
	}

	userID := payload.User.ID.String()
	if userID == "" {
		return core.CallbackFacts{}, core.NewAuthenticationError("nuvei callback carries no user id", map[string]any{
			"correlation_id": correlationID,
		})
	}
	if userID != intent.UserRef {
		return core.CallbackFacts{}, core.NewAuthenticationError("nuvei callback user does not own the intent", map[string]any{
			"correlation_id": correlationID,
		})
	}

	expected := CallbackToken(tx.ID.String(), p.cfg.ServerAppCode, userID, p.cfg.ServerAppKey)
	received := strings.ToLower(tx.SToken.String())
	if received == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
		return core.CallbackFacts{}, core.NewAuthenticationError("nuvei callback stoken mismatch", map[string]any{
			"correlation_id": correlationID,
			"transaction_id": tx.ID.String(),
		})
	}

	return core.CallbackFacts{
		CorrelationID:     correlationID,
		TransactionID:     tx.ID.String(),
		Status:            mapStatus(tx.Status.String()),
		StatusDetail:      mapStatusDetail(tx.StatusDetail.String()),
		RawStatus:         tx.Status.String(),
		RawStatusDetail:   tx.StatusDetail.String(),
		AuthorizationCode: tx.AuthorizationCode.String(),
		ProviderOrderID:   tx.LTPID.String(),
		UserRef:           userID,
		ReportedAmount:    tx.Amount.String(),
	}, nil
}

func mapStatus(raw string) core.CallbackStatus {
	switch raw {
	case statusApproved:
		return core.CallbackStatusSuccess
	case statusPending:
		return core.CallbackStatusPending
	case statusCancelled:
		return core.CallbackStatusCancelled
	case statusRejected:
		return core.CallbackStatusFailure
	default:
		return core.CallbackStatusUnknown
	}
}

func mapStatusDetail(raw string) core.CallbackStatusDetail {
	if raw == detailPaid {
		return core.CallbackDetailApproved
	}
	return core.CallbackDetailUnknown
}
