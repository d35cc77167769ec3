package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorInvalidRequest       = "PAYMENT_INVALID_REQUEST"
	ErrorUserNotFound         = "PAYMENT_USER_NOT_FOUND"
	ErrorIntentNotFound       = "PAYMENT_INTENT_NOT_FOUND"
	ErrorConflict             = "PAYMENT_CONFLICT"
	ErrorAuthenticationFailed = "PAYMENT_AUTHENTICATION_FAILED"
	ErrorUpstreamUnavailable  = "PAYMENT_UPSTREAM_UNAVAILABLE"
	ErrorStorageFailure       = "PAYMENT_STORAGE_FAILURE"
	ErrorForbidden            = "PAYMENT_FORBIDDEN"
	ErrorRateLimited          = "PAYMENT_RATE_LIMITED"
	ErrorInternal             = "PAYMENT_INTERNAL_ERROR"
)

// Store and provider sentinels. The service translates them into the
// taxonomy above before they leave core.
var (
	ErrUserNotFound       = errors.New("core: user not found")
	ErrIntentNotFound     = errors.New("core: payment intent not found")
	ErrOrderIDTaken       = errors.New("core: provider order id already attached to another intent")
	ErrProviderNotFound   = errors.New("core: payment provider not registered")
	ErrMissingCorrelation = errors.New("core: callback carries no correlation id")
	ErrCallbackIgnored    = errors.New("core: callback does not describe a payment outcome")
	ErrSweepInProgress    = errors.New("core: sweep already in progress")
)

func NewInvalidRequestError(message string, fields ...goerrors.FieldError) *goerrors.Error {
	if len(fields) > 0 {
		return goerrors.NewValidation(message, fields...).
			WithCode(http.StatusBadRequest).
			WithTextCode(ErrorInvalidRequest)
	}
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorInvalidRequest)
}

func NewUserNotFoundError(userRef string) *goerrors.Error {
	message := fmt.Sprintf("user %q not found", userRef)
	if userRef == "" {
		message = "owning user not found"
	}
	return goerrors.Wrap(ErrUserNotFound, goerrors.CategoryNotFound, message).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorUserNotFound).
		WithMetadata(map[string]any{"user_ref": userRef})
}

func NewIntentNotFoundError(intentID int64) *goerrors.Error {
	return goerrors.Wrap(ErrIntentNotFound, goerrors.CategoryNotFound, fmt.Sprintf("payment intent %d not found", intentID)).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorIntentNotFound).
		WithMetadata(map[string]any{"intent_id": intentID})
}

func NewConflictError(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorConflict)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func NewAuthenticationError(message string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorAuthenticationFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func NewUpstreamError(source error, message string, metadata map[string]any) *goerrors.Error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryExternal)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
	}
	err.WithCode(http.StatusBadGateway).WithTextCode(ErrorUpstreamUnavailable)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func NewStorageError(source error, message string) *goerrors.Error {
	if source == nil {
		source = errors.New(message)
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorStorageFailure).
		WithSeverity(goerrors.SeverityError)
}

func NewForbiddenError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(ErrorForbidden)
}

func NewRateLimitedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(ErrorRateLimited)
}

// ErrorKind returns the taxonomy text code carried by err, or "" when err
// carries none.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.TrimSpace(richErr.TextCode)
	}
	return ""
}

func IsErrorKind(err error, textCode string) bool {
	kind := ErrorKind(err)
	return kind != "" && kind == strings.TrimSpace(textCode)
}

// MapError converts any error into the payment error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrUserNotFound):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error()).WithTextCode(ErrorUserNotFound))
	case errors.Is(err, ErrIntentNotFound):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error()).WithTextCode(ErrorIntentNotFound))
	case errors.Is(err, ErrOrderIDTaken):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()).WithTextCode(ErrorConflict))
	case errors.Is(err, ErrProviderNotFound):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error()).WithTextCode(ErrorInvalidRequest))
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryBadInput, err.Error()).WithTextCode(ErrorInvalidRequest))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorInvalidRequest
	case goerrors.CategoryNotFound:
		return ErrorIntentNotFound
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryAuth:
		return ErrorAuthenticationFailed
	case goerrors.CategoryAuthz:
		return ErrorForbidden
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorUpstreamUnavailable
	default:
		return ErrorInternal
	}
}

func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
