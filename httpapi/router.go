// Package httpapi exposes the payment service over HTTP with gin.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/ratelimit"
	"github.com/shopspring/decimal"
)

const (
	InternalKeyHeader = "X-Internal-API-Key"

	DefaultMaxCallbackBodyBytes int64 = 1 << 20 // 1 MiB
	defaultHealthTimeout              = 2 * time.Second
)

type Service interface {
	CreateIntent(ctx context.Context, req core.CreateIntentRequest) (core.PaymentIntent, error)
	Checkout(ctx context.Context, req core.CheckoutRequest) (core.CheckoutResult, error)
	Get(ctx context.Context, intentID int64) (core.PaymentIntent, error)
	HandleCallback(ctx context.Context, req core.CallbackRequest) core.CallbackResult
}

type Config struct {
	// InternalAPIKey guards intent creation and reads. Required.
	InternalAPIKey       string
	ServiceName          string
	DefaultProviderID    string
	MaxCallbackBodyBytes int64
	// Limiter throttles intent creation per user reference. Nil disables it.
	Limiter     *ratelimit.KeyedLimiter
	HealthCheck func(ctx context.Context) error
	Logger      glog.Logger
	Now         func() time.Time
}

type handler struct {
	service Service
	cfg     Config
	logger  glog.Logger
}

// NewRouter mounts the payment routes on a new gin engine.
func NewRouter(service Service, cfg Config) (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.Logger != nil {
		engine.Use(RequestLogger(cfg.Logger))
	}
	if err := Register(engine, service, cfg); err != nil {
		return nil, err
	}
	return engine, nil
}

// Register mounts the payment routes on an existing gin router.
func Register(router gin.IRouter, service Service, cfg Config) error {
	if router == nil {
		return core.NewInvalidRequestError("httpapi: router is required")
	}
	if service == nil {
		return core.NewInvalidRequestError("httpapi: service is required")
	}
	cfg.InternalAPIKey = strings.TrimSpace(cfg.InternalAPIKey)
	if cfg.InternalAPIKey == "" {
		return core.NewInvalidRequestError("httpapi: internal api key is required")
	}
	if cfg.MaxCallbackBodyBytes <= 0 {
		cfg.MaxCallbackBodyBytes = DefaultMaxCallbackBodyBytes
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "payments"
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	h := &handler{service: service, cfg: cfg, logger: glog.Ensure(cfg.Logger)}

	router.GET("/health", h.health)
	router.POST("/payments/callbacks/:provider", h.callback)

	internal := router.Group("/payments/intents")
	internal.Use(h.requireInternalKey)
	internal.POST("", h.createIntent)
	internal.GET("/:id", h.getIntent)
	return nil
}

func (h *handler) requireInternalKey(c *gin.Context) {
	provided := strings.TrimSpace(c.GetHeader(InternalKeyHeader))
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.cfg.InternalAPIKey)) != 1 {
		h.abortWithError(c, core.NewForbiddenError("internal api key missing or invalid"))
		return
	}
	c.Next()
}

type redirectURLsBody struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
	Review  string `json:"review"`
}

type createIntentBody struct {
	UserRef      string           `json:"user_ref"`
	Amount       decimal.Decimal  `json:"amount"`
	Provider     string           `json:"provider"`
	Description  string           `json:"description"`
	RedirectURLs redirectURLsBody `json:"redirect_urls"`
}

type createIntentResponse struct {
	IntentID        int64             `json:"intent_id"`
	ProviderOrderID string            `json:"provider_order_id,omitempty"`
	PaymentURL      string            `json:"payment_url,omitempty"`
	Status          core.IntentStatus `json:"status"`
	Amount          string            `json:"amount"`
	Currency        string            `json:"currency"`
}

func (h *handler) createIntent(c *gin.Context) {
	var body createIntentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.abortWithError(c, core.NewInvalidRequestError("request body must be a json intent: "+err.Error()))
		return
	}
	userRef := strings.TrimSpace(body.UserRef)
	if userRef == "" {
		h.abortWithError(c, core.NewInvalidRequestError("user_ref is required"))
		return
	}
	if err := h.cfg.Limiter.Allow(userRef); err != nil {
		h.abortWithError(c, err)
		return
	}

	providerID := strings.TrimSpace(body.Provider)
	if providerID == "" {
		providerID = strings.TrimSpace(h.cfg.DefaultProviderID)
	}

	ctx := c.Request.Context()
	if providerID == "" {
		intent, err := h.service.CreateIntent(ctx, core.CreateIntentRequest{
			UserRef: userRef,
			Amount:  body.Amount,
		})
		if err != nil {
			h.abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, newCreateIntentResponse(intent, "", ""))
		return
	}

	result, err := h.service.Checkout(ctx, core.CheckoutRequest{
		UserRef:     userRef,
		Amount:      body.Amount,
		ProviderID:  providerID,
		Description: strings.TrimSpace(body.Description),
		RedirectURLs: core.RedirectURLs{
			Success: strings.TrimSpace(body.RedirectURLs.Success),
			Failure: strings.TrimSpace(body.RedirectURLs.Failure),
			Pending: strings.TrimSpace(body.RedirectURLs.Pending),
			Review:  strings.TrimSpace(body.RedirectURLs.Review),
		},
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newCreateIntentResponse(result.Intent, result.ProviderOrderID, result.PaymentURL))
}

func newCreateIntentResponse(intent core.PaymentIntent, orderID, paymentURL string) createIntentResponse {
	if orderID == "" {
		orderID = intent.ProviderOrderID
	}
	return createIntentResponse{
		IntentID:        intent.ID,
		ProviderOrderID: orderID,
		PaymentURL:      paymentURL,
		Status:          intent.Status,
		Amount:          intent.Amount.StringFixed(2),
		Currency:        intent.Currency,
	}
}

type intentView struct {
	IntentID         int64                 `json:"intent_id"`
	UserRef          string                `json:"user_ref"`
	Provider         string                `json:"provider,omitempty"`
	ProviderOrderID  string                `json:"provider_order_id,omitempty"`
	Amount           string                `json:"amount"`
	Currency         string                `json:"currency"`
	Status           core.IntentStatus     `json:"status"`
	TransactionID    string                `json:"transaction_id,omitempty"`
	StatusDetail     string                `json:"status_detail,omitempty"`
	FailureReason    string                `json:"failure_reason,omitempty"`
	ResolutionSource core.ResolutionSource `json:"resolution_source,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	PaidAt           *time.Time            `json:"paid_at,omitempty"`
	ResolvedAt       *time.Time            `json:"resolved_at,omitempty"`
}

func (h *handler) getIntent(c *gin.Context) {
	intentID, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || intentID <= 0 {
		h.abortWithError(c, core.NewInvalidRequestError("intent id must be a positive integer"))
		return
	}
	intent, err := h.service.Get(c.Request.Context(), intentID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, intentView{
		IntentID:         intent.ID,
		UserRef:          intent.UserRef,
		Provider:         intent.ProviderID,
		ProviderOrderID:  intent.ProviderOrderID,
		Amount:           intent.Amount.StringFixed(2),
		Currency:         intent.Currency,
		Status:           intent.Status,
		TransactionID:    intent.ProviderTransactionID,
		StatusDetail:     intent.StatusDetail,
		FailureReason:    intent.FailureReason,
		ResolutionSource: intent.ResolutionSource,
		CreatedAt:        intent.CreatedAt,
		PaidAt:           intent.PaidAt,
		ResolvedAt:       intent.ResolvedAt,
	})
}

// callback always acknowledges; the outcome is only logged.
func (h *handler) callback(c *gin.Context) {
	providerID := strings.TrimSpace(c.Param("provider"))
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxCallbackBodyBytes))
	if err != nil {
		h.logger.Warn("callback body unreadable", "provider", providerID, "error", err)
		c.JSON(http.StatusOK, core.AckOK())
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[name] = c.Request.Header.Get(name)
	}

	result := h.service.HandleCallback(c.Request.Context(), core.CallbackRequest{
		ProviderID: providerID,
		Headers:    headers,
		Body:       body,
		ReceivedAt: h.cfg.Now(),
	})
	if result.Err != nil {
		h.logger.Warn("callback not applied",
			"provider", providerID,
			"disposition", string(result.Disposition),
			"intent_id", result.IntentID,
			"error", result.Err,
		)
	}
	c.JSON(http.StatusOK, result.Ack)
}

type healthResponse struct {
	Status  string    `json:"status"`
	Service string    `json:"service"`
	Time    time.Time `json:"time"`
	Error   string    `json:"error,omitempty"`
}

func (h *handler) health(c *gin.Context) {
	response := healthResponse{Status: "ok", Service: h.cfg.ServiceName, Time: h.cfg.Now()}
	if h.cfg.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), defaultHealthTimeout)
		defer cancel()
		if err := h.cfg.HealthCheck(ctx); err != nil {
			response.Status = "degraded"
			response.Error = err.Error()
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
	}
	c.JSON(http.StatusOK, response)
}

type errorBody struct {
	Code     int    `json:"code"`
	TextCode string `json:"text_code"`
	Message  string `json:"message"`
}

func (h *handler) abortWithError(c *gin.Context, err error) {
	var throttled ratelimit.ThrottledError
	if errors.As(err, &throttled) {
		if throttled.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(throttled.RetryAfter.Seconds()))))
		}
		err = throttled.ToServiceError()
	}

	mapped := core.MapError(err)
	status := mapped.Code
	if status == 0 {
		status = core.HTTPStatus(mapped.Category)
	}
	message := mapped.Message
	if mapped.Category == goerrors.CategoryInternal {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		message = "An unexpected error occurred"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{
		Code:     status,
		TextCode: mapped.TextCode,
		Message:  message,
	}})
}
