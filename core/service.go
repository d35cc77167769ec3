package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is the intent lifecycle manager. Resolve is the single choke point
// for every state transition, whether it comes from a callback, the sweeper
// or checkout compensation.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	store             LedgerStore
	profiles          UserProfileReader
	registry          Registry
	dispatcher        *NotificationDispatcher
	clock             func() time.Time
	telemetry         telemetry
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	LedgerStore       LedgerStore
	ProfileReader     UserProfileReader
	Registry          Registry
	Dispatcher        *NotificationDispatcher
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("payments", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if builder.logger == nil && provider != nil {
		if named := provider.GetLogger("payments"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}
	for _, candidate := range builder.providers {
		if err := builder.registry.Register(candidate); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.ledgerStore == nil && builder.repositoryFactory != nil {
		switch factory := builder.repositoryFactory.(type) {
		case LedgerStoreFactory:
			store, buildErr := factory.BuildLedgerStore(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.ledgerStore = store
		case LedgerStore:
			builder.ledgerStore = factory
		}
	}
	if builder.ledgerStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: ledger store is required"))
	}

	metrics := builder.metricsRecorder
	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   metrics,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		store:             builder.ledgerStore,
		profiles:          builder.profileReader,
		registry:          builder.registry,
		dispatcher: NewNotificationDispatcher(
			builder.notifiers,
			WithDispatchTimeout(finalConfig.Notifications.Timeout),
			WithDispatchLogger(logger),
			WithDispatchMetrics(metrics),
		),
		clock:     builder.clock,
		telemetry: telemetry{logger: logger, metrics: metrics},
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		LedgerStore:       s.store,
		ProfileReader:     s.profiles,
		Registry:          s.registry,
		Dispatcher:        s.dispatcher,
	}
}

// CreateIntent records a pending intent for a known user. The returned id is
// the correlation token handed to the gateway.
func (s *Service) CreateIntent(ctx context.Context, req CreateIntentRequest) (intent PaymentIntent, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_ref":    strings.TrimSpace(req.UserRef),
		"amount":      req.Amount.String(),
		"provider_id": normalizeProviderID(req.ProviderID),
	}
	defer func() {
		if intent.ID > 0 {
			fields["intent_id"] = intent.ID
		}
		s.observeOperation(ctx, startedAt, "create_intent", err, fields)
	}()

	intent, _, err = s.createIntent(ctx, req)
	return intent, err
}

func (s *Service) createIntent(ctx context.Context, req CreateIntentRequest) (PaymentIntent, User, error) {
	if s == nil || s.store == nil {
		return PaymentIntent{}, User{}, fmt.Errorf("core: ledger store is not configured")
	}
	userRef := strings.TrimSpace(req.UserRef)
	if userRef == "" {
		return PaymentIntent{}, User{}, s.mapError(NewInvalidRequestError(
			"user reference is required",
			goerrors.FieldError{Field: "user_ref", Message: "required"},
		))
	}
	if err := validateAmount(req.Amount); err != nil {
		return PaymentIntent{}, User{}, s.mapError(err)
	}
	providerID := normalizeProviderID(req.ProviderID)
	if providerID != "" {
		if _, ok := s.registry.Get(providerID); !ok {
			return PaymentIntent{}, User{}, s.mapError(NewInvalidRequestError(
				fmt.Sprintf("payment provider %q is not registered", providerID),
				goerrors.FieldError{Field: "provider_id", Message: "unknown provider"},
			))
		}
	}

	user, err := s.store.GetUser(ctx, userRef)
	if err != nil {
		return PaymentIntent{}, User{}, s.translateStoreError(err, userRef, 0)
	}
	intent, err := s.store.CreateIntent(ctx, CreateIntentInput{
		UserRef:    user.ExternalID,
		ProviderID: providerID,
		Amount:     req.Amount,
		Currency:   strings.ToUpper(s.config.Currency),
		CreatedAt:  s.now(),
	})
	if err != nil {
		return PaymentIntent{}, User{}, s.translateStoreError(err, userRef, 0)
	}
	return intent, user, nil
}

func (s *Service) Get(ctx context.Context, intentID int64) (PaymentIntent, error) {
	if s == nil || s.store == nil {
		return PaymentIntent{}, fmt.Errorf("core: ledger store is not configured")
	}
	if intentID <= 0 {
		return PaymentIntent{}, s.mapError(NewInvalidRequestError(
			"intent id must be positive",
			goerrors.FieldError{Field: "intent_id", Message: "must be positive"},
		))
	}
	intent, err := s.store.GetIntent(ctx, intentID)
	if err != nil {
		return PaymentIntent{}, s.translateStoreError(err, "", intentID)
	}
	return intent, nil
}

// AttachProviderOrderID sets the write-once provider order id. Repeating the
// stored value is a no-op; any other value is a conflict.
func (s *Service) AttachProviderOrderID(ctx context.Context, intentID int64, orderID string) (intent PaymentIntent, err error) {
	startedAt := time.Now().UTC()
	orderID = strings.TrimSpace(orderID)
	fields := map[string]any{
		"intent_id":         intentID,
		"provider_order_id": orderID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "attach_provider_order_id", err, fields)
	}()

	if s == nil || s.store == nil {
		return PaymentIntent{}, fmt.Errorf("core: ledger store is not configured")
	}
	if intentID <= 0 {
		return PaymentIntent{}, s.mapError(NewInvalidRequestError(
			"intent id must be positive",
			goerrors.FieldError{Field: "intent_id", Message: "must be positive"},
		))
	}
	if orderID == "" {
		return PaymentIntent{}, s.mapError(NewInvalidRequestError(
			"provider order id is required",
			goerrors.FieldError{Field: "provider_order_id", Message: "required"},
		))
	}

	intent, err = s.store.AttachProviderOrderID(ctx, intentID, orderID)
	if err != nil {
		return PaymentIntent{}, s.translateStoreError(err, "", intentID)
	}
	if intent.ProviderOrderID != orderID {
		fields["current_provider_order_id"] = intent.ProviderOrderID
		return intent, s.mapError(NewConflictError(
			fmt.Sprintf("payment intent %d already has a different provider order id", intentID),
			map[string]any{
				"intent_id":          intentID,
				"current_order_id":   intent.ProviderOrderID,
				"requested_order_id": orderID,
			},
		))
	}
	return intent, nil
}

// Resolve applies a terminal outcome. A pending intent transitions and, for
// Paid, credits the stored amount in the same commit. A terminal intent with
// the same status is an idempotent replay; a contradicting status is a
// Conflict and nothing changes.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (result ResolutionResult, err error) {
	startedAt := time.Now().UTC()
	source := req.Source
	if strings.TrimSpace(string(source)) == "" {
		source = ResolutionSourceManual
	}
	fields := map[string]any{
		"intent_id": req.IntentID,
		"outcome":   string(req.Outcome.Kind),
		"source":    string(source),
	}
	defer func() {
		fields["applied"] = result.Applied
		fields["replayed"] = result.Replayed
		s.observeOperation(ctx, startedAt, "resolve", err, fields)
	}()

	if s == nil || s.store == nil {
		return ResolutionResult{}, fmt.Errorf("core: ledger store is not configured")
	}
	if req.IntentID <= 0 {
		return ResolutionResult{}, s.mapError(NewInvalidRequestError(
			"intent id must be positive",
			goerrors.FieldError{Field: "intent_id", Message: "must be positive"},
		))
	}
	if validateErr := req.Outcome.Validate(); validateErr != nil {
		return ResolutionResult{}, s.mapError(NewInvalidRequestError(
			validateErr.Error(),
			goerrors.FieldError{Field: "outcome", Message: "unsupported"},
		))
	}

	result, err = s.store.ApplyResolution(ctx, Resolution{
		IntentID:   req.IntentID,
		Outcome:    req.Outcome,
		Source:     source,
		ResolvedAt: s.now(),
	})
	if err != nil {
		return ResolutionResult{}, s.translateStoreError(err, "", req.IntentID)
	}

	if !result.Applied {
		stored := result.Intent.Status
		fields["stored_status"] = string(stored)
		switch {
		case stored == req.Outcome.Status():
			result.Replayed = true
			return result, nil
		case !stored.Terminal():
			return result, s.mapError(NewStorageError(
				fmt.Errorf("core: intent %d still %s after conditional update", req.IntentID, stored),
				"resolution was not applied",
			))
		default:
			return result, s.mapError(NewConflictError(
				fmt.Sprintf("payment intent %d is already %s", req.IntentID, stored),
				map[string]any{
					"intent_id":        req.IntentID,
					"stored_status":    string(stored),
					"requested_status": string(req.Outcome.Status()),
				},
			))
		}
	}

	fields["credited"] = result.Credited.String()
	s.telemetry.recordResolution(ctx, result, source)
	s.dispatcher.Dispatch(ctx, s.resolutionEvent(result, req.Outcome, source))
	return result, nil
}

func (s *Service) resolutionEvent(result ResolutionResult, outcome Outcome, source ResolutionSource) ResolutionEvent {
	intent := result.Intent
	occurredAt := s.now()
	if intent.ResolvedAt != nil {
		occurredAt = intent.ResolvedAt.UTC()
	}
	return ResolutionEvent{
		EventID:         uuid.NewString(),
		IntentID:        intent.ID,
		UserRef:         intent.UserRef,
		Outcome:         intent.Status,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Balance:         result.Balance,
		ProviderID:      intent.ProviderID,
		ProviderOrderID: intent.ProviderOrderID,
		TransactionID:   intent.ProviderTransactionID,
		Reason:          outcome.Reason,
		Source:          source,
		OccurredAt:      occurredAt,
	}
}

func (s *Service) resolveProvider(providerID string) (Provider, error) {
	if s == nil || s.registry == nil {
		return nil, fmt.Errorf("core: provider registry is not configured")
	}
	provider, ok := s.registry.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, normalizeProviderID(providerID))
	}
	return provider, nil
}

func (s *Service) translateStoreError(err error, userRef string, intentID int64) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	switch {
	case errors.Is(err, ErrUserNotFound):
		return s.mapError(NewUserNotFoundError(userRef))
	case errors.Is(err, ErrIntentNotFound):
		return s.mapError(NewIntentNotFoundError(intentID))
	case errors.Is(err, ErrOrderIDTaken):
		return s.mapError(NewConflictError(err.Error(), map[string]any{"intent_id": intentID}))
	case goerrors.As(err, &richErr):
		return s.mapError(richErr)
	default:
		return s.mapError(NewStorageError(err, "ledger store operation failed"))
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	s.telemetry.observe(ctx, startedAt, operation, err, fields)
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func validateAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return NewInvalidRequestError(
			"amount must be greater than zero",
			goerrors.FieldError{Field: "amount", Message: "must be greater than zero"},
		)
	}
	if !amount.Equal(amount.Round(2)) {
		return NewInvalidRequestError(
			"amount supports at most two decimal places",
			goerrors.FieldError{Field: "amount", Message: "too many decimal places"},
		)
	}
	return nil
}
