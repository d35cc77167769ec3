package payments

import "github.com/goliatone/go-payments/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type LedgerStore = core.LedgerStore
type UserProfileReader = core.UserProfileReader
type Provider = core.Provider
type Notifier = core.Notifier
type SweepPolicy = core.SweepPolicy
type SweepLocker = core.SweepLocker

type Sweeper = core.Sweeper
type SweeperOption = core.SweeperOption

type CreateIntentRequest = core.CreateIntentRequest
type CheckoutRequest = core.CheckoutRequest
type ResolveRequest = core.ResolveRequest
type CallbackRequest = core.CallbackRequest

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithLedgerStore       = core.WithLedgerStore
	WithUserProfileReader = core.WithUserProfileReader
	WithRegistry          = core.WithRegistry
	WithProviders         = core.WithProviders
	WithNotifiers         = core.WithNotifiers
	WithClock             = core.WithClock

	WithSweepPolicy     = core.WithSweepPolicy
	WithSweepLocker     = core.WithSweepLocker
	WithSweepInterval   = core.WithSweepInterval
	WithSweepQuiescence = core.WithSweepQuiescence
	WithSweepBatchSize  = core.WithSweepBatchSize
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

func NewSweeper(service *Service, opts ...SweeperOption) (*Sweeper, error) {
	return core.NewSweeper(service, opts...)
}
