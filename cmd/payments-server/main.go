// Command payments-server runs the payment reconciliation engine: the HTTP
// API, provider callbacks and the reconciliation sweeper.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	command "github.com/goliatone/go-command"
	persistence "github.com/goliatone/go-persistence-bun"
	payments "github.com/goliatone/go-payments"
	gocommandadapter "github.com/goliatone/go-payments/adapters/gocommand"
	"github.com/goliatone/go-payments/adapters/gozap"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/httpapi"
	"github.com/goliatone/go-payments/locks/redislock"
	paymentmigrations "github.com/goliatone/go-payments/migrations"
	"github.com/goliatone/go-payments/notify"
	"github.com/goliatone/go-payments/providers/nuvei"
	"github.com/goliatone/go-payments/providers/stripe"
	"github.com/goliatone/go-payments/ratelimit"
	sqlstore "github.com/goliatone/go-payments/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "payments-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rootLogger, err := gozap.New(gozap.Config{Level: cfg.LogLevel, Development: cfg.Development})
	if err != nil {
		return err
	}
	defer func() { _ = rootLogger.Sync() }()
	loggers := gozap.NewProvider(rootLogger)
	logger := loggers.GetLogger("payments-server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := openPersistence(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return err
	}
	profileCacheCfg := repositorycache.DefaultConfig()
	profileCacheCfg.TTL = 5 * time.Minute
	profileCache, err := repositorycache.NewCacheService(profileCacheCfg)
	if err != nil {
		return fmt.Errorf("profile cache: %w", err)
	}
	profiles, err := sqlstore.NewCachedUserProfileReader(factory.LedgerStore(), profileCache)
	if err != nil {
		return err
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	notifiers, closers, err := buildNotifiers(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}()

	service, err := payments.NewService(payments.Config{},
		payments.WithLoggerProvider(loggers),
		payments.WithConfigProvider(core.NewCfgxConfigProvider(core.NewStaticConfigLoader(cfg.Service))),
		payments.WithPersistenceClient(client),
		payments.WithRepositoryFactory(factory),
		payments.WithUserProfileReader(profiles),
		payments.WithProviders(providers...),
		payments.WithNotifiers(notifiers...),
	)
	if err != nil {
		return err
	}

	var sweeperOpts []payments.SweeperOption
	if cfg.RedisURL != "" {
		locker, redisClient, lockErr := redislock.NewFromURL(ctx, cfg.RedisURL)
		if lockErr != nil {
			return lockErr
		}
		defer func() { _ = redisClient.Close() }()
		sweeperOpts = append(sweeperOpts, payments.WithSweepLocker(locker))
	}
	sweeper, err := payments.NewSweeper(service, sweeperOpts...)
	if err != nil {
		return err
	}

	facade, err := payments.NewFacade(service, payments.WithSweepRunner(sweeper))
	if err != nil {
		return err
	}
	commands := gocommandadapter.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := gocommandadapter.RegisterFacade(commands, facade)
	if err != nil {
		return err
	}
	defer subscriptions.Unsubscribe()
	if err := commands.Initialize(); err != nil {
		return err
	}

	router, err := httpapi.NewRouter(service, httpapi.Config{
		InternalAPIKey:    cfg.InternalAPIKey,
		ServiceName:       service.Config().ServiceName,
		DefaultProviderID: cfg.DefaultProvider,
		Limiter: ratelimit.NewKeyedLimiter(ratelimit.Config{
			Scope: "user",
			Rate:  rate.Limit(float64(cfg.CreateRatePerMinute) / 60),
			Burst: cfg.CreateBurst,
		}),
		HealthCheck: func(ctx context.Context) error {
			return client.DB().PingContext(ctx)
		},
		Logger: loggers.GetLogger("payments.http"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sweeper.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("payments server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down payments server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	wg.Wait()
	logger.Info("payments server exited")
	return nil
}

func openPersistence(ctx context.Context, cfg serverConfig) (*persistence.Client, error) {
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	client, err := persistence.New(persistenceConfig{
		driver: "postgres",
		server: cfg.DatabaseURL,
		debug:  cfg.DatabaseDebug,
	}, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	_, err = paymentmigrations.RegisterDialect(ctx, paymentmigrations.DialectPostgres, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

func redirectURLs(cfg serverConfig) core.RedirectURLs {
	return core.RedirectURLs{
		Success: cfg.RedirectSuccess,
		Failure: cfg.RedirectFailure,
		Pending: cfg.RedirectPending,
		Review:  cfg.RedirectReview,
	}
}

func buildProviders(cfg serverConfig) ([]core.Provider, error) {
	var out []core.Provider
	if cfg.NuveiAppCode != "" {
		nuveiCfg := nuvei.DefaultConfig()
		nuveiCfg.Environment = cfg.NuveiEnv
		nuveiCfg.AppCode = cfg.NuveiAppCode
		nuveiCfg.AppKey = cfg.NuveiAppKey
		nuveiCfg.ServerAppCode = cfg.NuveiServerCode
		nuveiCfg.ServerAppKey = cfg.NuveiServerKey
		nuveiCfg.RedirectURLs = redirectURLs(cfg)
		provider, err := payments.NuveiProvider(nuveiCfg)
		if err != nil {
			return nil, err
		}
		out = append(out, provider)
	}
	if cfg.StripeWebhookSecret != "" {
		provider, err := payments.StripeProvider(stripe.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			RedirectURLs:  redirectURLs(cfg),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, provider)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no payment provider configured")
	}
	return out, nil
}

func buildNotifiers(ctx context.Context, cfg serverConfig) ([]core.Notifier, []func() error, error) {
	var (
		notifiers []core.Notifier
		closers   []func() error
	)
	if cfg.TelegramBotToken != "" {
		telegram, err := notify.NewTelegramNotifier(notify.TelegramConfig{BotToken: cfg.TelegramBotToken})
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, telegram)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier, err := notify.NewKafkaNotifier(notify.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, kafkaNotifier)
		closers = append(closers, kafkaNotifier.Close)
	}
	if cfg.SNSTopicARN != "" {
		snsNotifier, err := notify.NewSNSNotifierFromEnv(ctx, cfg.SNSTopicARN)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, snsNotifier)
	}
	return notifiers, closers, nil
}
