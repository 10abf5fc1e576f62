package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appInventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/config"
	domainCart "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/cart"
	domainInventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domainOrder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domainOutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	domainPayment "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	domainSaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
	infraObs "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/redis"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/zookeeper"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	httppresentation "github.com/Zhima-Mochi/minishop-fulfillment/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-fulfillment/internal/presentation/worker"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fulfillment: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Env,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        cfg.Telemetry.Headers,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}

	baseLogger, err := zaplogger.New(zaplogger.Options{
		Level:          cfg.Log.Level,
		File:           cfg.Log.File,
		LoggerProvider: providers.Logger,
	},
		observability.F("service", cfg.Service.Name),
		observability.F("env", cfg.Service.Env),
		observability.F("instance", cfg.Service.InstanceID),
	)
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger.Zap())

	counters, histograms := prometrics.Standard(prometrics.New(nil, "", ""))
	tel := infraObs.New(
		infraObs.WithTracer(oteltrace.New(providers.Tracer, cfg.Service.Name)),
		infraObs.WithLogger(baseLogger),
		infraObs.WithInstruments(counters, histograms),
	)
	systemLogger := baseLogger.With(observability.F("component", "main"))

	var closers []func(context.Context) error
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](shutdownCtx); err != nil {
				systemLogger.Warn("shutdown_step_failed", observability.F("error", err))
			}
		}
		if err := providers.Shutdown(shutdownCtx); err != nil {
			systemLogger.Warn("telemetry_shutdown_failed", observability.F("error", err))
		}
	}()

	stores, err := buildStores(ctx, cfg, systemLogger)
	if err != nil {
		return err
	}
	closers = append(closers, stores.close...)

	bus := outbox.NewBus(baseLogger, outbox.BusConfig{
		QueueSize:      cfg.Outbox.BusQueue,
		Concurrency:    cfg.Outbox.BusConcurrency,
		HandlerTimeout: cfg.Outbox.HandlerTimeout,
	})
	publisher := domainOutbox.Publisher(bus)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, providers.Tracer)
		if err != nil {
			return err
		}
		kafkaPublisher := kafka.NewPublisher(producer, nil, cfg.Service.Name, baseLogger)
		closers = append(closers, func(context.Context) error { return kafkaPublisher.Close() })
		publisher = outbox.Fanout{bus, kafkaPublisher}
		systemLogger.Info("kafka_publisher_enabled", observability.F("brokers", cfg.Kafka.Brokers))
	}

	var leader appInventory.Leader
	if len(cfg.ZooKeeper.Servers) > 0 {
		conn, err := zookeeper.Connect(cfg.ZooKeeper.Servers, cfg.ZooKeeper.SessionTimeout)
		if err != nil {
			return err
		}
		zkLeader := zookeeper.NewLeader(conn, cfg.ZooKeeper.LeaderPath, cfg.Service.InstanceID)
		closers = append(closers, func(context.Context) error {
			err := zkLeader.Resign()
			conn.Close()
			return err
		})
		leader = zkLeader
	}

	engine := appInventory.NewEngine(stores.ledger, tel,
		appInventory.WithRetry(cfg.Engine.ConflictRetries, cfg.Engine.RetryInterval),
	)
	orchestrator := appOrder.NewOrchestrator(appOrder.Dependencies{
		Orders:    stores.orders,
		Sagas:     stores.sagas,
		Inventory: engine,
		Payments:  paymentGateway(cfg, providers),
		Cart:      cartClearer(cfg, providers),
		Publisher: publisher,
		Leader:    leader,
	}, appOrder.Config{
		Timeouts: appOrder.Timeouts{
			Inventory: cfg.Saga.InventoryTimeout,
			Payment:   cfg.Saga.PaymentTimeout,
			Cart:      cfg.Saga.CartTimeout,
		},
		Hold:         cfg.Saga.Hold,
		StaleAfter:   cfg.Saga.RecoverAfter,
		RecoverEvery: cfg.Saga.RecoverEvery,
	}, tel)

	alertWorker := appInventory.NewAlertWorker(bus, func(useCase string, h domainOutbox.Handler) domainOutbox.Handler {
		return workerpresentation.Handle(useCase, tel, h)
	}, tel)
	alertWorker.Start()

	relay := outbox.NewRelay(stores.outbox, publisher, outbox.RelayConfig{
		Interval: cfg.Outbox.RelayInterval,
		Batch:    cfg.Outbox.RelayBatch,
	}, tel)
	sweeper := appInventory.NewSweeper(engine, stores.ledger, leader, appInventory.SweeperConfig{
		Interval:       cfg.Sweeper.Interval,
		BatchSize:      cfg.Sweeper.BatchSize,
		Workers:        cfg.Sweeper.Workers,
		PurgeRetention: cfg.Sweeper.PurgeRetention,
		PurgeEvery:     cfg.Sweeper.PurgeEvery,
	}, tel)

	handler := httppresentation.NewHandler(engine, orchestrator, promhttp.Handler(), providers.Tracer, tel)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	bus.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	if cfg.Sweeper.Enabled {
		g.Go(func() error { return sweeper.Run(gctx) })
	}
	if cfg.Saga.Recover {
		g.Go(func() error { return orchestrator.RunRecovery(gctx) })
	}
	g.Go(func() error {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			systemLogger.Error("http_server_shutdown_error", observability.F("error", err))
			return err
		}
		systemLogger.Info("http_server_stopped")
		return nil
	})

	err = g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	bus.Stop(stopCtx)
	cancel()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type stores struct {
	ledger domainInventory.Ledger
	outbox domainOutbox.Store
	orders domainOrder.Repository
	sagas  domainSaga.Store
	close  []func(context.Context) error
}

func buildStores(ctx context.Context, cfg config.Config, log observability.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.Ledger.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Ledger.DatabaseURL, cfg.Ledger.MaxConns)
		if err != nil {
			return nil, err
		}
		s.close = append(s.close, func(context.Context) error { pool.Close(); return nil })
		if cfg.Ledger.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return nil, err
			}
		}
		ledger := postgres.NewLedger(pool)
		s.ledger, s.outbox = ledger, ledger
		s.orders = postgres.NewOrderRepository(pool)
	default:
		ledger := memory.NewLedger()
		s.ledger, s.outbox = ledger, ledger
		s.orders = memory.NewOrderRepository()
	}
	log.Info("ledger_selected", observability.F("driver", cfg.Ledger.Driver))

	switch cfg.SagaStore.Driver {
	case config.DriverRedis:
		client, err := redis.NewClient(ctx, cfg.SagaStore.RedisAddr, cfg.SagaStore.RedisPass, cfg.SagaStore.RedisDB)
		if err != nil {
			return nil, err
		}
		s.close = append(s.close, func(context.Context) error { return client.Close() })
		s.sagas = redis.NewSagaStore(client, cfg.SagaStore.FinishedTTL)
	default:
		s.sagas = memory.NewSagaStore()
	}
	log.Info("saga_store_selected", observability.F("driver", cfg.SagaStore.Driver))

	return s, nil
}

func paymentGateway(cfg config.Config, providers *telemetry.Providers) domainPayment.Gateway {
	if cfg.Payment.URL != "" {
		return payment.NewHTTPGateway(cfg.Payment.URL, providers.Tracer)
	}
	return payment.NewSimulatedGateway(cfg.Payment.SuccessRate, cfg.Payment.Latency)
}

func cartClearer(cfg config.Config, providers *telemetry.Providers) domainCart.Clearer {
	if cfg.Cart.URL != "" {
		return cart.NewHTTPClearer(cfg.Cart.URL, providers.Tracer)
	}
	return cart.Nop{}
}
