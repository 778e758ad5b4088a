package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/servicefee/internal/audit"
	"github.com/cuongbtq/servicefee/internal/config"
	"github.com/cuongbtq/servicefee/internal/jobstore"
	"github.com/cuongbtq/servicefee/internal/payment/pricing"
	"github.com/cuongbtq/servicefee/internal/payment/reference"
	"github.com/cuongbtq/servicefee/internal/payment/service"
	"github.com/cuongbtq/servicefee/internal/payment/storage"
	"github.com/cuongbtq/servicefee/internal/payment/sweeper"
	"github.com/cuongbtq/servicefee/internal/worker"
	workerstorage "github.com/cuongbtq/servicefee/internal/worker/storage"
	"github.com/cuongbtq/servicefee/shared/logger"
	"github.com/cuongbtq/servicefee/shared/postgresql"
	"github.com/cuongbtq/servicefee/shared/rabbitmq"
	"github.com/cuongbtq/servicefee/shared/tracing"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging, cfg.App.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	tracer, err := initTracing(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			appLogger.Warn("Failed to flush traces", slog.Any("error", err))
		}
	}()

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	svc, err := initPaymentService(cfg, appLogger.Logger, dbClient, rabbitClient)
	if err != nil {
		return fmt.Errorf("failed to initialize payment service: %w", err)
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Events:        workerstorage.NewStorage(dbClient.GetDB(), appLogger.Logger),
		Consumer:      rabbitClient,
		Sweeper:       sweeper.New(svc, cfg.Payment.SweepInterval, cfg.Payment.SweepBatchSize, appLogger.Logger),
		WorkerID:      workerID(cfg.RabbitMQ.Consumer.Tag),
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		EventTimeout:  cfg.Worker.EventTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.Duration("sweep_interval", cfg.Payment.SweepInterval),
		slog.Int("sweep_batch_size", cfg.Payment.SweepBatchSize),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// workerID prefers the configured consumer tag and falls back to host and pid
func workerID(tag string) string {
	if tag != "" {
		return tag
	}
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// initPaymentService wires the orchestrator the sweeper expires payments through.
// The worker never verifies or builds QR payloads, so neither is configured here.
func initPaymentService(cfg *config.Config, logger *slog.Logger, dbClient *postgresql.Client, rabbitClient *rabbitmq.Client) (*service.Service, error) {
	engine, err := pricing.NewEngineFromConfig(&cfg.Pricing)
	if err != nil {
		return nil, err
	}

	return service.New(service.Config{
		Store:    storage.NewPostgres(dbClient),
		Jobs:     jobstore.NewPostgres(dbClient, logger),
		Audit:    audit.Multi{audit.NewLogSink(logger), audit.NewRabbitMQSink(rabbitClient, cfg.Audit.PublishTimeout, logger)},
		Pricing:  engine,
		Payloads: reference.NewPayloads(nil),
		IDs:      reference.NewGenerator(nil),
		Metrics:  service.NewMetrics(),
		Logger:   logger,

		PaymentTTL: cfg.Payment.TTL,
	})
}

// initTracing installs the OpenTelemetry provider. A disabled config yields a no-op provider.
func initTracing(cfg *config.Config, logger *slog.Logger) (*tracing.Provider, error) {
	return tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.App.Name,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		Exporter:     cfg.Tracing.Exporter,
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Insecure:     cfg.Tracing.Insecure,
	}, logger)
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig, serviceName string) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      serviceName,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client that carries audit events
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
