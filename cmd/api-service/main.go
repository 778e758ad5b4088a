package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/servicefee/internal/api/handler"
	"github.com/cuongbtq/servicefee/internal/api/router"
	"github.com/cuongbtq/servicefee/internal/audit"
	"github.com/cuongbtq/servicefee/internal/config"
	"github.com/cuongbtq/servicefee/internal/jobstore"
	"github.com/cuongbtq/servicefee/internal/payment/pricing"
	"github.com/cuongbtq/servicefee/internal/payment/reference"
	"github.com/cuongbtq/servicefee/internal/payment/service"
	"github.com/cuongbtq/servicefee/internal/payment/storage"
	"github.com/cuongbtq/servicefee/internal/payment/throttle"
	"github.com/cuongbtq/servicefee/internal/payment/verifier"
	"github.com/cuongbtq/servicefee/internal/payment/webhook"
	"github.com/cuongbtq/servicefee/migrations"
	"github.com/cuongbtq/servicefee/shared/logger"
	"github.com/cuongbtq/servicefee/shared/postgresql"
	"github.com/cuongbtq/servicefee/shared/rabbitmq"
	"github.com/cuongbtq/servicefee/shared/redis"
	"github.com/cuongbtq/servicefee/shared/tracing"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	migrate := flag.Bool("migrate", false, "Apply database migrations before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging, cfg.App.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
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

	if *migrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := migrations.Apply(migrateCtx, dbClient.GetDB())
		cancel()
		if err != nil {
			return err
		}
		appLogger.Info("Database migrations applied")
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = initRedis(&cfg.Redis, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()
	}

	svc, err := initPaymentService(cfg, appLogger.Logger, dbClient, rabbitClient, redisClient)
	if err != nil {
		return fmt.Errorf("failed to initialize payment service: %w", err)
	}

	webhookVerifier, err := webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.SignatureHeader)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook verifier: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := svc.Metrics().Register(registry); err != nil {
		return fmt.Errorf("failed to register payment metrics: %w", err)
	}
	httpMetrics := router.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	healthChecks := []handler.HealthCheck{
		{Name: "database", Check: dbClient.HealthCheck},
		{Name: "rabbitmq", Check: func(ctx context.Context) error {
			if !rabbitClient.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}},
	}
	if redisClient != nil {
		healthChecks = append(healthChecks, handler.HealthCheck{Name: "redis", Check: redisClient.HealthCheck})
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:          appLogger.Logger,
		Payments:        svc,
		WebhookVerifier: webhookVerifier,
		WebhookMetrics:  svc.Metrics(),
		HealthChecks:    healthChecks,
	}, httpMetrics, registry)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, cfg.App.Name),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.String("verification_backend", cfg.Verification.Backend),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initPaymentService wires the orchestrator with its Postgres stores and adapters
func initPaymentService(cfg *config.Config, logger *slog.Logger, dbClient *postgresql.Client, rabbitClient *rabbitmq.Client, redisClient *redis.Client) (*service.Service, error) {
	engine, err := pricing.NewEngineFromConfig(&cfg.Pricing)
	if err != nil {
		return nil, err
	}

	promptPay, err := reference.NewPromptPay(cfg.PromptPay.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("invalid promptpay merchant: %w", err)
	}

	v, err := verifier.NewRegistry().Build(verifierConfig(&cfg.Verification), logger)
	if err != nil {
		return nil, err
	}

	var limiter throttle.Throttle
	if redisClient != nil {
		limiter = throttle.NewRedis(redisClient, cfg.Verification.PollInterval, logger)
	} else {
		limiter = throttle.NewMemory(cfg.Verification.PollInterval, cfg.Verification.ThrottleMaxKeys, nil)
	}

	return service.New(service.Config{
		Store:    storage.NewPostgres(dbClient),
		Jobs:     jobstore.NewPostgres(dbClient, logger),
		Audit:    audit.Multi{audit.NewLogSink(logger), audit.NewRabbitMQSink(rabbitClient, cfg.Audit.PublishTimeout, logger)},
		Verifier: v,
		Throttle: limiter,
		Pricing:  engine,
		Payloads: reference.NewPayloads(promptPay),
		IDs:      reference.NewGenerator(nil),
		Metrics:  service.NewMetrics(),
		Logger:   logger,

		PaymentTTL:    cfg.Payment.TTL,
		VerifyTimeout: cfg.Verification.Timeout,
	})
}

func verifierConfig(cfg *config.VerificationConfig) verifier.Config {
	return verifier.Config{
		Backend: cfg.Backend,
		Mock: verifier.MockConfig{
			AutoApproveAfter: cfg.Mock.AutoApproveAfter,
			Outcome:          verifier.Outcome(cfg.Mock.Outcome),
		},
		Gateway: verifier.GatewayConfig{
			BaseURL:           cfg.Gateway.BaseURL,
			APIKey:            cfg.Gateway.APIKey,
			Timeout:           cfg.Gateway.Timeout,
			RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
			Burst:             cfg.Gateway.Burst,
		},
		Midtrans: verifier.MidtransConfig{
			ServerKey:    cfg.Midtrans.ServerKey,
			IsProduction: cfg.Midtrans.IsProduction,
		},
		Stripe: verifier.StripeConfig{SecretKey: cfg.Stripe.SecretKey},
	}
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

// initRabbitMQ initializes the RabbitMQ client used to publish audit events
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

// initRedis connects the client backing the verification throttle
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.Config{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
}
