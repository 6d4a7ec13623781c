package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "recurring-billing/docs"
	"recurring-billing/internal/api"
	"recurring-billing/internal/api/middleware"
	"recurring-billing/internal/batch"
	"recurring-billing/internal/config"
	"recurring-billing/internal/domain/customer"
	"recurring-billing/internal/domain/invoice"
	"recurring-billing/internal/domain/schedule"
	"recurring-billing/internal/event"
	"recurring-billing/internal/infrastructure/database/postgres"
	"recurring-billing/internal/infrastructure/logging"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// @title Recurring Billing API
// @version 1.0
// @description Recurring charge scheduling and invoice generation service.

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, logger := initializeApp()

	dbPool := initializeDatabase(cfg, logger)
	defer closeDatabase(dbPool, logger)

	amqpConn, publisher := initializePublisher(cfg, logger)
	if amqpConn != nil {
		defer amqpConn.Close()
	}

	redisClient := initializeRedisClient(cfg, logger)
	defer closeRedisClient(redisClient, logger)
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg.Server.RateLimit, redisClient, logger)

	services := initializeServices(dbPool, publisher, logger)

	cronScheduler := startBatchJobs(cfg, logger, services, publisher)
	router := api.SetupRouter(rateLimiter, services.scheduleService, services.invoiceService, services.generator, cfg, logger)

	srv, serverErrors, shutdownChan := startServer(cfg, router, logger)
	handleShutdown(srv, cronScheduler, shutdownChan, serverErrors, logger)
}

func initializeApp() (*config.Config, *slog.Logger) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logger)
	slog.SetDefault(logger)
	logger.Info("Application starting...", "config_source", viper.ConfigFileUsed())

	return cfg, logger
}

func initializeDatabase(cfg *config.Config, logger *slog.Logger) *pgxpool.Pool {
	logger.Info("Initializing database connection pool...")
	dbPool, err := postgres.NewConnectionPool(context.Background(), cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	return dbPool
}

func closeDatabase(dbPool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("Closing database connection pool...")
	dbPool.Close()
}

// initializePublisher dials RabbitMQ when configured. The service stays up
// without a broker; events are simply not published.
func initializePublisher(cfg *config.Config, logger *slog.Logger) (*amqp.Connection, event.EventPublisher) {
	if cfg.RabbitMQ.Host == "" {
		logger.Warn("RabbitMQ host not configured, event publishing disabled.")
		return nil, nil
	}

	url := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		cfg.RabbitMQ.Username, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)
	conn, err := amqp.Dial(url)
	if err != nil {
		logger.Warn("Failed to connect to RabbitMQ, event publishing disabled.", "error", err)
		return nil, nil
	}

	publisher, err := event.NewRabbitMQEventPublisher(conn, cfg.RabbitMQ.ExchangeName, logger)
	if err != nil {
		logger.Warn("Failed to initialize event publisher, event publishing disabled.", "error", err)
		conn.Close()
		return nil, nil
	}
	return conn, publisher
}

// initializeRedisClient connects the shared rate-limit backend. Without an
// address the limiter falls back to its in-process token bucket.
func initializeRedisClient(cfg *config.Config, logger *slog.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		logger.Warn("Redis address not configured, rate limiting falls back to in-process limiter.")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if status := rdb.Ping(ctx); status.Err() != nil {
		logger.Warn("Failed to connect to Redis, rate limiting falls back to in-process limiter.",
			"error", status.Err(), "addr", cfg.Redis.Addr)
		_ = rdb.Close()
		return nil
	}

	logger.Info("Redis client connected successfully.", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return rdb
}

func closeRedisClient(redisClient *redis.Client, logger *slog.Logger) {
	if redisClient == nil {
		return
	}
	logger.Info("Closing Redis client connection...")
	if err := redisClient.Close(); err != nil {
		logger.Error("Failed to close Redis client connection gracefully", "error", err)
	}
}

type appServices struct {
	scheduleRepo    schedule.Repository
	invoiceRepo     invoice.Repository
	customerService customer.CustomerService
	scheduleService schedule.ScheduleService
	invoiceService  invoice.InvoiceService
	generator       invoice.Generator
}

func initializeServices(dbPool *pgxpool.Pool, publisher event.EventPublisher, logger *slog.Logger) appServices {
	logger.Info("Initializing application components...")
	scheduleRepo := postgres.NewScheduleRepository(dbPool, logger)
	invoiceRepo := postgres.NewInvoiceRepository(dbPool, logger)
	customerRepo := postgres.NewCustomerRepository(dbPool, logger)
	customerService := customer.NewCustomerService(customerRepo, logger)
	return appServices{
		scheduleRepo:    scheduleRepo,
		invoiceRepo:     invoiceRepo,
		customerService: customerService,
		scheduleService: schedule.NewScheduleService(scheduleRepo, customerService, publisher, logger),
		invoiceService:  invoice.NewInvoiceService(invoiceRepo, scheduleRepo, logger),
		generator:       invoice.NewGenerator(scheduleRepo, invoiceRepo, customerService, publisher, logger),
	}
}

func startServer(cfg *config.Config, router http.Handler, logger *slog.Logger) (*http.Server, <-chan error, <-chan os.Signal) {
	logger.Info("Setting up HTTP server...", "port", cfg.Server.Port)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server listening on port %d", cfg.Server.Port))
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			serverErrors <- err
		} else {
			logger.Info("Server closed gracefully.")
			serverErrors <- nil
		}
	}()
	return srv, serverErrors, shutdownChan
}

func handleShutdown(srv *http.Server, cronScheduler *cron.Cron, shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) {
	logger.Info("Shutdown handler started. Waiting for signal or server error...")

	var triggerReason string
	select {
	case sig := <-shutdownChan:
		triggerReason = "signal: " + sig.String()
		logger.Info("Shutdown signal received.", "signal", sig.String())
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server exited unexpectedly before signal", "error", err)
			os.Exit(1)
		}
		triggerReason = "server exited"
		logger.Info("Server goroutine finished before signal.", "error", err)
	}

	logger.Info("Starting graceful shutdown...", "trigger", triggerReason)

	logger.Info("Stopping cron scheduler...")
	cronCtx := cronScheduler.Stop()
	select {
	case <-cronCtx.Done():
		logger.Info("Cron scheduler stopped gracefully.")
	case <-time.After(15 * time.Second):
		logger.Warn("Cron scheduler shutdown timed out.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server graceful shutdown failed", "error", err)
		} else {
			logger.Info("HTTP server shutdown initiated.")
		}
		if err := srv.Close(); err != nil {
			logger.Error("HTTP server forced close failed", "error", err)
		}
	} else {
		logger.Info("HTTP server gracefully stopped.")
	}
	logger.Info("Waiting for server goroutine to confirm exit...")
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Server goroutine exited with unexpected error after shutdown", "error", err)
		} else {
			logger.Info("Server goroutine confirmed exit.")
		}
	case <-time.After(5 * time.Second):
		logger.Warn("Timed out waiting for server goroutine confirmation.")
	}

	logger.Info("Application shutdown process complete.")
}

type runnableJob interface {
	Run(ctx context.Context) error
}

func startBatchJobs(cfg *config.Config, logger *slog.Logger, services appServices, publisher event.EventPublisher) *cron.Cron {
	logger.Info("Initializing batch job scheduler...")
	c := cron.New()

	jobTimeout := cfg.Batch.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 1 * time.Hour
	}

	generationJob := batch.NewInvoiceGenerationJob(
		services.scheduleRepo, services.generator, logger,
		cfg.Batch.WorkerCount, cfg.Batch.ScheduleTimeout)
	scheduleJob(c, logger, "InvoiceGeneration", cfg.Batch.GenerationSchedule, "0 1 * * *", jobTimeout, generationJob)

	if publisher != nil {
		reminderJob := batch.NewPaymentReminderJob(services.scheduleRepo, services.customerService, publisher, logger)
		scheduleJob(c, logger, "PaymentReminder", cfg.Batch.ReminderSchedule, "0 8 * * *", jobTimeout, reminderJob)
	} else {
		logger.Warn("Event publisher unavailable, payment reminder job not scheduled.")
	}

	sweepJob := batch.NewOverdueSweepJob(services.invoiceRepo, logger)
	scheduleJob(c, logger, "OverdueSweep", cfg.Batch.OverdueSweepSchedule, "30 0 * * *", jobTimeout, sweepJob)

	c.Start()
	logger.Info("Cron scheduler started.")
	return c
}

func scheduleJob(c *cron.Cron, logger *slog.Logger, name, scheduleSpec, defaultSpec string, jobTimeout time.Duration, job runnableJob) {
	if scheduleSpec == "" {
		scheduleSpec = defaultSpec
		logger.Warn("Batch job schedule not configured, using default", "job_name", name, "schedule", scheduleSpec)
	}

	jobID, err := c.AddJob(scheduleSpec, cron.FuncJob(func() {
		jobLogger := logger.With("job_name", name)
		jobLogger.Info("Cron triggered: Running batch job.")

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if runErr := job.Run(ctx); runErr != nil {
			jobLogger.Error("Batch job finished with error", slog.Any("error", runErr))
		} else {
			jobLogger.Info("Batch job finished successfully.")
		}
	}))

	if err != nil {
		logger.Error("Failed to schedule batch job", "job_name", name, "schedule", scheduleSpec, slog.Any("error", err))
	} else {
		logger.Info("Scheduled batch job", "job_name", name, "schedule", scheduleSpec, "job_id", jobID)
	}
}
