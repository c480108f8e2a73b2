package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aurelisajuan/CourtVision/application/gateway"
	infrapersistence "github.com/aurelisajuan/CourtVision/infrastructure/persistence"
	infratools "github.com/aurelisajuan/CourtVision/infrastructure/tools"
	"github.com/aurelisajuan/CourtVision/infrastructure/upstream"
	httpiface "github.com/aurelisajuan/CourtVision/interfaces/http"
	"github.com/aurelisajuan/CourtVision/internal/config"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadYAML("")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Configure logging level
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// Configure logging formatter per environment
	switch cfg.Logging.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logrus.SetReportCaller(cfg.Logging.ReportCaller)

	logrus.WithFields(logrus.Fields{
		"port":               cfg.Server.Port,
		"host":               cfg.Server.Host,
		"upstream":           cfg.UpstreamURL(),
		"enable_persistence": cfg.Database.EnablePersistence,
	}).Info("Starting CourtVision Gateway")

	// Tool registry with the built-in voice tools
	registry, err := infratools.NewDefaultRegistry(cfg.Tools.PaymentBaseURL, cfg.Tools.ResultCacheSize)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize tool registry")
	}

	// Create base provider
	baseProvider := upstream.NewProvider(cfg.UpstreamURL())

	// Wrap with circuit breaker for resilience
	circuitBreakerConfig := upstream.CircuitBreakerConfig{
		Enabled:          cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
	}
	provider := upstream.NewCircuitBreakerProvider(baseProvider, baseProvider, circuitBreakerConfig)

	logrus.WithFields(logrus.Fields{
		"enabled":           circuitBreakerConfig.Enabled,
		"failure_threshold": circuitBreakerConfig.FailureThreshold,
		"timeout":           circuitBreakerConfig.Timeout,
	}).Info("Circuit breaker configured")

	var service *gateway.Service
	var router *httpiface.Router
	var dbManager *infrapersistence.DatabaseManager
	var eventProcessor *infrapersistence.EventProcessor

	if cfg.Database.EnablePersistence {
		dbManager = infrapersistence.NewDatabaseManager()

		if err := dbManager.Connect(ctx, cfg.GetDatabaseDSN()); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}

		if err := dbManager.Migrate(); err != nil {
			logrus.WithError(err).Fatal("Failed to run database migrations")
		}

		callRepo, metricsRepo, invocationRepo := dbManager.GetRepositories()

		eventProcessor = infrapersistence.NewEventProcessor(
			callRepo,
			metricsRepo,
			invocationRepo,
			cfg.Database.Workers,
			cfg.Database.BufferSize,
		)

		if err := eventProcessor.Start(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to start event processor")
		}

		tracker := infrapersistence.NewCallTracker(eventProcessor)

		service = gateway.NewServiceWithTracking(provider, provider, registry, cfg.Persona.Text, tracker)
		router = httpiface.NewRouterWithPersistence(service, cfg.Server.CorsOrigins, callRepo, metricsRepo, dbManager, eventProcessor)

		logrus.Info("Persistence layer initialized successfully")
	} else {
		service = gateway.NewService(provider, provider, registry, cfg.Persona.Text)
		router = httpiface.NewRouter(service, cfg.Server.CorsOrigins)

		logrus.Info("Running without persistence layer")
	}

	ginRouter := router.SetupRoutes()

	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           ginRouter,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Streams stay open for the whole voice turn, so the write
		// timeout has to cover upstream latency plus tool execution.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		logrus.WithField("address", address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-c
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	} else {
		logrus.Info("Server shutdown complete")
	}

	if cfg.Database.EnablePersistence {
		logrus.Info("Shutting down persistence layer...")

		if eventProcessor != nil {
			if err := eventProcessor.Stop(); err != nil {
				logrus.WithError(err).Error("Failed to stop event processor")
			}
		}

		if dbManager != nil {
			if err := dbManager.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close database connection")
			}
		}

		logrus.Info("Persistence layer shutdown complete")
	}
}
