// Package main is the entry point for the flowplane engine: the event
// correlation sweeper, the job retry coordinator, and the HTTP API in one
// process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowplane/internal/config"
	"flowplane/internal/correlate"
	"flowplane/internal/engine"
	"flowplane/internal/logger"
	"flowplane/internal/observability"
	"flowplane/internal/retry"
	"flowplane/internal/store/postgres"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	// Load Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	// Setup Database
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "flowplane-engine", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics("flowplane-engine")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Observable gauges query the DB only when scraped.
	meter := otel.Meter("flowplane-engine")
	_, err = meter.Int64ObservableGauge("flowplane.messages.pending",
		metric.WithDescription("Current number of undelivered message instances"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := store.CountPendingMessages(ctx)
			if err != nil {
				log.Printf("Failed to count pending messages: %v", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register pending messages metric: %v", err)
	}

	_, err = meter.Int64ObservableGauge("flowplane.jobs.failing",
		metric.WithDescription("Current number of failing job descriptors"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := store.CountFailingJobs(ctx)
			if err != nil {
				log.Printf("Failed to count failing jobs: %v", err)
				return nil
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register failing jobs metric: %v", err)
	}

	// Job scheduler and retry coordinator
	scheduler := retry.NewScheduler(cfg.JobInvokeTimeout, slogger)
	retryCoord := retry.NewCoordinator(store, scheduler, cfg.JobInvokeTimeout, slogger)
	scheduler.SetReporter(retryCoord)
	retry.RegisterBuiltinHandlers(scheduler, slogger)

	// Cron entries live only in memory, so persisted recurring jobs must be
	// re-armed on every start.
	armed, err := retry.RearmRecurring(ctx, store, scheduler, slogger)
	if err != nil {
		log.Fatalf("Failed to re-arm recurring jobs: %v", err)
	}
	if armed > 0 {
		log.Printf("Re-armed %d recurring jobs", armed)
	}

	scheduler.Start()
	defer scheduler.Stop()

	// Correlation coordinator and sweeper
	resumer := correlate.NewHTTPResumer(cfg.ContinuationURL)
	coordinator := correlate.NewCoordinator(store, resumer, slogger)
	sweeper := correlate.NewSweeper(store, coordinator, correlate.SweeperConfig{
		PollInterval:     cfg.SweepInterval,
		MaxBackoff:       cfg.SweepMaxBackoff,
		BatchSize:        cfg.SweepBatchSize,
		MessageRetention: cfg.MessageRetention,
	}, slogger)

	go sweeper.Run(ctx)

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := engine.New(addr, store, coordinator, retryCoord, scheduler, sweeper.Kick, metricsHandler, slogger)

	go func() {
		log.Printf("Flowplane Engine starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down engine...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	cancel()
	<-sweeper.Done()
	log.Println("Server exited properly")
}
