// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the engine
	HTTPPort int

	// Correlation sweeper
	SweepInterval    time.Duration
	SweepMaxBackoff  time.Duration
	SweepBatchSize   int
	MessageRetention time.Duration

	// Upper bound on a single job invocation (scheduled or replayed)
	JobInvokeTimeout time.Duration

	// URL of the process-continuation collaborator
	ContinuationURL string

	// OTLP collector endpoint for traces
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbUrl := os.Getenv("DATABASE_URL")
	if dbUrl == "" {
		return nil, fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}

	port := 6171 // Default
	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	sweepInterval, err := durationEnv("SWEEP_INTERVAL", 1*time.Second)
	if err != nil {
		return nil, err
	}

	sweepMaxBackoff, err := durationEnv("SWEEP_MAX_BACKOFF", 30*time.Second)
	if err != nil {
		return nil, err
	}

	batchSize := 100
	if batchStr := os.Getenv("SWEEP_BATCH_SIZE"); batchStr != "" {
		b, err := strconv.Atoi(batchStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SWEEP_BATCH_SIZE: %w", err)
		}
		batchSize = b
	}

	messageRetention, err := durationEnv("MESSAGE_RETENTION", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}

	jobInvokeTimeout, err := durationEnv("JOB_INVOKE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	continuationURL := os.Getenv("CONTINUATION_URL")
	if continuationURL == "" {
		continuationURL = "http://localhost:6172"
	}

	otelEndpoint := os.Getenv("OTEL_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}

	return &Config{
		DatabaseURL:      dbUrl,
		HTTPPort:         port,
		SweepInterval:    sweepInterval,
		SweepMaxBackoff:  sweepMaxBackoff,
		SweepBatchSize:   batchSize,
		MessageRetention: messageRetention,
		JobInvokeTimeout: jobInvokeTimeout,
		ContinuationURL:  continuationURL,
		OTELEndpoint:     otelEndpoint,
	}, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}
