// Package engine contains the HTTP surface for the correlation engine.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"flowplane/internal/engine/handlers"
	"flowplane/internal/engine/middleware"
)

// Server is the HTTP server for the engine API.
type Server struct {
	httpServer *http.Server
}

// New creates a new engine server.
func New(addr string, store handlers.StoreFactory, correlator handlers.Correlator, retryCoord handlers.RetryCoordinator, scheduler handlers.Scheduler, kick func(), metricsHandler http.Handler, slogger *slog.Logger) *Server {
	h := handlers.New(store, correlator, retryCoord, scheduler, kick)
	authMW := middleware.AuthMiddleware(store)
	rateMW := middleware.RateLimitMiddleware()

	authed := func(next http.HandlerFunc) http.Handler {
		return authMW(rateMW(next))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /tenants", h.CreateTenant)

	// Event correlation surface
	mux.Handle("POST /waits", authed(h.RegisterWait))
	mux.Handle("GET /waits", authed(h.ListWaits))
	mux.Handle("DELETE /waits/{id}", authed(h.CancelWait))
	mux.Handle("POST /messages", authed(h.ThrowMessage))
	mux.Handle("GET /messages/pending", authed(h.ListPendingMessages))
	mux.Handle("POST /signals", authed(h.ThrowSignal))
	mux.Handle("POST /errors", authed(h.ThrowError))

	// Job failure surface
	mux.Handle("POST /jobs", authed(h.CreateJob))
	mux.Handle("GET /jobs/failing", authed(h.ListFailingJobs))
	mux.Handle("POST /jobs/{id}/replay", authed(h.ReplayJob))

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	// Every call gets a request id and one access log line.
	handler := middleware.RequestIDMiddleware(slogger)(mux)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
