package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"queuegate/pkg/config"
	"queuegate/pkg/contracts"
	"queuegate/pkg/middleware"

	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
)

// Runner is a background loop that blocks until ctx is cancelled.
type Runner func(ctx context.Context) error

type namedRunner struct {
	name string
	run  Runner
}

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore middleware.IdempotencyStore
	rateLimiter      *middleware.UserRateLimiter
	healthHandler    http.Handler
	appHttpHandler   http.Handler
	streamHandler    http.Handler
	runners          []namedRunner
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

// SetApp wires the HTTP side. appHandler routes go through the full
// middleware stack; streamHandler routes skip the timeout and idempotency
// layers since they hold the connection open. Either may be nil.
func (a *Application) SetApp(appHandler contracts.Handler, streamHandler contracts.Handler) {
	a.setHealthHandler()
	if appHandler != nil {
		a.setAppHandler(appHandler)
	}
	if streamHandler != nil {
		a.setStreamHandler(streamHandler)
	}
	a.setAppServer()
}

// AddRunner registers a loop started by Run and cancelled on shutdown.
func (a *Application) AddRunner(name string, run Runner) {
	a.runners = append(a.runners, namedRunner{name: name, run: run})
}

func (a *Application) setHealthHandler() {
	healthRouter := httprouter.New()
	var redisClient redis.UniversalClient
	if a.cfg.Client.Redis != nil {
		redisClient = a.cfg.Client.Redis
	}
	NewHealthHandler(a.cfg.Client.Mongo, redisClient, a.cfg.Log).RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandler contracts.Handler) {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	if a.cfg.Client.Redis != nil {
		a.idempotencyStore = middleware.NewRedisIdempotencyStore(a.cfg.Client.Redis, a.cfg.IdempotencyTTL)
	} else {
		a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	}
	a.rateLimiter = a.userRateLimiter()

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.Idempotency(a.idempotencyStore, "Idempotency-Key")(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.UserRateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full security middleware stack")
}

func (a *Application) setStreamHandler(streamHandler contracts.Handler) {
	streamRouter := httprouter.New()
	streamHandler.RegisterRoutes(streamRouter)

	if a.rateLimiter == nil {
		a.rateLimiter = a.userRateLimiter()
	}

	var streamHTTPHandler http.Handler = streamRouter
	streamHTTPHandler = middleware.UserRateLimit(a.rateLimiter)(streamHTTPHandler)
	streamHTTPHandler = middleware.RequestLogging(a.cfg.Log)(streamHTTPHandler)
	streamHTTPHandler = middleware.Recovery(a.cfg.Log)(streamHTTPHandler)
	a.streamHandler = streamHTTPHandler
	a.cfg.Log.Info("Streaming endpoints configured without request timeout")
}

func (a *Application) userRateLimiter() *middleware.UserRateLimiter {
	return middleware.NewUserRateLimiter(
		a.cfg.RateLimitRequests,
		a.cfg.RateLimitWindow,
		middleware.DefaultUserExtractor,
		a.cfg.Log,
	)
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	if a.appHttpHandler != nil {
		mux.Handle("/", a.appHttpHandler)
	}
	if a.streamHandler != nil {
		mux.Handle("/api/v1/notifications/", a.streamHandler)
	}

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

// Handler exposes the configured mux, mainly for tests.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

// Run serves HTTP and every registered runner until a signal arrives or one
// of them fails, then shuts everything down.
func (a *Application) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrors := make(chan error, 1)
	runnerErrors := make(chan error, len(a.runners))

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	var wg sync.WaitGroup
	for _, r := range a.runners {
		wg.Add(1)
		go func(r namedRunner) {
			defer wg.Done()
			a.cfg.Log.Info("Starting background runner", "runner", r.name)
			if err := r.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.cfg.Log.Error("Background runner failed", "runner", r.name, "error", err)
				runnerErrors <- err
				return
			}
			a.cfg.Log.Info("Background runner stopped", "runner", r.name)
		}(r)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			a.cfg.Log.Error("HTTP server failed", "error", err)
		}

	case err := <-runnerErrors:
		a.cfg.Log.Error("Shutting down after runner failure", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
	}

	cancel()
	a.gracefulShutdown(&wg)
}

func (a *Application) gracefulShutdown(runners *sync.WaitGroup) {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	done := make(chan struct{})
	go func() {
		runners.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.cfg.Log.Warn("Background runners did not stop before the shutdown timeout")
	}
	if a.idempotencyStore != nil {
		a.idempotencyStore.Stop()
	}
	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
	a.cfg.Log.Info("Background workers stopped")

	a.cfg.GracefulShutdown(ctx)
	a.cfg.Log.Info("Server stopped gracefully")
}
