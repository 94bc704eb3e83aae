// Coffee checkout - runs the checkout wizard for the storefront.
// Serves the REST API and the MCP tool surface from one process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"coffee-checkout/internal/adapter"
	"coffee-checkout/internal/address"
	"coffee-checkout/internal/backend"
	"coffee-checkout/internal/cart"
	"coffee-checkout/internal/checkout"
	"coffee-checkout/internal/config"
	"coffee-checkout/internal/coupon"
	"coffee-checkout/internal/handler"
	"coffee-checkout/internal/middleware"
	"coffee-checkout/internal/payment"
	"coffee-checkout/internal/session"
	"coffee-checkout/internal/shipping"
	"coffee-checkout/internal/transport"
)

// sweepInterval is how often idle wizards are evicted.
const sweepInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Load configuration
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("store_id", cfg.StoreID),
		slog.String("environment", cfg.Environment),
		slog.String("origin_postal_code", cfg.Checkout.OriginPostalCode),
		slog.Bool("redis_carts", cfg.Redis.Addr != ""),
		slog.Bool("postal_lookup", cfg.PostalLookupURL != ""),
	)

	deps, closeDeps, err := buildDeps(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating collaborators: %w", err)
	}
	defer closeDeps()

	checkoutCfg := cfg.BuildCheckoutConfig()
	start := func(ctx context.Context, userID string) (*checkout.Orchestrator, error) {
		return checkout.Start(ctx, deps, checkoutCfg, userID)
	}

	registry := checkout.NewRegistry(cfg.SessionIdle(), time.Now, logger)
	go registry.Run(ctx, sweepInterval)

	// Both cart stores accept writes; seeding is how carts reach a
	// deployment without a storefront sharing the Redis instance.
	carts, _ := deps.Cart.(adapter.CartWriter)
	h := handler.New(registry, start, deps.Lookup, carts, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → tracing → logging → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Tracing(),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stop()

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped", slog.Int("open_sessions", registry.Len()))
	return nil
}

// buildDeps creates the production collaborators. The returned func
// releases the Redis connection, if any.
func buildDeps(cfg *config.Config, logger *slog.Logger) (checkout.Deps, func(), error) {
	closer := func() {}

	b, err := backend.New(cfg.BuildBackendConfig(logger))
	if err != nil {
		return checkout.Deps{}, closer, err
	}

	deps := checkout.Deps{
		Sessions: session.NewManager(b, session.Options{
			MinAPIVersion: cfg.Backend.MinAPIVersion,
			Logger:        logger,
		}),
		Shipping: shipping.NewClient(b, shipping.Options{Logger: logger}),
		Coupons:  coupon.NewClient(b, logger),
		Payments: payment.NewGateway(b, cfg.BuildPaymentConfig(logger)),
		Logger:   logger,
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		deps.Cart = cart.NewRedisStore(rdb, cart.DefaultTTL)
		closer = func() { rdb.Close() }
	} else {
		logger.Warn("REDIS_ADDR not set, carts are kept in memory")
		deps.Cart = cart.NewMemoryStore()
	}

	// Leave Lookup a nil interface when disabled so the handler can tell.
	var lookup adapter.AddressLookup
	if cfg.PostalLookupURL != "" {
		lookup = address.NewLookupClient(address.LookupOptions{
			BaseURL: cfg.PostalLookupURL,
			Transport: transport.New(transport.Options{
				Timeout:     5 * time.Second,
				Fingerprint: cfg.Backend.FingerprintTLS,
			}),
			Logger: logger,
		})
	}
	deps.Lookup = lookup

	return deps, closer, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
// Records logged with a request context carry its request_id.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	var h slog.Handler
	if os.Getenv("ENVIRONMENT") == "production" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(middleware.LogHandler(h))
}
