package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/searchgate/searchgate/internal/batch"
	"github.com/searchgate/searchgate/internal/config"
	"github.com/searchgate/searchgate/internal/domain"
	"github.com/searchgate/searchgate/internal/gateway"
	logpkg "github.com/searchgate/searchgate/internal/logger"
	"github.com/searchgate/searchgate/internal/metrics"
	"github.com/searchgate/searchgate/internal/provider"
	"github.com/searchgate/searchgate/internal/provider/memory"
	"github.com/searchgate/searchgate/internal/registry"
	redisstore "github.com/searchgate/searchgate/internal/store/redis"
	chiTransport "github.com/searchgate/searchgate/internal/transport/chi"
	openaiEmb "github.com/searchgate/searchgate/internal/transport/openai"
	"github.com/searchgate/searchgate/internal/version"
)

func main() {
	// Load .env if present, then configuration based on ENV
	_ = godotenv.Load()
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchgate API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("state_driver", cfg.StateStore.Driver),
		zap.Int("providers", len(cfg.Providers)),
	)

	// Register gateway metrics explicitly (no init())
	metrics.RegisterGatewayMetrics()

	adapters, descriptors := buildProviders(cfg, logger)

	stateStore := buildStateStore(cfg, logger)

	executor := batch.NewExecutor(stateStore,
		batch.WithChunkSize(cfg.Batch.ChunkSize),
		batch.WithCheckpointEvery(cfg.Batch.CheckpointEvery),
		batch.WithMaxRetries(cfg.Batch.MaxRetries),
		batch.WithExecutorLogger(logger),
	)

	gwOpts := []gateway.Option{
		gateway.WithExecutor(executor),
		gateway.WithLogger(logger),
	}
	if cfg.Embedding.APIKey != "" {
		gwOpts = append(gwOpts, gateway.WithEmbedder(openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:  cfg.Embedding.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
			Logger:  logger,
		})))
		logger.Info("Query embedder enabled", zap.String("model", cfg.Embedding.Model))
	}

	routes := make(map[gateway.Class][]string, len(cfg.Routing.Routes))
	for class, route := range cfg.Routing.Routes {
		routes[gateway.Class(class)] = route
	}
	rateLimits := make(map[string]gateway.RateLimit)
	for id, p := range cfg.Providers {
		if p.RateLimit.PerSecond > 0 {
			rateLimits[id] = gateway.RateLimit{
				PerSecond: p.RateLimit.PerSecond,
				Burst:     p.RateLimit.Burst,
			}
		}
	}

	gw, err := gateway.New(adapters, registry.New(descriptors), gateway.Config{
		Primary:        cfg.Routing.Primary,
		Routes:         routes,
		AttemptTimeout: time.Duration(cfg.Routing.AttemptTimeoutSec) * time.Second,
		StreamPageSize: cfg.Routing.StreamPageSize,
		BatchThreshold: cfg.Batch.Threshold,
		RateLimits:     rateLimits,
	}, gwOpts...)
	if err != nil {
		logger.Fatal("Failed to assemble gateway", zap.Error(err))
	}

	server := chiTransport.NewServer(gw, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildProviders constructs one adapter per configured provider and its
// capability descriptor: built-in engine profile plus config overrides.
// Only the embedded memory engine ships an adapter; remote engine kinds are
// declared in the profile table but need their adapter wired here.
func buildProviders(cfg config.Config, logger *zap.Logger) ([]provider.Adapter, map[string]domain.Capabilities) {
	adapters := make([]provider.Adapter, 0, len(cfg.Providers))
	descriptors := make(map[string]domain.Capabilities, len(cfg.Providers))

	for id, pc := range cfg.Providers {
		profile, ok := registry.Builtin(pc.Kind)
		if !ok {
			logger.Fatal("Unknown provider kind",
				zap.String("provider", id), zap.String("kind", pc.Kind))
		}
		caps, err := registry.Override(profile, pc.Capabilities)
		if err != nil {
			logger.Fatal("Invalid capability override",
				zap.String("provider", id), zap.Error(err))
		}

		switch pc.Kind {
		case "memory":
			adapters = append(adapters, memory.New(id, memory.WithCapabilities(caps)))
		default:
			logger.Fatal("No adapter implementation for provider kind",
				zap.String("provider", id), zap.String("kind", pc.Kind))
		}
		descriptors[id] = caps

		logger.Info("Provider registered",
			zap.String("provider", id), zap.String("kind", pc.Kind))
	}
	return adapters, descriptors
}

// buildStateStore creates the batch checkpoint store configured for this
// deployment and waits for it to become reachable.
func buildStateStore(cfg config.Config, logger *zap.Logger) batch.StateStore {
	switch cfg.StateStore.Driver {
	case "memory":
		logger.Warn("Batch checkpoints are in-memory; bulk operations will not survive a restart")
		return batch.NewMemoryStore()
	case "redis":
		store, err := redisstore.NewStore(redisstore.Config{
			Addrs:     cfg.StateStore.Addrs,
			Password:  cfg.StateStore.Password,
			KeyPrefix: cfg.StateStore.KeyPrefix,
		})
		if err != nil {
			logger.Fatal("Failed to create redis state store", zap.Error(err))
		}
		timeout := time.Duration(cfg.StateStore.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(context.Background(), timeout); err != nil {
			logger.Fatal("Redis state store not ready", zap.Error(err))
		}
		logger.Info("Connected to redis state store", zap.Strings("addrs", cfg.StateStore.Addrs))
		return store
	default:
		logger.Fatal("Unknown state store driver", zap.String("driver", cfg.StateStore.Driver))
		return nil
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
