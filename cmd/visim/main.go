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
	"go.uber.org/zap"

	"github.com/framefinder/visim/internal/config"
	"github.com/framefinder/visim/internal/db"
	dbRedis "github.com/framefinder/visim/internal/db/redis"
	"github.com/framefinder/visim/internal/domain"
	"github.com/framefinder/visim/internal/imaging"
	logpkg "github.com/framefinder/visim/internal/logger"
	"github.com/framefinder/visim/internal/metrics"
	"github.com/framefinder/visim/internal/repository/embcache"
	chiTransport "github.com/framefinder/visim/internal/transport/chi"
	"github.com/framefinder/visim/internal/transport/onnx"
	openaiExt "github.com/framefinder/visim/internal/transport/openai"
	extractuc "github.com/framefinder/visim/internal/usecase/extract"
	healthuc "github.com/framefinder/visim/internal/usecase/health"
	"github.com/framefinder/visim/internal/usecase/session"
	"github.com/framefinder/visim/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting visim API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("embedding_backend", cfg.Embedding.Backend),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterExtractionMetrics()
	metrics.RegisterIndexMetrics()

	// Build the extractor chain — composition root
	extractor, closeBackend, err := buildExtractor(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create extraction backend", zap.Error(err))
	}
	defer closeBackend()

	// Health checks probe the backend itself, not the cache decorator.
	var extractorChecker healthuc.ExtractorChecker
	if hc, ok := extractor.(domain.HealthChecker); ok {
		extractorChecker = hc
	}

	// Optional Redis embedding cache
	ctx := context.Background()
	var cacheStore db.Store
	if cfg.Cache.Enabled {
		cacheStore, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer cacheStore.Close()

		readiness := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
		if err := cacheStore.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Cache.Addrs))

		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		extractor = embcache.New(
			extractor, cacheStore, cfg.Cache.KeyPrefix, ttl, metrics.ExtractionCacheTotal, logger,
		)
	}

	// Indexing session
	sess, err := session.Open(session.Params{
		NumHashTables:      cfg.Index.NumHashTables,
		HashSize:           cfg.Index.HashSize,
		Seed:               cfg.Index.Seed,
		ExhaustiveFallback: cfg.Index.ExhaustiveFallback,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to open indexing session", zap.Error(err))
	}
	defer sess.Close()

	// Health service — cache and extractor checks are optional
	var cachePinger healthuc.CachePinger
	if cacheStore != nil {
		cachePinger = cacheStore
	}
	healthSvc := healthuc.New(cachePinger, extractorChecker, sess)

	// Create chi server
	server := chiTransport.NewServer(sess, extractor, healthSvc, chiTransport.Options{
		Concurrency:    cfg.Batch.Concurrency,
		DefaultK:       cfg.Search.DefaultK,
		MaxK:           cfg.Search.MaxK,
		MaxUploadBytes: int64(cfg.HTTP.MaxUploadMB) << 20,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

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

// buildExtractor assembles the embedding backend selected by config. The
// returned close function releases native resources for the local backend
// and is a no-op for the remote one.
func buildExtractor(cfg config.Config, logger *zap.Logger) (domain.Extractor, func(), error) {
	switch cfg.Embedding.Backend {
	case "onnx":
		pre, err := imaging.NewPreprocessor(cfg.Embedding.ONNX.InputSize)
		if err != nil {
			return nil, nil, fmt.Errorf("preprocessor: %w", err)
		}
		embedder, err := onnx.NewEmbedder(onnx.Config{
			ModelPath:  cfg.Embedding.ONNX.ModelPath,
			InputSize:  cfg.Embedding.ONNX.InputSize,
			Dimensions: cfg.Embedding.ONNX.Dimensions,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("onnx backend: %w", err)
		}
		svc := extractuc.New(pre, embedder, "onnx", logger)
		logger.Info("Local extraction backend ready",
			zap.String("model_path", cfg.Embedding.ONNX.ModelPath),
			zap.Int("dimensions", cfg.Embedding.ONNX.Dimensions),
		)
		return svc, func() { _ = embedder.Close() }, nil

	case "openai":
		ext := openaiExt.NewExtractor(&openaiExt.Config{
			APIKey:     cfg.Embedding.OpenAI.APIKey,
			BaseURL:    cfg.Embedding.OpenAI.BaseURL,
			Model:      cfg.Embedding.OpenAI.Model,
			Dimensions: cfg.Embedding.OpenAI.Dimensions,
			Logger:     logger,
		})
		logger.Info("Remote extraction backend ready",
			zap.String("base_url", cfg.Embedding.OpenAI.BaseURL),
			zap.String("model", cfg.Embedding.OpenAI.Model),
		)
		return ext, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown embedding backend %q", cfg.Embedding.Backend)
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

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
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
