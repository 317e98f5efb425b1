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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sunny22123/search-engine-API-vercel/internal/config"
	dbRedis "github.com/sunny22123/search-engine-API-vercel/internal/db/redis"
	logpkg "github.com/sunny22123/search-engine-API-vercel/internal/logger"
	"github.com/sunny22123/search-engine-API-vercel/internal/metrics"
	"github.com/sunny22123/search-engine-API-vercel/internal/repository/embcache"
	"github.com/sunny22123/search-engine-API-vercel/internal/repository/metadata"
	"github.com/sunny22123/search-engine-API-vercel/internal/repository/vector"
	"github.com/sunny22123/search-engine-API-vercel/internal/storage"
	chiTransport "github.com/sunny22123/search-engine-API-vercel/internal/transport/chi"
	"github.com/sunny22123/search-engine-API-vercel/internal/transport/clip"
	healthuc "github.com/sunny22123/search-engine-API-vercel/internal/usecase/health"
	ingestuc "github.com/sunny22123/search-engine-API-vercel/internal/usecase/ingest"
	recommenduc "github.com/sunny22123/search-engine-API-vercel/internal/usecase/recommend"
	searchuc "github.com/sunny22123/search-engine-API-vercel/internal/usecase/search"
	"github.com/sunny22123/search-engine-API-vercel/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting image search API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	// Vector store
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create redis store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Redis not ready", zap.Error(err))
	}
	logger.Info("Connected to redis")

	// Metadata database
	pg, err := metadata.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer func() { _ = pg.Close() }()

	metaRepo := metadata.New(pg)
	if cfg.Postgres.Migrate {
		if err := metaRepo.Migrate(ctx); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}
	logger.Info("Connected to postgres")

	// Register Prometheus metrics explicitly (no init())
	metrics.RegisterMetrics()

	// Vector collections: gallery images and salon portfolio images
	hnsw := vector.HNSWConfig{
		M:           cfg.Search.HNSWM,
		EFConstruct: cfg.Search.HNSWEFConstruct,
	}
	gallery := vector.New(store, cfg.Search.GalleryCollection, cfg.Embedding.Dimensions).WithHNSW(hnsw)
	salons := vector.New(store, cfg.Search.SalonCollection, cfg.Embedding.Dimensions).WithHNSW(hnsw)
	for _, col := range []*vector.Collection{gallery, salons} {
		if err := col.EnsureIndex(ctx); err != nil {
			logger.Fatal("Failed to ensure vector index",
				zap.String("collection", col.Name()), zap.Error(err))
		}
	}

	// Object storage
	s3Client := s3.New(s3.Options{
		Region: cfg.S3.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		),
	})
	objects := storage.NewS3(s3Client, cfg.S3.Bucket, cfg.S3.Region)

	// Embedding provider
	embedder := clip.NewEmbedder(&clip.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Text embeddings are cached; image embeddings are not (uploads rarely repeat)
	textEmbedder := embcache.New(
		embedder, store,
		time.Duration(cfg.Cache.TTLSec)*time.Second,
		metrics.EmbeddingCacheTotal, logger,
	)

	// Use case services
	ingestSvc := ingestuc.New(metaRepo, gallery, objects, embedder, logger)
	searchSvc := searchuc.New(gallery, metaRepo, embedder, textEmbedder)
	recommendSvc := recommenduc.New(gallery, salons, metaRepo, logger)
	healthSvc := healthuc.New(store, metaRepo, embedder)

	server := chiTransport.NewServer(ingestSvc, searchSvc, recommendSvc, healthSvc, logger, chiTransport.Options{
		DefaultLimit:   cfg.Search.DefaultLimit,
		DefaultTopK:    cfg.Search.DefaultTopK,
		MaxBatchSize:   cfg.Search.MaxBatchSize,
		MaxUploadBytes: int64(cfg.HTTP.MaxUploadMB) << 20,
	})

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

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
