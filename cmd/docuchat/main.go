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

	"github.com/docuchat/docuchat/internal/chunker"
	"github.com/docuchat/docuchat/internal/config"
	dbRedis "github.com/docuchat/docuchat/internal/db/redis"
	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/embedding/hash"
	logpkg "github.com/docuchat/docuchat/internal/logger"
	"github.com/docuchat/docuchat/internal/metrics"
	"github.com/docuchat/docuchat/internal/pdf"
	"github.com/docuchat/docuchat/internal/repository/collection"
	"github.com/docuchat/docuchat/internal/repository/embcache"
	"github.com/docuchat/docuchat/internal/repository/upload"
	chiTransport "github.com/docuchat/docuchat/internal/transport/chi"
	openaiTransport "github.com/docuchat/docuchat/internal/transport/openai"
	embeddinguc "github.com/docuchat/docuchat/internal/usecase/embedding"
	healthuc "github.com/docuchat/docuchat/internal/usecase/health"
	"github.com/docuchat/docuchat/internal/usecase/pipeline"
	"github.com/docuchat/docuchat/internal/usecase/summary"
	"github.com/docuchat/docuchat/internal/version"
)

// defaultOpenAIDimensions matches text-embedding-3-small.
const defaultOpenAIDimensions = 1536

func main() {
	// A missing .env is fine; real environment variables still apply.
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

	logger.Info("Starting DocuChat API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_backend", cfg.Storage.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)
	if cfg.Completion.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; /ask/ and /extract-points/ will fail")
	} else {
		logger.Info("OpenAI API key loaded", zap.Int("key_length", len(cfg.Completion.APIKey)))
	}

	metrics.RegisterPipelineMetrics()

	ctx := context.Background()

	// Redis is only needed for the redis backend; it also hosts the embedding cache.
	var redisStore *dbRedis.Store
	if cfg.Storage.Backend == config.BackendRedis {
		redisStore, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer redisStore.Close()

		if err := redisStore.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Database.Addrs))
	}

	var backend collection.Backend
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		backend = collection.NewRedis(redisStore, cfg.Storage.KeyPrefix)
	default:
		backend, err = collection.NewSQLite(cfg.Storage.VectorDir)
		if err != nil {
			logger.Fatal("Failed to open vector directory", zap.Error(err))
		}
	}

	embedder, dims, embedHealth := buildEmbedder(cfg, redisStore, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", dims),
	)

	collections, err := collection.NewManager(backend, cfg.Storage.VectorDir, dims, logger)
	if err != nil {
		logger.Fatal("Failed to create collection manager", zap.Error(err))
	}

	docs, err := upload.New(cfg.Storage.UploadDir, pdf.NewExtractor())
	if err != nil {
		logger.Fatal("Failed to create upload store", zap.Error(err))
	}

	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		Timeout: time.Duration(cfg.Completion.TimeoutSec) * time.Second,
	})

	pipeCfg := domain.PipelineConfig{
		ChunkSize:          cfg.Chunking.Size,
		ChunkOverlap:       *cfg.Chunking.Overlap,
		TopK:               cfg.Retrieval.TopK,
		AnswerTemperature:  *cfg.Completion.AnswerTemperature,
		SummaryTemperature: *cfg.Completion.SummaryTemperature,
		SummaryMaxTokens:   cfg.Completion.SummaryMaxTokens,
		SummaryMaxChars:    cfg.Completion.SummaryMaxChars,
	}

	splitter, err := chunker.NewFromConfig(pipeCfg)
	if err != nil {
		logger.Fatal("Invalid chunking config", zap.Error(err))
	}

	pipelineSvc := pipeline.New(docs, splitter, embedder, collections, completer, pipeCfg)
	summarySvc := summary.New(docs, completer, pipeCfg)

	// Pass nil interface (not typed nil pointer!) when a check does not apply.
	var completionHealth healthuc.ProviderChecker
	if cfg.Completion.APIKey != "" {
		completionHealth = completer
	}
	healthSvc := healthuc.New(collections, embedHealth, completionHealth)

	server := chiTransport.NewServer(pipelineSvc, summarySvc, healthSvc, chiTransport.Options{
		ErrorStatusCodes: cfg.HTTP.ErrorStatusCodes,
		MaxUploadBytes:   int64(cfg.HTTP.MaxUploadMB) << 20,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	r.Use(chiTransport.CORSMiddleware(cfg.CORS.AllowedOrigins))
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

// buildEmbedder assembles the decorator chain: provider -> cached (redis only) -> instrumented.
// The returned checker is nil when the provider has nothing to check.
func buildEmbedder(
	cfg config.Config,
	redisStore *dbRedis.Store,
	logger *zap.Logger,
) (domain.Embedder, int, healthuc.ProviderChecker) {
	if cfg.Embedding.Provider != config.ProviderOpenAI {
		inst := embeddinguc.NewInstrumentedEmbedder(hash.New(), config.ProviderHash, "md5", hash.Dimensions, logger)
		return inst, hash.Dimensions, nil
	}

	dims := cfg.Embedding.Dimensions
	if dims <= 0 {
		dims = defaultOpenAIDimensions
	}

	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   config.ProviderOpenAI,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if redisStore != nil {
		embedder = embcache.New(base, redisStore, cfg.Storage.KeyPrefix, cfg.Embedding.Model,
			metrics.EmbeddingCacheTotal, logger)
	}

	inst := embeddinguc.NewInstrumentedEmbedder(embedder, config.ProviderOpenAI, cfg.Embedding.Model, dims, logger)
	return inst, dims, base
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
					_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)
			ctx, usage := domain.NewContextWithUsage(ctx)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			}
			if usage.Used {
				fields = append(fields,
					zap.Int("embedding_tokens", usage.EmbeddingTokens),
					zap.Int("prompt_tokens", usage.PromptTokens),
					zap.Int("completion_tokens", usage.CompletionTokens),
				)
			}
			reqLogger.Info("http_request", fields...)
		})
	}
}
