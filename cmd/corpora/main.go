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

	"github.com/corpora-dev/corpora/internal/chunker"
	"github.com/corpora-dev/corpora/internal/config"
	"github.com/corpora-dev/corpora/internal/db"
	dbRedis "github.com/corpora-dev/corpora/internal/db/redis"
	"github.com/corpora-dev/corpora/internal/domain"
	logpkg "github.com/corpora-dev/corpora/internal/logger"
	"github.com/corpora-dev/corpora/internal/metrics"
	"github.com/corpora-dev/corpora/internal/parser"
	budgetrepo "github.com/corpora-dev/corpora/internal/repository/budget"
	documentrepo "github.com/corpora-dev/corpora/internal/repository/document"
	"github.com/corpora-dev/corpora/internal/repository/embcache"
	chiTransport "github.com/corpora-dev/corpora/internal/transport/chi"
	geminiEmb "github.com/corpora-dev/corpora/internal/transport/gemini"
	openaiEmb "github.com/corpora-dev/corpora/internal/transport/openai"
	voyageEmb "github.com/corpora-dev/corpora/internal/transport/voyage"
	embeddinguc "github.com/corpora-dev/corpora/internal/usecase/embedding"
	healthuc "github.com/corpora-dev/corpora/internal/usecase/health"
	knowledgeuc "github.com/corpora-dev/corpora/internal/usecase/knowledge"
	usageuc "github.com/corpora-dev/corpora/internal/usecase/usage"
	"github.com/corpora-dev/corpora/internal/vectorstore"
	memoryStore "github.com/corpora-dev/corpora/internal/vectorstore/memory"
	qdrantStore "github.com/corpora-dev/corpora/internal/vectorstore/qdrant"
	redisStore "github.com/corpora-dev/corpora/internal/vectorstore/redis"
	"github.com/corpora-dev/corpora/internal/version"
)

func main() {
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

	logger.Info("Starting corpora API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("vector_backend", cfg.VectorStore.Backend),
	)

	ctx := context.Background()

	// Redis backs metadata, the embedding cache, budget counters, and
	// (optionally) the vector index. Memory-only deployments skip it.
	var store db.Store
	if len(cfg.Redis.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer store.Close()

		if err = store.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to redis")
	}

	// Register metrics explicitly (no init()).
	metrics.RegisterHTTPMetrics()
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	// Single BudgetTracker shared by both embedder chains and the usage
	// service.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			cfg.Embedding.Provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		if store != nil {
			budget.WithStore(ctx, budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
		}
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	docBase, queryBase, err := buildProviders(ctx, cfg.Embedding, logger)
	if err != nil {
		logger.Fatal("Failed to create embedding provider", zap.Error(err))
	}
	docEmbedder := decorateEmbedder(docBase, cfg.Embedding, store, budgetChecker, logger)
	queryEmbedder := decorateEmbedder(queryBase, cfg.Embedding, store, budgetChecker, logger)

	generator := embeddinguc.NewGenerator(docEmbedder, queryEmbedder, embeddinguc.GeneratorConfig{
		Provider:      cfg.Embedding.Provider,
		BatchSize:     cfg.Embedding.BatchSize,
		MaxRetries:    cfg.Embedding.MaxRetries,
		RetryDelay:    time.Duration(cfg.Embedding.RetryDelayMS) * time.Millisecond,
		RatePerSecond: cfg.Embedding.RatePerSecond,
		Logger:        logger,
	})
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	vectors, err := buildVectorStore(cfg, store, logger)
	if err != nil {
		logger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer func() { _ = vectors.Close() }()
	if err = vectors.Init(ctx); err != nil {
		logger.Fatal("Failed to init vector store", zap.Error(err))
	}

	var docRepo knowledgeuc.DocumentRepository
	if cfg.Metadata.Store == "memory" || store == nil {
		docRepo = documentrepo.NewMemory()
	} else {
		docRepo = documentrepo.New(store)
	}

	docParser := parser.New(logger)
	splitter, err := chunker.New(chunker.Config{
		Strategy:     chunker.Strategy(cfg.Chunking.Strategy),
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		MinChunkSize: cfg.Chunking.MinChunkSize,
		MaxChunkSize: cfg.Chunking.MaxChunkSize,
	})
	if err != nil {
		logger.Fatal("Invalid chunking config", zap.Error(err))
	}

	knowledgeSvc := knowledgeuc.New(docParser, splitter, generator, vectors, docRepo,
		knowledgeuc.Config{
			DefaultTopK:      cfg.Knowledge.DefaultTopK,
			MinScore:         cfg.Knowledge.MinScore,
			MaxContextTokens: cfg.Knowledge.MaxContextTokens,
			ChunkStrategy:    string(splitter.Strategy()),
		}, logger)

	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}
	usageSvc := usageuc.New(budgetReader)

	healthSvc := healthuc.New()
	if store != nil {
		healthSvc.Register("redis", healthuc.CheckerFunc(store.Ping))
	}
	if hc, ok := docBase.(domain.HealthChecker); ok {
		healthSvc.Register("embedding", healthuc.CheckerFunc(hc.HealthCheck))
	}
	healthSvc.Register("vector_store", healthuc.CheckerFunc(vectors.Init))

	server := chiTransport.NewServer(knowledgeSvc, usageSvc, healthSvc, cfg.HTTP.MaxUploadBytes, logger)

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

// buildProviders creates the document- and query-tuned base embedders.
// OpenAI uses one symmetric model; Gemini and Voyage tune the two sides
// through task/input types.
func buildProviders(
	ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger,
) (doc, query domain.Embedder, err error) {
	switch cfg.Provider {
	case "openai":
		e := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Logger:     logger,
		})
		return e, e, nil

	case "gemini":
		doc, err := geminiEmb.NewEmbedder(ctx, &geminiEmb.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			TaskType:   geminiEmb.TaskDocument,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		query, err := geminiEmb.NewEmbedder(ctx, &geminiEmb.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			TaskType:   geminiEmb.TaskQuery,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return doc, query, nil

	case "voyage":
		doc := voyageEmb.NewEmbedder(&voyageEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			InputType:  voyageEmb.InputDocument,
			Logger:     logger,
		})
		query := voyageEmb.NewEmbedder(&voyageEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			InputType:  voyageEmb.InputQuery,
			Logger:     logger,
		})
		return doc, query, nil

	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// decorateEmbedder assembles the chain: provider -> cache -> instrumented.
func decorateEmbedder(
	base domain.Embedder,
	cfg config.EmbeddingConfig,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	embedder := base
	if cfg.Cache && store != nil {
		embedder = embcache.New(base, store, cfg.Provider, cfg.Model, metrics.EmbeddingCacheTotal, logger)
	}
	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, budget, logger)
}

// buildVectorStore selects the configured vector backend.
func buildVectorStore(cfg config.Config, store db.Store, logger *zap.Logger) (vectorstore.VectorStore, error) {
	switch cfg.VectorStore.Backend {
	case "qdrant":
		return qdrantStore.New(&qdrantStore.Config{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			Dimensions: cfg.VectorStore.Dimensions,
			Logger:     logger,
		})
	case "redis":
		if store == nil {
			return nil, fmt.Errorf("redis vector backend requires redis.addrs")
		}
		return redisStore.New(store, &redisStore.Config{
			IndexName:  cfg.VectorStore.IndexName,
			Dimensions: cfg.VectorStore.Dimensions,
			HNSWM:      cfg.VectorStore.HNSWM,
			HNSWEF:     cfg.VectorStore.HNSWEF,
			Logger:     logger,
		}), nil
	case "memory":
		return memoryStore.New(cfg.VectorStore.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorStore.Backend)
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a
// plain text stacktrace.
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

// wideEventMiddleware emits a canonical log line per request and propagates
// X-Request-ID.
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

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

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
