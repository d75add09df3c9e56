package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/Indexa/internal/config"
	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/chunker"
	db "github.com/markdave123-py/Indexa/internal/core/database"
	"github.com/markdave123-py/Indexa/internal/core/embedding"
	"github.com/markdave123-py/Indexa/internal/core/ingestion_engine"
	"github.com/markdave123-py/Indexa/internal/core/llm"
	objectclient "github.com/markdave123-py/Indexa/internal/core/object-client"
	"github.com/markdave123-py/Indexa/internal/core/retry"
	"github.com/markdave123-py/Indexa/internal/core/searchindex"
	"github.com/markdave123-py/Indexa/internal/services"
)

// App holds the wired components shared by the HTTP server and the CLI.
type App struct {
	Config   *config.Config
	Index    core.IndexService
	Schemas  *ingestion_engine.SchemaManager
	Pipeline *ingestion_engine.Pipeline
	Jobs     *services.JobService
	Search   *services.SearchService
	Server   *Server

	closers []io.Closer
	logger  *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, logger: logger}

	index, err := a.newIndexService(appCtx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Index = index

	provider, err := a.newEmbeddingProvider(appCtx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	logger.Info("embedding provider ready", zap.String("provider", cfg.EmbedProvider), zap.String("model", cfg.EmbedModel))

	ch, err := newChunker(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("chunker ready",
		zap.String("mode", ch.Mode()),
		zap.Int("max_length", ch.MaxLength()),
		zap.Int("overlap", ch.Overlap()))

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.InitialBackoff = cfg.RetryInitialBackoff
	policy.MaxBackoff = cfg.RetryMaxBackoff

	var limiter *rate.Limiter
	if cfg.EmbedRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRPS), cfg.EmbedBurst)
	}

	embedder := embedding.NewClient(provider, embedding.Config{
		BatchSize:     cfg.EmbedBatchSize,
		MaxInputChars: cfg.EmbedMaxInputChars,
		CallTimeout:   cfg.EmbedTimeout,
	}, policy, limiter, logger.Named("embedding"))

	a.Schemas = ingestion_engine.NewSchemaManager(index, policy, logger.Named("schema"))
	writer := ingestion_engine.NewBatchWriter(index, cfg.IndexBatchSize,
		policy.WithMaxAttempts(cfg.IndexRetryAttempts), cfg.IndexTimeout, logger.Named("writer"))

	useReadability := false
	documentExtractor := ingestion_engine.NewDocconvExtractor(useReadability)

	a.Pipeline = ingestion_engine.NewPipeline(documentExtractor, ch, embedder, a.Schemas, writer, &ingestion_engine.IngestConfig{
		Concurrency:      cfg.IngestConcurrency,
		VectorDimension:  cfg.EmbedDim,
		EmbedTitles:      cfg.EmbedTitles,
		ExtractTimeout:   cfg.ExtractTimeout,
		MaxDocumentBytes: cfg.MaxUploadBytes,
	}, logger.Named("pipeline"))

	var staging *services.StagingService
	if cfg.StagingEnabled() {
		objClient, err := objectclient.NewS3Client(appCtx, cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		staging = services.NewStagingService(objClient, cfg.BucketName, cfg.KeepStagedFiles, logger.Named("staging"))
	} else {
		logger.Info("object storage not configured, uploads stay in memory")
	}

	a.Jobs = services.NewJobService(a.Pipeline, staging, services.IndexPolicy{
		Mode:   cfg.IndexPolicy,
		Prefix: cfg.IndexPrefix,
		Shared: cfg.IndexName,
	}, logger.Named("jobs"))
	a.Search = services.NewSearchService(embedder, index)
	a.Server = NewServer(cfg, a.Jobs, a.Search, logger)

	return a, nil
}

func (a *App) newIndexService(ctx context.Context) (core.IndexService, error) {
	cfg := a.Config
	switch cfg.SearchBackend {
	case config.BackendPgvector:
		client, err := db.NewDatabaseClient(ctx, cfg, a.logger.Named("pgvector"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		a.logger.Info("database initialized and ready")
		return client, nil
	case config.BackendAzure:
		client, err := searchindex.NewAzureSearchClient(searchindex.Config{
			Endpoint:       cfg.SearchEndpoint,
			APIKey:         cfg.SearchAPIKey,
			APIVersion:     cfg.SearchAPIVersion,
			SemanticConfig: ingestion_engine.SemanticConfigName,
			Timeout:        cfg.IndexTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.logger.Info("search service client ready", zap.String("endpoint", cfg.SearchEndpoint))
		return client, nil
	}
	return nil, fmt.Errorf("%w: unknown search backend %q", core.ErrInvalidConfiguration, cfg.SearchBackend)
}

func (a *App) newEmbeddingProvider(ctx context.Context) (core.EmbeddingProvider, error) {
	cfg := a.Config
	switch cfg.EmbedProvider {
	case config.ProviderGemini:
		g, err := llm.NewGeminiEmbedder(ctx, cfg.EmbedAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g)
		return g, nil
	case config.ProviderOpenAI, config.ProviderAzureOpenAI:
		return llm.NewOpenAIEmbedder(llm.OpenAIConfig{
			Endpoint:   cfg.EmbedEndpoint,
			APIKey:     cfg.EmbedAPIKey,
			Model:      cfg.EmbedModel,
			Dimensions: cfg.EmbedDim,
			Azure:      cfg.EmbedProvider == config.ProviderAzureOpenAI,
			Timeout:    cfg.EmbedTimeout,
		})
	}
	return nil, fmt.Errorf("%w: unknown embedding provider %q", core.ErrInvalidConfiguration, cfg.EmbedProvider)
}

func newChunker(cfg *config.Config) (*chunker.Chunker, error) {
	var opts []chunker.Option
	if cfg.ChunkMode == "token" {
		seg, err := chunker.NewTokenSegmenter("cl100k_base")
		if err != nil {
			return nil, err
		}
		opts = append(opts, chunker.WithSegmenter(seg))
	}
	return chunker.New(cfg.ChunkSize, cfg.ChunkOverlap, opts...)
}

func (a *App) Close() {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("closing resources", zap.Error(err))
	}
}
