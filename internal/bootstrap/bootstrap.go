package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/car-knowledge-assistant/internal/config"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/ports"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/usecase"
	rediscache "github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/cache/redis"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/classifier/huggingface"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/corpus"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/llm/hosted"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/nlp/lemma"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/repository/memory"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/vector/local"
	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/vector/qdrant"
)

const answerCachePrefix = "car-assistant:"

type App struct {
	Config config.Config

	Assistant *usecase.Assistant
	// Queue is nil when NATS_URL is unset.
	Queue   *nats.Queue
	LLMMode string

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	runs, err := app.newRunStore(ctx)
	if err != nil {
		return nil, err
	}

	storage, err := localfs.New(filepath.Dir(cfg.CorpusPath))
	if err != nil {
		return nil, fmt.Errorf("init corpus storage: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	app.LLMMode = generator.Name()

	classifier, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	simplifier, err := lemma.NewEnglish()
	if err != nil {
		return nil, fmt.Errorf("init lemmatizer: %w", err)
	}

	store, err := newVectorStore(cfg)
	if err != nil {
		return nil, err
	}
	index := usecase.NewIndex(embedder, store, usecase.IndexOptions{
		BatchSize:   cfg.EmbedBatchSize,
		Concurrency: cfg.EmbedConcurrency,
	})

	prompt, err := usecase.NewPromptTemplate(cfg.PromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	gateway := usecase.NewGateway(classifier, simplifier, domain.GatewayPolicy{
		Labels:        cfg.GatewayLabels,
		BlockLabels:   cfg.GatewayBlockLabels,
		MinConfidence: cfg.GatewayMinConfidence,
	})
	chain := usecase.NewChain(index, generator, prompt)
	reader := corpus.NewReader(cfg.CorpusPath, cfg.CorpusTextColumn, chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap))

	opts := usecase.AssistantOptions{
		DefaultTopK: cfg.RAGTopK,
		MaxTopK:     cfg.RAGMaxTopK,
		CacheTTL:    cfg.AnswerCacheTTL(),
		Storage:     storage,
		CorpusKey:   filepath.Base(cfg.CorpusPath),
	}

	if strings.TrimSpace(cfg.NATSURL) != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
			IngestSubject:      cfg.NATSIngestSubject,
			IndexSubject:       cfg.NATSIndexSubject,
			ResilienceExecutor: newExecutor(cfg),
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)
		opts.Queue = queue
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := rediscache.New(ctx, cfg.RedisURL, answerCachePrefix)
		if err != nil {
			return nil, fmt.Errorf("init answer cache: %w", err)
		}
		app.closeFns = append(app.closeFns, func() { _ = cache.Close() })
		opts.Cache = cache
	}

	app.Assistant = usecase.NewAssistant(reader, index, gateway, chain, runs, opts)
	return app, nil
}

// PrepareIndex loads the persisted index, building it from the corpus when
// none exists and INGEST_ON_STARTUP is set.
func (a *App) PrepareIndex(ctx context.Context) error {
	if err := a.Assistant.ReloadIndex(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	if stats := a.Assistant.IndexStats(); stats.Ready {
		slog.Info("index_loaded", "count", stats.Count, "backend", stats.Backend)
		return nil
	}

	if !a.Config.IngestOnStartup {
		slog.Warn("No index found. Run /embed first.")
		return nil
	}
	if _, err := os.Stat(a.Config.CorpusPath); errors.Is(err, os.ErrNotExist) {
		slog.Warn("No index found. Run /embed first.", "corpus_path", a.Config.CorpusPath)
		return nil
	}

	result, err := a.Assistant.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("ingest on startup: %w", err)
	}
	slog.Info("index_built_on_startup", "count", result.Count)
	return nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) newRunStore(ctx context.Context) (ports.IngestionRunStore, error) {
	if strings.TrimSpace(a.Config.PostgresDSN) == "" {
		return memory.NewIngestionRepository(), nil
	}

	db, err := postgres.OpenDB(a.Config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closeFns = append(a.closeFns, func() { _ = db.Close() })

	repo := postgres.NewIngestionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func newExecutor(cfg config.Config) *resilience.Executor {
	return resilience.NewExecutor(resilience.ForExternalCalls(cfg.ExternalCallTimeout(), cfg.RetryMaxAttempts, cfg.BreakerEnabled))
}

func httpTimeout(cfg config.Config) time.Duration {
	if t := cfg.ExternalCallTimeout(); t > 0 {
		return t + 5*time.Second
	}
	return 0
}

func newHostedClient(cfg config.Config) *hosted.Client {
	return hosted.New(hosted.Options{
		BaseURL:            cfg.HostedLLMBaseURL,
		APIKey:             cfg.HostedLLMAPIKey,
		Model:              cfg.HostedLLMModel,
		EmbedModel:         cfg.EmbedModel,
		Temperature:        cfg.HostedLLMTemperature,
		MaxTokens:          cfg.HostedLLMMaxTokens,
		ResilienceExecutor: newExecutor(cfg),
	})
}

func newOllamaClient(cfg config.Config) *ollama.Client {
	return ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.EmbedModel, ollama.Options{
		HTTPTimeout:        httpTimeout(cfg),
		ResilienceExecutor: newExecutor(cfg),
	})
}

func newEmbedder(cfg config.Config) (ports.Embedder, error) {
	switch strings.ToLower(cfg.EmbedBackend) {
	case "ollama", "local":
		return ollama.NewEmbedder(newOllamaClient(cfg)), nil
	case "hosted":
		return hosted.NewEmbedder(newHostedClient(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown EMBED_BACKEND %q", cfg.EmbedBackend)
	}
}

func newGenerator(cfg config.Config) (ports.AnswerGenerator, error) {
	switch strings.ToLower(cfg.LLMBackend) {
	case "hosted":
		return hosted.NewGenerator(newHostedClient(cfg)), nil
	case "local", "ollama":
		return ollama.NewGenerator(newOllamaClient(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND %q", cfg.LLMBackend)
	}
}

func newClassifier(cfg config.Config) (ports.RelevanceClassifier, error) {
	switch strings.ToLower(cfg.ClassifierBackend) {
	case "huggingface", "hf":
		return huggingface.New(huggingface.Options{
			BaseURL:            cfg.HFInferenceURL,
			Model:              cfg.ClassifierModel,
			Token:              cfg.HFAPIToken,
			HTTPTimeout:        httpTimeout(cfg),
			ResilienceExecutor: newExecutor(cfg),
		}), nil
	case "ollama", "local":
		return ollama.NewClassifier(newOllamaClient(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown CLASSIFIER_BACKEND %q", cfg.ClassifierBackend)
	}
}

func newVectorStore(cfg config.Config) (ports.VectorStore, error) {
	switch strings.ToLower(cfg.IndexBackend) {
	case "local":
		return local.New(cfg.IndexPath), nil
	case "qdrant":
		return qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, cfg.QdrantAPIKey, qdrant.Options{
			HTTPTimeout:        httpTimeout(cfg),
			ResilienceExecutor: newExecutor(cfg),
		}), nil
	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q", cfg.IndexBackend)
	}
}
