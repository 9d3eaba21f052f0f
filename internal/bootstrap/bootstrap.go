package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/finvault/internal/config"
	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/core/ports"
	"github.com/kirillkom/finvault/internal/core/usecase"
	"github.com/kirillkom/finvault/internal/infrastructure/llm"
	"github.com/kirillkom/finvault/internal/infrastructure/llm/groq"
	"github.com/kirillkom/finvault/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/finvault/internal/infrastructure/queue/nats"
	"github.com/kirillkom/finvault/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/finvault/internal/infrastructure/resilience"
	"github.com/kirillkom/finvault/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue      *nats.Queue
	Classifier *usecase.QueryClassifier
	Retrieval  *usecase.HybridRetrievalUseCase
	Research   *usecase.ResearchUseCase
	History    *usecase.QueryHistoryUseCase

	db      *sql.DB
	vector  *qdrant.Client
	closeFn func()
}

// New wires every backend. observer may be nil when the process exposes no
// retrieval metrics.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observer ports.RetrievalObserver) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	classifier, err := NewClassifier(cfg)
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	metricsRepo := postgres.NewMetricsRepository(db, newExecutor(cfg, logger, resilience.BackendPostgres))
	historyRepo := postgres.NewQueryHistoryRepository(db)

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: newExecutor(cfg, logger, resilience.BackendNATS),
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection,
		qdrant.WithAPIKey(cfg.QdrantAPIKey),
		qdrant.WithExecutor(newExecutor(cfg, logger, resilience.BackendQdrant)),
	)
	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, newExecutor(cfg, logger, resilience.BackendOllama))
	embedder := ollama.NewEmbedder(ollamaClient)

	quick, deep := newInferencers(cfg, ollamaClient, logger)

	assembler := usecase.NewContextAssembler(logger)
	detector := usecase.NewContradictionDetector(quick, cfg.ContradictionTimeout, logger)
	retrieval := usecase.NewHybridRetrievalUseCase(
		classifier,
		usecase.NewMetricsRetriever(metricsRepo, cfg.MetricsQueryTimeout, logger, observer),
		usecase.NewNarrativeRetriever(vectorIndex, cfg.VectorSearchTimeout, logger, observer),
		embedder,
		assembler,
		detector,
		usecase.HybridRetrievalConfig{
			NumericLimit:   cfg.RetrievalNumericLimit,
			NarrativeLimit: cfg.RetrievalNarrativeLimit,
			ScoreThreshold: &cfg.RetrievalScoreThreshold,
			EmbedTimeout:   cfg.EmbedTimeout,
			VerdictPolicy:  domain.ParseVerdictPolicy(cfg.ContradictionPolicy),
		},
		logger,
		observer,
	)
	research := usecase.NewResearchUseCase(retrieval, quick, deep, queue, logger, observer)
	history := usecase.NewQueryHistoryUseCase(historyRepo, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:      queue,
		Classifier: classifier,
		Retrieval:  retrieval,
		Research:   research,
		History:    history,

		db:     db,
		vector: vectorIndex,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// NewClassifier builds the keyword classifier without touching any backend.
func NewClassifier(cfg config.Config) (*usecase.QueryClassifier, error) {
	table := usecase.DefaultKeywordTable()
	if cfg.ClassifierKeywordsPath != "" {
		loaded, err := usecase.LoadKeywordTable(cfg.ClassifierKeywordsPath)
		if err != nil {
			return nil, fmt.Errorf("load classifier keywords: %w", err)
		}
		table = loaded
	}
	return usecase.NewQueryClassifier(table), nil
}

// PingPostgres reports whether the metrics store accepts connections.
func (a *App) PingPostgres(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// CheckNarrativeIndex reports whether the narrative collection exists.
func (a *App) CheckNarrativeIndex(ctx context.Context) error {
	exists, err := a.vector.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("collection %q does not exist", a.Config.QdrantCollection)
	}
	return nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newInferencers(cfg config.Config, ollamaClient *ollama.Client, logger *slog.Logger) (quick, deep *llm.Guard) {
	if cfg.InferenceProvider == config.InferenceProviderOllama || cfg.GroqAPIKey == "" {
		if cfg.InferenceProvider != config.InferenceProviderOllama {
			logger.Warn("groq_api_key_missing", "fallback_provider", config.InferenceProviderOllama)
		}
		local := llm.NewGuard(ollama.NewCompleter(ollamaClient), cfg.OllamaGenModel, logger).WithTimeout(cfg.InferenceTimeout)
		return local, local
	}

	executor := newExecutor(cfg, logger, resilience.BackendGroq)
	quickModel := groq.NewCompleter(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqQuickModel, cfg.GroqMaxTokens, executor)
	deepModel := groq.NewCompleter(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqDeepModel, cfg.GroqMaxTokens, executor)
	quick = llm.NewGuard(quickModel, quickModel.Model(), logger).WithTimeout(cfg.InferenceTimeout)
	deep = llm.NewGuard(deepModel, deepModel.Model(), logger).WithTimeout(cfg.InferenceTimeout)
	return quick, deep
}

// newExecutor builds the backend's preset with operator overrides on top.
func newExecutor(cfg config.Config, logger *slog.Logger, backend string) *resilience.Executor {
	return resilience.NewExecutor(resilienceConfig(cfg, backend), logger.With("backend", backend))
}

func resilienceConfig(cfg config.Config, backend string) resilience.Config {
	o := cfg.Resilience[backend]
	return resilience.ForBackend(backend).Apply(resilience.Override{
		RetryMaxAttempts:   o.RetryMaxAttempts,
		RetryMaxBackoff:    o.RetryMaxBackoff,
		BreakerOpenTimeout: o.BreakerOpenTimeout,
		BreakerDisabled:    o.BreakerDisabled,
	})
}
