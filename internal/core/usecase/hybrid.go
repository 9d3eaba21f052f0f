package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/core/ports"
)

const defaultScoreThreshold = 0.4

type HybridRetrievalConfig struct {
	NumericLimit   int
	NarrativeLimit int
	// ScoreThreshold nil means defaultScoreThreshold; 0 disables the cutoff.
	ScoreThreshold *float64
	EmbedTimeout   time.Duration
	VerdictPolicy  domain.VerdictPolicy
}

func (c HybridRetrievalConfig) normalize() HybridRetrievalConfig {
	out := c
	if out.NumericLimit <= 0 {
		out.NumericLimit = 50
	}
	if out.NarrativeLimit <= 0 {
		out.NarrativeLimit = MaxContextChunks
	}
	if out.ScoreThreshold == nil {
		threshold := defaultScoreThreshold
		out.ScoreThreshold = &threshold
	}
	if out.EmbedTimeout <= 0 {
		out.EmbedTimeout = 10 * time.Second
	}
	if out.VerdictPolicy == "" {
		out.VerdictPolicy = domain.SurfaceContradictionsOnly
	}
	return out
}

// HybridRetrievalUseCase coordinates mode resolution, the two retrievers,
// context assembly and the optional contradiction check for one query.
type HybridRetrievalUseCase struct {
	classifier *QueryClassifier
	metrics    *MetricsRetriever
	narrative  *NarrativeRetriever
	embedder   ports.Embedder
	assembler  *ContextAssembler
	detector   *ContradictionDetector

	cfg      HybridRetrievalConfig
	logger   *slog.Logger
	observer ports.RetrievalObserver
}

// NewHybridRetrievalUseCase wires the orchestrator. embedder and detector may
// be nil: semantic retrieval or the contradiction check are then skipped.
func NewHybridRetrievalUseCase(
	classifier *QueryClassifier,
	metrics *MetricsRetriever,
	narrative *NarrativeRetriever,
	embedder ports.Embedder,
	assembler *ContextAssembler,
	detector *ContradictionDetector,
	cfg HybridRetrievalConfig,
	logger *slog.Logger,
	observer ports.RetrievalObserver,
) *HybridRetrievalUseCase {
	logger = loggerOrDefault(logger)
	if classifier == nil {
		classifier = NewQueryClassifier(DefaultKeywordTable())
	}
	if assembler == nil {
		assembler = NewContextAssembler(logger)
	}
	return &HybridRetrievalUseCase{
		classifier: classifier,
		metrics:    metrics,
		narrative:  narrative,
		embedder:   embedder,
		assembler:  assembler,
		detector:   detector,
		cfg:        cfg.normalize(),
		logger:     logger,
		observer:   observerOrNoop(observer),
	}
}

func (uc *HybridRetrievalUseCase) Assembler() *ContextAssembler {
	return uc.assembler
}

// Retrieve always returns a context. Failed and empty retrievals are both
// represented by empty slices.
func (uc *HybridRetrievalUseCase) Retrieve(ctx context.Context, req domain.RetrievalRequest) *domain.HybridContext {
	start := time.Now()
	mode := uc.resolveMode(req)
	uc.logger.Info("hybrid_retrieval_started", "mode", mode, "query_head", truncateRunes(req.Query, 80))

	hc := &domain.HybridContext{
		Query:     req.Query,
		Mode:      mode,
		Metrics:   []domain.MetricRecord{},
		Narrative: []domain.NarrativeChunk{},
		Summary:   domain.RetrievalSummary{Mode: mode},
	}

	var (
		metrics []domain.MetricRecord
		chunks  []domain.NarrativeChunk
		g       errgroup.Group
	)
	if mode.WantsNumeric() && uc.metrics != nil {
		g.Go(func() error {
			defer uc.recoverBranch("numeric")
			metrics = uc.metrics.Fetch(ctx, domain.MetricsRequest{
				Tickers:   req.Tickers,
				Companies: req.Companies,
				Years:     req.Years,
				Limit:     firstPositive(req.NumericLimit, uc.cfg.NumericLimit),
			})
			return nil
		})
	}
	if mode.WantsNarrative() && uc.embedder != nil && uc.narrative != nil {
		g.Go(func() error {
			defer uc.recoverBranch("narrative")
			chunks = uc.retrieveNarrative(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	if metrics != nil {
		hc.Metrics = metrics
	}
	if chunks != nil {
		hc.Narrative = chunks
	}
	hc.Summary.NumericRetrieved = len(hc.Metrics)
	hc.Summary.NarrativeRetrieved = len(hc.Narrative)
	hc.Summary.LatencyMs = time.Since(start).Milliseconds()

	uc.observer.ObserveRetrieval(hc.Summary)
	uc.logger.Info("hybrid_retrieval_completed",
		"mode", mode,
		"numeric_retrieved", hc.Summary.NumericRetrieved,
		"narrative_retrieved", hc.Summary.NarrativeRetrieved,
		"latency_ms", hc.Summary.LatencyMs,
	)
	return hc
}

// Run retrieves and, when requested, assembles the citation text and runs
// the contradiction check.
func (uc *HybridRetrievalUseCase) Run(ctx context.Context, req domain.RetrievalRequest) *domain.RetrievalResult {
	start := time.Now()
	hc := uc.Retrieve(ctx, req)

	result := &domain.RetrievalResult{Context: hc}
	if req.IncludeContext {
		result.CitationText = uc.assembler.AssembleHybrid(hc)
	}
	if req.CheckContradictions {
		result.Contradiction = uc.CheckContradictions(ctx, hc)
	}
	result.TotalLatencyMs = time.Since(start).Milliseconds()
	return result
}

// CheckContradictions runs the detector when both evidence kinds are present
// and returns the verdict only if the configured policy surfaces it.
func (uc *HybridRetrievalUseCase) CheckContradictions(ctx context.Context, hc *domain.HybridContext) *domain.ContradictionVerdict {
	if uc.detector == nil || hc == nil {
		return nil
	}
	if !hc.Mode.WantsNarrative() || len(hc.Metrics) == 0 || len(hc.Narrative) == 0 {
		return nil
	}

	verdict := uc.detector.Detect(ctx, uc.assembler.RenderMetrics(hc.Metrics), uc.assembler.RenderNarrative(hc.Narrative))
	if verdict == nil {
		return nil
	}
	uc.observer.ObserveVerdict(verdict.Kind)
	if !uc.cfg.VerdictPolicy.Surfaces(verdict) {
		uc.logger.Debug("contradiction_verdict_suppressed", "kind", verdict.Kind, "policy", uc.cfg.VerdictPolicy)
		return nil
	}
	return verdict
}

func (uc *HybridRetrievalUseCase) resolveMode(req domain.RetrievalRequest) domain.RetrievalMode {
	if req.ForceMode != "" {
		mode, err := domain.ParseRetrievalMode(req.ForceMode)
		if err != nil {
			uc.logger.Warn("forced_mode_rejected", "mode", req.ForceMode, "fallback", domain.ModeHybrid, "error", err)
			return domain.ModeHybrid
		}
		return mode
	}
	return uc.classifier.Classify(req.Query)
}

func (uc *HybridRetrievalUseCase) retrieveNarrative(ctx context.Context, req domain.RetrievalRequest) []domain.NarrativeChunk {
	embedCtx, cancel := context.WithTimeout(ctx, uc.cfg.EmbedTimeout)
	vector, err := uc.embedder.EmbedQuery(embedCtx, req.Query)
	cancel()
	if err != nil {
		uc.observer.ObserveBackendFailure("embedder")
		uc.logger.Warn("query_embedding_failed",
			"component", "hybrid_retrieval",
			"backend", "embedder",
			"error_kind", domain.ErrorKind(err),
			"error", err,
		)
		return nil
	}
	if len(vector) == 0 {
		uc.logger.Warn("query_embedding_empty", "component", "hybrid_retrieval")
		return nil
	}

	return uc.narrative.Search(ctx, vector, domain.NarrativeRequest{
		Tickers:        req.Tickers,
		Years:          req.Years,
		DocTypes:       req.DocTypes,
		TopK:           firstPositive(req.NarrativeLimit, uc.cfg.NarrativeLimit),
		ScoreThreshold: *uc.cfg.ScoreThreshold,
	})
}

func (uc *HybridRetrievalUseCase) recoverBranch(branch string) {
	if r := recover(); r != nil {
		uc.logger.Error("retrieval_branch_panic", "branch", branch, "panic", fmt.Sprint(r))
	}
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
