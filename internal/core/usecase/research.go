package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/core/ports"
)

const maxResearchQueryChars = 2000

// ResearchUseCase answers a question from the hybrid context with a quick or
// deep reasoning model and announces the finished run.
type ResearchUseCase struct {
	retriever ports.HybridRetriever
	quick     ports.Inferencer
	deep      ports.Inferencer
	publisher ports.QueryEventPublisher
	logger    *slog.Logger
	observer  ports.RetrievalObserver
	now       func() time.Time
}

// NewResearchUseCase builds the research flow. deep falls back to quick when
// nil, and publisher may be nil when no event bus is configured.
func NewResearchUseCase(
	retriever ports.HybridRetriever,
	quick ports.Inferencer,
	deep ports.Inferencer,
	publisher ports.QueryEventPublisher,
	logger *slog.Logger,
	observer ports.RetrievalObserver,
) *ResearchUseCase {
	if deep == nil {
		deep = quick
	}
	return &ResearchUseCase{
		retriever: retriever,
		quick:     quick,
		deep:      deep,
		publisher: publisher,
		logger:    loggerOrDefault(logger),
		observer:  observerOrNoop(observer),
		now:       time.Now,
	}
}

func (uc *ResearchUseCase) Ask(ctx context.Context, req domain.ResearchRequest) (*domain.ResearchResult, error) {
	start := uc.now()
	query := strings.TrimSpace(req.Retrieval.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "research ask", fmt.Errorf("query is required"))
	}
	if runeLen(query) > maxResearchQueryChars {
		return nil, domain.WrapError(domain.ErrInvalidInput, "research ask", fmt.Errorf("query exceeds %d characters", maxResearchQueryChars))
	}
	inferencer, err := uc.inferencerFor(req.Depth)
	if err != nil {
		return nil, err
	}

	retrievalReq := req.Retrieval
	retrievalReq.Query = query
	retrievalReq.IncludeContext = true
	retrieved := uc.retriever.Run(ctx, retrievalReq)

	inferStart := uc.now()
	inference := inferencer.Infer(ctx, buildResearchPrompt(retrieved))
	inferenceMs := uc.now().Sub(inferStart).Milliseconds()
	uc.observer.ObserveInference(inference.Model, inference.Degraded)

	result := &domain.ResearchResult{
		ID:             uuid.NewString(),
		Answer:         inference.Text,
		Model:          inference.Model,
		Degraded:       inference.Degraded,
		TokensUsed:     inference.TokensUsed,
		Context:        retrieved.Context,
		CitationText:   retrieved.CitationText,
		Contradiction:  retrieved.Contradiction,
		InferenceMs:    inferenceMs,
		TotalLatencyMs: uc.now().Sub(start).Milliseconds(),
	}
	uc.logger.Info("research_completed",
		"research_id", result.ID,
		"depth", req.Depth,
		"model", result.Model,
		"degraded", result.Degraded,
		"tokens_used", result.TokensUsed,
		"total_latency_ms", result.TotalLatencyMs,
	)

	uc.publish(ctx, req.UserID, result)
	return result, nil
}

func (uc *ResearchUseCase) inferencerFor(depth domain.ResearchDepth) (ports.Inferencer, error) {
	var inferencer ports.Inferencer
	switch depth {
	case "", domain.DepthQuick:
		inferencer = uc.quick
	case domain.DepthDeep:
		inferencer = uc.deep
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "research ask", fmt.Errorf("unsupported depth %q", depth))
	}
	if inferencer == nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "research ask", fmt.Errorf("no inference provider configured"))
	}
	return inferencer, nil
}

func (uc *ResearchUseCase) publish(ctx context.Context, userID string, result *domain.ResearchResult) {
	if uc.publisher == nil {
		return
	}
	record := domain.QueryRecord{
		ID:         result.ID,
		UserID:     userID,
		Response:   result.Answer,
		Model:      result.Model,
		TokensUsed: result.TokensUsed,
		LatencyMs:  result.TotalLatencyMs,
		CreatedAt:  uc.now().UTC(),
	}
	if hc := result.Context; hc != nil {
		record.Query = hc.Query
		record.Mode = hc.Mode
		record.MetricsRetrieved = hc.Summary.NumericRetrieved
		record.NarrativeRetrieved = hc.Summary.NarrativeRetrieved
	}
	if err := uc.publisher.PublishQueryCompleted(ctx, record); err != nil {
		uc.logger.Warn("query_event_publish_failed",
			"research_id", result.ID,
			"error_kind", domain.ErrorKind(err),
			"error", err,
		)
	}
}

func buildResearchPrompt(retrieved *domain.RetrievalResult) string {
	var b strings.Builder
	b.WriteString(retrieved.CitationText)
	if v := retrieved.Contradiction; v != nil {
		b.WriteString("\nAUTOMATED CONSISTENCY CHECK\n")
		b.WriteString(v.Raw + "\n")
	}
	query := ""
	if retrieved.Context != nil {
		query = retrieved.Context.Query
	}
	b.WriteString("\nQuestion: " + query + "\n")
	b.WriteString("Answer using only the context above and cite every claim.\n")
	return b.String()
}
