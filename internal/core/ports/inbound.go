package ports

import (
	"context"

	"github.com/kirillkom/finvault/internal/core/domain"
)

// HybridRetriever is the inbound contract for the retrieval orchestrator.
type HybridRetriever interface {
	Retrieve(ctx context.Context, req domain.RetrievalRequest) *domain.HybridContext
	Run(ctx context.Context, req domain.RetrievalRequest) *domain.RetrievalResult
}

// ResearchService answers questions on top of hybrid retrieval.
type ResearchService interface {
	Ask(ctx context.Context, req domain.ResearchRequest) (*domain.ResearchResult, error)
}

// QueryHistoryRecorder stores query events delivered to the worker.
type QueryHistoryRecorder interface {
	Record(ctx context.Context, record domain.QueryRecord) error
}

// QueryHistoryService lists and clears research runs.
type QueryHistoryService interface {
	Recent(ctx context.Context, userID string, limit int) ([]domain.QueryRecord, error)
	Clear(ctx context.Context, userID string) (int64, error)
}
