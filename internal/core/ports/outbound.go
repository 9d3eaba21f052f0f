package ports

import (
	"context"

	"github.com/kirillkom/finvault/internal/core/domain"
)

// MetricsRepository reads numeric fundamentals from the relational store.
type MetricsRepository interface {
	ListMetrics(ctx context.Context, filter domain.MetricsFilter) ([]domain.MetricRecord, error)
}

// NarrativeIndex searches narrative chunks by embedding similarity.
type NarrativeIndex interface {
	CollectionExists(ctx context.Context) (bool, error)
	SearchPoints(ctx context.Context, queryVector []float32, limit int, scoreThreshold float64, filter domain.NarrativeFilter) ([]domain.NarrativePoint, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Completer is a raw generative model provider.
type Completer interface {
	Complete(ctx context.Context, prompt string) (domain.Inference, error)
}

// Inferencer runs a generative completion and never fails: provider errors
// come back as a fallback text with Degraded set.
type Inferencer interface {
	Infer(ctx context.Context, prompt string) domain.Inference
}

// QueryEventPublisher announces finished research runs.
type QueryEventPublisher interface {
	PublishQueryCompleted(ctx context.Context, record domain.QueryRecord) error
}

// QueryEventSubscriber consumes finished research runs.
type QueryEventSubscriber interface {
	SubscribeQueryCompleted(ctx context.Context, handler func(context.Context, domain.QueryRecord) error) error
}

// QueryHistoryStore persists the research audit trail.
type QueryHistoryStore interface {
	SaveQuery(ctx context.Context, record domain.QueryRecord) error
	ListRecentQueries(ctx context.Context, userID string, limit int) ([]domain.QueryRecord, error)
	DeleteQueries(ctx context.Context, userID string) (int64, error)
}

// RetrievalObserver receives per-request retrieval telemetry.
type RetrievalObserver interface {
	ObserveRetrieval(summary domain.RetrievalSummary)
	ObserveBackendFailure(backend string)
	ObserveVerdict(kind domain.VerdictKind)
	ObserveInference(model string, degraded bool)
}
