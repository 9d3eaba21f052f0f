package domain

import "time"

type ResearchDepth string

const (
	DepthQuick ResearchDepth = "quick"
	DepthDeep  ResearchDepth = "deep"
)

type ResearchRequest struct {
	UserID    string        `json:"user_id,omitempty"`
	Depth     ResearchDepth `json:"depth,omitempty"`
	Retrieval RetrievalRequest
}

type ResearchResult struct {
	ID             string                `json:"id"`
	Answer         string                `json:"answer"`
	Model          string                `json:"model"`
	Degraded       bool                  `json:"degraded"`
	TokensUsed     int                   `json:"tokens_used,omitempty"`
	Context        *HybridContext        `json:"context"`
	CitationText   string                `json:"citation_text,omitempty"`
	Contradiction  *ContradictionVerdict `json:"contradiction,omitempty"`
	InferenceMs    int64                 `json:"inference_ms"`
	TotalLatencyMs int64                 `json:"total_latency_ms"`
}

// QueryRecord is the audit trail entry of one research run.
type QueryRecord struct {
	ID                 string        `json:"id"`
	UserID             string        `json:"user_id,omitempty"`
	Query              string        `json:"query"`
	Mode               RetrievalMode `json:"mode"`
	MetricsRetrieved   int           `json:"retrieved_metrics_count"`
	NarrativeRetrieved int           `json:"retrieved_narrative_count"`
	Response           string        `json:"response"`
	Model              string        `json:"model_used"`
	TokensUsed         int           `json:"tokens_used"`
	LatencyMs          int64         `json:"latency_ms"`
	CreatedAt          time.Time     `json:"created_at"`
}
