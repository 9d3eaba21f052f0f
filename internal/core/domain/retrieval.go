package domain

import (
	"fmt"
	"strings"
	"time"
)

type RetrievalMode string

const (
	ModeNumeric   RetrievalMode = "numeric"
	ModeNarrative RetrievalMode = "narrative"
	ModeHybrid    RetrievalMode = "hybrid"
)

func ParseRetrievalMode(raw string) (RetrievalMode, error) {
	switch mode := RetrievalMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModeNumeric, ModeNarrative, ModeHybrid:
		return mode, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse retrieval mode", fmt.Errorf("unknown mode %q", raw))
	}
}

func (m RetrievalMode) WantsNumeric() bool {
	return m == ModeNumeric || m == ModeHybrid
}

func (m RetrievalMode) WantsNarrative() bool {
	return m == ModeNarrative || m == ModeHybrid
}

type RetrievalSummary struct {
	Mode               RetrievalMode `json:"query_mode"`
	NumericRetrieved   int           `json:"numeric_retrieved"`
	NarrativeRetrieved int           `json:"narrative_retrieved"`
	LatencyMs          int64         `json:"latency_ms"`
}

// HybridContext is the retrieval output for a single query. The orchestrator
// owns it until it is returned; callers must treat it as read-only.
type HybridContext struct {
	Query     string           `json:"query"`
	Mode      RetrievalMode    `json:"mode"`
	Metrics   []MetricRecord   `json:"numeric_data"`
	Narrative []NarrativeChunk `json:"narrative_chunks"`
	Summary   RetrievalSummary `json:"retrieval_summary"`
}

type RetrievalRequest struct {
	Query     string   `json:"query"`
	Tickers   []string `json:"tickers,omitempty"`
	Companies []string `json:"companies,omitempty"`
	Years     []int    `json:"years,omitempty"`
	DocTypes  []string `json:"doc_types,omitempty"`
	ForceMode string   `json:"mode,omitempty"`

	NumericLimit   int `json:"numeric_limit,omitempty"`
	NarrativeLimit int `json:"narrative_limit,omitempty"`

	IncludeContext      bool `json:"include_context"`
	CheckContradictions bool `json:"check_contradictions"`
}

type RetrievalResult struct {
	Context        *HybridContext        `json:"context"`
	CitationText   string                `json:"citation_text,omitempty"`
	Contradiction  *ContradictionVerdict `json:"contradiction,omitempty"`
	TotalLatencyMs int64                 `json:"total_latency_ms"`
}

type VerdictKind string

const (
	VerdictContradiction VerdictKind = "CONTRADICTION"
	VerdictAligned       VerdictKind = "ALIGNED"
	VerdictUnclear       VerdictKind = "UNCLEAR"
)

// Tag is the literal marker the model must emit, e.g. "[ALIGNED]".
func (k VerdictKind) Tag() string {
	return "[" + string(k) + "]"
}

type ContradictionVerdict struct {
	Kind     VerdictKind `json:"kind"`
	Evidence string      `json:"evidence,omitempty"`
	Raw      string      `json:"raw"`
}

// VerdictPolicy decides which computed verdicts reach the caller.
type VerdictPolicy string

const (
	SurfaceContradictionsOnly VerdictPolicy = "contradictions_only"
	SurfaceAllVerdicts        VerdictPolicy = "all"
)

func ParseVerdictPolicy(raw string) VerdictPolicy {
	if VerdictPolicy(strings.ToLower(strings.TrimSpace(raw))) == SurfaceAllVerdicts {
		return SurfaceAllVerdicts
	}
	return SurfaceContradictionsOnly
}

func (p VerdictPolicy) Surfaces(v *ContradictionVerdict) bool {
	if v == nil {
		return false
	}
	if p == SurfaceAllVerdicts {
		return true
	}
	return strings.Contains(v.Raw, VerdictContradiction.Tag())
}

// Inference is the outcome of one generative model call. Degraded marks a
// fallback text produced because the provider failed.
type Inference struct {
	Text       string        `json:"text"`
	Model      string        `json:"model"`
	TokensUsed int           `json:"tokens_used,omitempty"`
	Latency    time.Duration `json:"-"`
	Degraded   bool          `json:"degraded"`
}
