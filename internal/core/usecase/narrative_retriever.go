package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/core/ports"
)

const (
	minNarrativeTopK = 1
	maxNarrativeTopK = 10

	// MaxChunkChars caps every surfaced chunk text, in runes.
	MaxChunkChars = 800

	postFilterOverfetch = 4
)

type NarrativeRetriever struct {
	index    ports.NarrativeIndex
	timeout  time.Duration
	logger   *slog.Logger
	observer ports.RetrievalObserver
}

func NewNarrativeRetriever(index ports.NarrativeIndex, timeout time.Duration, logger *slog.Logger, observer ports.RetrievalObserver) *NarrativeRetriever {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NarrativeRetriever{
		index:    index,
		timeout:  timeout,
		logger:   loggerOrDefault(logger),
		observer: observerOrNoop(observer),
	}
}

// Search returns narrative chunks similar to queryVector. Semantic search is
// optional: any failure yields an empty result.
func (r *NarrativeRetriever) Search(ctx context.Context, queryVector []float32, req domain.NarrativeRequest) []domain.NarrativeChunk {
	if len(queryVector) == 0 || r.index == nil {
		return []domain.NarrativeChunk{}
	}

	topK := clampInt(req.TopK, minNarrativeTopK, maxNarrativeTopK)
	threshold := clampScore(req.ScoreThreshold)
	tickers := normalizeTickers(req.Tickers)
	if len(req.Tickers) > 0 && len(tickers) == 0 {
		r.logger.Debug("narrative_tickers_filtered_out", "given", len(req.Tickers))
		return []domain.NarrativeChunk{}
	}
	docTypes := normalizeDocTypes(req.DocTypes)
	if len(req.DocTypes) > 0 && len(docTypes) == 0 {
		r.logger.Debug("narrative_doc_types_filtered_out", "given", len(req.DocTypes))
		return []domain.NarrativeChunk{}
	}
	years := normalizeYears(req.Years)

	searchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	exists, err := r.index.CollectionExists(searchCtx)
	if err != nil {
		r.fail("collection_check", err)
		return []domain.NarrativeChunk{}
	}
	if !exists {
		r.logger.Debug("narrative_collection_missing", "component", "narrative_retriever")
		return []domain.NarrativeChunk{}
	}

	candidates := topK
	if len(tickers) > 0 || len(years) > 0 || len(docTypes) > 0 {
		candidates = min(topK*postFilterOverfetch, maxNarrativeTopK*postFilterOverfetch)
	}

	points, err := r.index.SearchPoints(searchCtx, queryVector, candidates, threshold, domain.NarrativeFilter{
		Tickers:  tickers,
		DocTypes: docTypes,
	})
	if err != nil {
		r.fail("search", err)
		return []domain.NarrativeChunk{}
	}

	out := make([]domain.NarrativeChunk, 0, topK)
	skipped := 0
	for _, point := range points {
		chunk, err := chunkFromPoint(point)
		if err != nil {
			skipped++
			r.logger.Debug("narrative_point_skipped", "point_id", point.ID, "error", err)
			continue
		}
		if !matchesNarrativeFilters(chunk, tickers, years, docTypes) {
			continue
		}
		out = append(out, chunk)
		if len(out) == topK {
			break
		}
	}
	if skipped > 0 {
		r.logger.Warn("narrative_points_malformed", "skipped", skipped)
	}
	r.logger.Info("narrative_retrieved", "chunks", len(out), "candidates", len(points))
	return out
}

func (r *NarrativeRetriever) fail(stage string, err error) {
	r.observer.ObserveBackendFailure("qdrant")
	r.logger.Warn("narrative_search_failed",
		"component", "narrative_retriever",
		"backend", "qdrant",
		"stage", stage,
		"error_kind", domain.ErrorKind(err),
		"error", err,
	)
}

func chunkFromPoint(point domain.NarrativePoint) (domain.NarrativeChunk, error) {
	if point.Payload == nil {
		return domain.NarrativeChunk{}, fmt.Errorf("empty payload")
	}
	text := payloadString(point.Payload, "text")
	if text == "" {
		text = payloadString(point.Payload, "summary")
	}
	if strings.TrimSpace(text) == "" {
		return domain.NarrativeChunk{}, fmt.Errorf("payload has no text")
	}
	year, err := payloadInt(point.Payload, "year")
	if err != nil {
		return domain.NarrativeChunk{}, err
	}

	docType := payloadString(point.Payload, "doc_type")
	if docType == "" {
		docType = "unknown"
	}
	company := payloadString(point.Payload, "company")
	if company == "" {
		company = "unknown"
	}

	return domain.NarrativeChunk{
		DocType:      docType,
		Company:      company,
		Ticker:       strings.ToUpper(strings.TrimSpace(payloadString(point.Payload, "ticker"))),
		Year:         year,
		Text:         truncateRunes(text, MaxChunkChars),
		SectionTitle: payloadString(point.Payload, "section_title"),
		PointID:      point.ID,
		Score:        clampScore(point.Score),
	}, nil
}

func matchesNarrativeFilters(chunk domain.NarrativeChunk, tickers []string, years []int, docTypes []string) bool {
	if len(tickers) > 0 && !slices.Contains(tickers, chunk.Ticker) {
		return false
	}
	if len(years) > 0 && !slices.Contains(years, chunk.Year) {
		return false
	}
	if len(docTypes) > 0 && !slices.Contains(docTypes, strings.ToLower(chunk.DocType)) {
		return false
	}
	return true
}

func payloadString(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func payloadInt(payload map[string]any, key string) (int, error) {
	switch v := payload[key].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%s is not finite", key)
		}
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s is not numeric: %q", key, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s has unsupported type %T", key, v)
	}
}
