package httpadapter

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/finvault/internal/core/domain"
)

const maxQueryChars = 2000

type researchRequestDTO struct {
	domain.RetrievalRequest
	UserID string               `json:"user_id"`
	Depth  domain.ResearchDepth `json:"depth"`
}

type historyResponse struct {
	Items []domain.QueryRecord `json:"items"`
}

type clearHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}

func (rt *Router) queryRetrieval(w http.ResponseWriter, r *http.Request) {
	if rt.retrieval == nil {
		writeError(w, http.StatusServiceUnavailable, "retrieval is not configured")
		return
	}

	var req domain.RetrievalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validateQuery(req.Query); err != nil {
		rt.writeDomainError(w, r, "retrieval query", err)
		return
	}
	req.Query = strings.TrimSpace(req.Query)

	writeJSON(w, http.StatusOK, rt.retrieval.Run(r.Context(), req))
}

func (rt *Router) queryResearch(w http.ResponseWriter, r *http.Request) {
	if rt.research == nil {
		writeError(w, http.StatusServiceUnavailable, "research is not configured")
		return
	}

	var dto researchRequestDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	result, err := rt.research.Ask(r.Context(), domain.ResearchRequest{
		UserID:    strings.TrimSpace(dto.UserID),
		Depth:     dto.Depth,
		Retrieval: dto.RetrievalRequest,
	})
	if err != nil {
		rt.writeDomainError(w, r, "research query", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) listHistory(w http.ResponseWriter, r *http.Request) {
	if rt.history == nil {
		writeError(w, http.StatusServiceUnavailable, "query history is not configured")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := rt.history.Recent(r.Context(), strings.TrimSpace(r.URL.Query().Get("user_id")), limit)
	if err != nil {
		rt.writeDomainError(w, r, "list query history", err)
		return
	}
	if records == nil {
		records = []domain.QueryRecord{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Items: records})
}

func (rt *Router) clearHistory(w http.ResponseWriter, r *http.Request) {
	if rt.history == nil {
		writeError(w, http.StatusServiceUnavailable, "query history is not configured")
		return
	}

	deleted, err := rt.history.Clear(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		rt.writeDomainError(w, r, "clear query history", err)
		return
	}
	writeJSON(w, http.StatusOK, clearHistoryResponse{Deleted: deleted})
}

func validateQuery(query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate query", fmt.Errorf("query is required"))
	}
	if utf8.RuneCountInString(query) > maxQueryChars {
		return domain.WrapError(domain.ErrInvalidInput, "validate query", fmt.Errorf("query exceeds %d characters", maxQueryChars))
	}
	return nil
}
