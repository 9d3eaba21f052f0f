package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/infrastructure/resilience"
)

func TestCollectionExistsCachesOnlyPositiveAnswer(t *testing.T) {
	var calls int32
	var present atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/collections/financial_narratives" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&calls, 1)
		if !present.Load() {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"status":"green"}}`))
	}))
	defer server.Close()

	client := New(server.URL, "financial_narratives")

	exists, err := client.CollectionExists(context.Background())
	if err != nil || exists {
		t.Fatalf("expected missing collection, got %v (%v)", exists, err)
	}

	present.Store(true)
	for range 3 {
		exists, err = client.CollectionExists(context.Background())
		if err != nil || !exists {
			t.Fatalf("expected collection present, got %v (%v)", exists, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 backend calls, got %d", got)
	}
}

func TestSearchPointsSendsFiltersAndParsesResult(t *testing.T) {
	var captured map[string]any
	var apiKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/narr/points/search" {
			http.NotFound(w, r)
			return
		}
		apiKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"4f1c","score":0.82,"payload":{"ticker":"AAPL","year":2024,"text":"growth"}},
			{"id":17,"score":0.55,"payload":{"ticker":"AAPL","summary":"margins"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "narr", WithAPIKey("secret"))
	points, err := client.SearchPoints(context.Background(), []float32{0.1, 0.2}, 8, 0.4, domain.NarrativeFilter{
		Tickers:  []string{"AAPL"},
		DocTypes: []string{"earnings_call"},
	})
	if err != nil {
		t.Fatalf("SearchPoints() error = %v", err)
	}
	if apiKey != "secret" {
		t.Fatalf("expected api-key header, got %q", apiKey)
	}
	if captured["limit"].(float64) != 8 || captured["score_threshold"].(float64) != 0.4 {
		t.Fatalf("unexpected request body: %v", captured)
	}
	must := captured["filter"].(map[string]any)["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("expected ticker and doc_type conditions, got %v", must)
	}
	if len(points) != 2 || points[0].ID != "4f1c" || points[1].ID != "17" {
		t.Fatalf("unexpected points: %+v", points)
	}
	if points[0].Payload["text"] != "growth" || points[1].Score != 0.55 {
		t.Fatalf("unexpected payload or score: %+v", points)
	}
}

func TestSearchPointsRetriesOverloadAndReportsBody(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	}, nil)
	client := New(server.URL, "narr", WithExecutor(exec))

	_, err := client.SearchPoints(context.Background(), []float32{0.1}, 5, 0, domain.NarrativeFilter{})
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected error with response body, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error kind, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}
