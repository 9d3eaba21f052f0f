package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/finvault/internal/core/domain"
)

var testVector = []float32{0.1, 0.2, 0.3}

func TestNarrativeRetrieverEmptyVectorSkipsSearch(t *testing.T) {
	index := &narrativeIndexFake{exists: true}
	r := NewNarrativeRetriever(index, time.Second, discardLogger(), nil)

	got := r.Search(context.Background(), nil, domain.NarrativeRequest{TopK: 3})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", got)
	}
	if index.searchCalls != 0 {
		t.Fatalf("expected no search calls, got %d", index.searchCalls)
	}
}

func TestNarrativeRetrieverClampsTopKAndThreshold(t *testing.T) {
	cases := []struct {
		topK          int
		threshold     float64
		wantLimit     int
		wantThreshold float64
	}{
		{0, -0.2, 1, 0},
		{50, 1.7, 10, 1},
		{3, 0.4, 3, 0.4},
	}
	for _, tc := range cases {
		index := &narrativeIndexFake{exists: true}
		r := NewNarrativeRetriever(index, time.Second, discardLogger(), nil)
		r.Search(context.Background(), testVector, domain.NarrativeRequest{TopK: tc.topK, ScoreThreshold: tc.threshold})

		if index.gotLimit != tc.wantLimit {
			t.Fatalf("topK %d: expected limit %d, got %d", tc.topK, tc.wantLimit, index.gotLimit)
		}
		if index.gotThreshold != tc.wantThreshold {
			t.Fatalf("threshold %v: expected %v, got %v", tc.threshold, tc.wantThreshold, index.gotThreshold)
		}
	}
}

func TestNarrativeRetrieverMissingCollection(t *testing.T) {
	index := &narrativeIndexFake{exists: false}
	observer := &observerFake{}
	r := NewNarrativeRetriever(index, time.Second, discardLogger(), observer)

	got := r.Search(context.Background(), testVector, domain.NarrativeRequest{TopK: 5})
	if len(got) != 0 || index.searchCalls != 0 {
		t.Fatalf("expected no search on missing collection, got %d chunks and %d calls", len(got), index.searchCalls)
	}
	if len(observer.failures) != 0 {
		t.Fatalf("a missing collection is not a backend failure: %v", observer.failures)
	}
}

func TestNarrativeRetrieverBackendErrors(t *testing.T) {
	for name, index := range map[string]*narrativeIndexFake{
		"exists": {existsErr: errors.New("dial tcp: refused")},
		"search": {exists: true, searchErr: errors.New("503")},
	} {
		observer := &observerFake{}
		r := NewNarrativeRetriever(index, time.Second, discardLogger(), observer)
		got := r.Search(context.Background(), testVector, domain.NarrativeRequest{TopK: 5})
		if len(got) != 0 {
			t.Fatalf("%s: expected empty result, got %d", name, len(got))
		}
		if len(observer.failures) != 1 || observer.failures[0] != "qdrant" {
			t.Fatalf("%s: expected qdrant failure, got %v", name, observer.failures)
		}
	}
}

func TestNarrativeRetrieverPostFiltersWithOverfetch(t *testing.T) {
	index := &narrativeIndexFake{exists: true, points: []domain.NarrativePoint{
		narrativePoint("1", "MSFT", 2024, "10-K", "msft text", 0.9),
		narrativePoint("2", "aapl", 2023, "10-K", "old text", 0.8),
		narrativePoint("3", "AAPL", 2024, "earnings_call", "call text", 0.7),
		narrativePoint("4", "AAPL", 2024, "10-K", "filing text", 0.6),
		narrativePoint("5", "AAPL", 2024, "10-K", "more text", 0.5),
	}}
	r := NewNarrativeRetriever(index, time.Second, discardLogger(), nil)

	got := r.Search(context.Background(), testVector, domain.NarrativeRequest{
		Tickers: []string{"aapl"},
		Years:   []int{2024},
		TopK:    2,
	})
	if index.gotLimit != 8 {
		t.Fatalf("expected overfetch limit 8, got %d", index.gotLimit)
	}
	if len(index.gotFilter.Tickers) != 1 || index.gotFilter.Tickers[0] != "AAPL" {
		t.Fatalf("expected normalized ticker filter, got %v", index.gotFilter.Tickers)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	for _, c := range got {
		if c.Ticker != "AAPL" || c.Year != 2024 {
			t.Fatalf("chunk violates filters: %+v", c)
		}
	}
	if got[0].PointID != "3" || got[1].PointID != "4" {
		t.Fatalf("expected index order preserved, got %s, %s", got[0].PointID, got[1].PointID)
	}
}

func TestNarrativeRetrieverUnusableFiltersMatchNothing(t *testing.T) {
	cases := map[string]domain.NarrativeRequest{
		"tickers":   {Tickers: []string{"  ", "WAYTOOLONGTICKER"}, TopK: 5},
		"doc types": {DocTypes: []string{" ", ""}, TopK: 5},
	}
	for name, req := range cases {
		index := &narrativeIndexFake{exists: true, points: []domain.NarrativePoint{
			narrativePoint("1", "MSFT", 2024, "10-K", "msft text", 0.9),
			narrativePoint("2", "TSLA", 2024, "10-K", "tsla text", 0.8),
		}}
		r := NewNarrativeRetriever(index, time.Second, discardLogger(), nil)

		got := r.Search(context.Background(), testVector, req)
		if got == nil || len(got) != 0 {
			t.Fatalf("%s: expected empty non-nil result, got %v", name, got)
		}
		if index.searchCalls != 0 {
			t.Fatalf("%s: expected no search calls, got %d", name, index.searchCalls)
		}
	}
}

func TestNarrativeRetrieverSkipsMalformedPoints(t *testing.T) {
	long := strings.Repeat("é", MaxChunkChars+50)
	badYear := narrativePoint("3", "AAPL", 2024, "10-K", "x", 0.5)
	badYear.Payload["year"] = "fiscal"
	summaryOnly := domain.NarrativePoint{ID: "5", Score: 1.5, Payload: map[string]any{
		"ticker": "nvda", "summary": "summary text", "year": "2024",
	}}

	index := &narrativeIndexFake{exists: true, points: []domain.NarrativePoint{
		{ID: "1", Payload: nil},
		{ID: "2", Payload: map[string]any{"ticker": "AAPL"}},
		badYear,
		narrativePoint("4", "AAPL", 2024, "10-K", long, 0.7),
		summaryOnly,
	}}
	r := NewNarrativeRetriever(index, time.Second, discardLogger(), nil)

	got := r.Search(context.Background(), testVector, domain.NarrativeRequest{TopK: 10})
	if len(got) != 2 {
		t.Fatalf("expected 2 usable chunks, got %d", len(got))
	}
	if n := len([]rune(got[0].Text)); n != MaxChunkChars {
		t.Fatalf("expected text capped at %d runes, got %d", MaxChunkChars, n)
	}
	s := got[1]
	if s.Text != "summary text" || s.Ticker != "NVDA" || s.Year != 2024 {
		t.Fatalf("unexpected summary chunk: %+v", s)
	}
	if s.Score != 1 {
		t.Fatalf("expected score clamped to 1, got %v", s.Score)
	}
	if s.DocType != "unknown" || s.Company != "unknown" {
		t.Fatalf("expected unknown defaults, got %q / %q", s.DocType, s.Company)
	}
}
