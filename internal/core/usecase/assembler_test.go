package usecase

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/finvault/internal/core/domain"
)

func chunk(ticker, docType string, year int, text string) domain.NarrativeChunk {
	return domain.NarrativeChunk{
		DocType: docType,
		Company: ticker + " Inc",
		Ticker:  ticker,
		Year:    year,
		Text:    text,
		Score:   0.9,
	}
}

func TestFormatMoney(t *testing.T) {
	cases := map[float64]string{
		100e9: "$100.00B",
		1e9:   "$1.00B",
		5e8:   "$500.00M",
		-2e9:  "-$2.00B",
		0:     "$0.00M",
	}
	for in, want := range cases {
		if got := formatMoney(in); got != want {
			t.Fatalf("formatMoney(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestAssemblerRendersMetricLines(t *testing.T) {
	a := NewContextAssembler(discardLogger())
	m := domain.MetricRecord{
		Company:         "Apple Inc",
		Ticker:          "AAPL",
		Year:            intPtr(2024),
		Revenue:         floatPtr(100e9),
		ProfitMarginPct: floatPtr(25.456),
		DebtToEquity:    floatPtr(1.5),
	}

	out := a.RenderMetrics([]domain.MetricRecord{m, {Company: "No Year", Ticker: "NY"}})
	for _, want := range []string{
		"Apple Inc (AAPL) - FY 2024",
		"  - Revenue: $100.00B",
		"  - Profit Margin: 25.46%",
		"  - Debt to Equity: 1.50x",
		"No Year (NY) - FY N/A",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Net Income") {
		t.Fatalf("absent metrics must not be rendered:\n%s", out)
	}
}

func TestAssemblerCapsMetricsAndChunks(t *testing.T) {
	a := NewContextAssembler(discardLogger())
	metrics := make([]domain.MetricRecord, 0, 50)
	for i := range 50 {
		metrics = append(metrics, metric(fmt.Sprintf("T%d", i), 2024))
	}
	chunks := make([]domain.NarrativeChunk, 0, 100)
	for i := range 100 {
		chunks = append(chunks, chunk(fmt.Sprintf("T%d", i), "10-K", 2024, "text"))
	}

	out := a.Assemble("q", metrics, chunks)
	if n := strings.Count(out, ") - FY "); n != MaxContextMetrics {
		t.Fatalf("expected %d metric blocks, got %d", MaxContextMetrics, n)
	}
	if n := strings.Count(out, "\n[Source: "); n != MaxContextChunks {
		t.Fatalf("expected %d chunk blocks, got %d", MaxContextChunks, n)
	}
}

func TestAssemblerRendersFiveOfSixChunks(t *testing.T) {
	a := NewContextAssembler(discardLogger())
	chunks := make([]domain.NarrativeChunk, 0, 6)
	for range 6 {
		chunks = append(chunks, chunk("AAPL", "earnings_call", 2024, strings.Repeat("a", 600)))
	}

	out := a.RenderNarrative(chunks)
	if n := strings.Count(out, "Relevance Score: 0.900"); n != 5 {
		t.Fatalf("expected 5 chunk bodies, got %d", n)
	}
}

func TestAssemblerNarrativeBudgetAndTruncation(t *testing.T) {
	a := NewContextAssembler(discardLogger())
	chunks := []domain.NarrativeChunk{
		chunk("AAPL", "10-K", 2024, strings.Repeat("x", 2000)),
		chunk("MSFT", "10-K", 2024, strings.Repeat("y", 2000)),
	}

	out := a.RenderNarrative(chunks)
	if n := strings.Count(out, truncationMarker); n != 2 {
		t.Fatalf("expected truncation marker per long chunk, got %d", n)
	}
	body := strings.Count(out, "x") + strings.Count(out, "y")
	if body > MaxContextNarrativeChars || body != 2*MaxChunkChars {
		t.Fatalf("unexpected narrative body size %d", body)
	}
}

func TestAssemblerCitationLabels(t *testing.T) {
	a := NewContextAssembler(discardLogger())
	chunks := []domain.NarrativeChunk{
		chunk("aapl", "earnings_call", 2024, "one"),
		chunk("<MSFT>", "10-K", 0, "two"),
		chunk("AAPL", "earnings_call", 2024, "three"),
		chunk("unknown", "10-K", 2024, "skipped"),
		chunk("", "10-K", 2024, "skipped"),
	}

	out := a.RenderNarrative(chunks)
	if strings.Contains(out, "skipped") {
		t.Fatalf("chunks without ticker must be skipped:\n%s", out)
	}
	if !strings.Contains(out, "[Source: AAPL Earnings Call FY2024]") {
		t.Fatalf("expected AAPL label:\n%s", out)
	}
	if !strings.Contains(out, "[Source: MSFT 10-K]") {
		t.Fatalf("expected sanitized MSFT label without year:\n%s", out)
	}
	one := strings.Index(out, "one")
	three := strings.Index(out, "three")
	two := strings.Index(out, "two")
	if !(one < three && three < two) {
		t.Fatalf("expected chunks grouped by label in first-seen order:\n%s", out)
	}
}

func TestDocTypeTitle(t *testing.T) {
	cases := map[string]string{
		"10-K":          "10-K",
		"10-q":          "10-Q",
		"earnings_call": "Earnings Call",
		"ANNUAL REPORT": "Annual Report",
		"8-k_exhibit":   "8-K Exhibit",
		"  ":            "Unknown",
	}
	for in, want := range cases {
		if got := docTypeTitle(in); got != want {
			t.Fatalf("docTypeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAssembleHybridAddsMetadata(t *testing.T) {
	a := NewContextAssembler(discardLogger())
	hc := &domain.HybridContext{
		Query: "How did Apple do?",
		Mode:  domain.ModeHybrid,
		Summary: domain.RetrievalSummary{
			Mode:      domain.ModeHybrid,
			LatencyMs: 12,
		},
	}

	out := a.AssembleHybrid(hc)
	for _, want := range []string{
		"FINANCIAL RESEARCH CONTEXT",
		"Query: How did Apple do?",
		"RETRIEVAL METADATA",
		"- Mode: hybrid",
		"- Retrieval Latency: 12ms",
		"ANALYSIS INSTRUCTIONS",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output", want)
		}
	}
	if strings.Contains(out, "FINANCIAL METRICS DATA") || strings.Contains(out, "EARNINGS COMMENTARY") {
		t.Fatalf("empty sections must be omitted:\n%s", out)
	}
}
