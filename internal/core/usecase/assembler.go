package usecase

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/kirillkom/finvault/internal/core/domain"
)

const (
	MaxContextMetrics        = 15
	MaxContextChunks         = 5
	MaxContextNarrativeChars = 5000

	truncationMarker = "...[truncated]"
	maxSectionTitle  = 100
)

const analysisInstructions = `You are a financial research agent. Analyze the provided data and respond to the query.

REQUIREMENTS:
1. Ground all claims in the provided metrics or citations
2. Use [Source: ...] labels to cite where each insight originates
3. Compare numeric data with narrative insights where relevant
4. Identify any contradictions between quantitative metrics and qualitative commentary
5. Flag any data inconsistencies or missing information

CONTRADICTION DETECTION:
If earnings commentary contradicts the financial metrics (for example management
claims "strong growth" while revenue declined), call it out explicitly as
"[ALERT] <claim> vs <metric>".`

var (
	heavyRule = strings.Repeat("=", 70)
	lightRule = strings.Repeat("-", 70)
)

// ContextAssembler renders retrieved records into one bounded, citation
// labelled document for the reasoning model.
type ContextAssembler struct {
	logger *slog.Logger
}

func NewContextAssembler(logger *slog.Logger) *ContextAssembler {
	return &ContextAssembler{logger: loggerOrDefault(logger)}
}

func (a *ContextAssembler) Assemble(query string, metrics []domain.MetricRecord, chunks []domain.NarrativeChunk) string {
	return a.assemble(query, metrics, chunks, nil)
}

// AssembleHybrid renders hc and appends its retrieval metadata.
func (a *ContextAssembler) AssembleHybrid(hc *domain.HybridContext) string {
	if hc == nil {
		return a.assemble("", nil, nil, nil)
	}
	return a.assemble(hc.Query, hc.Metrics, hc.Narrative, &hc.Summary)
}

func (a *ContextAssembler) assemble(query string, metrics []domain.MetricRecord, chunks []domain.NarrativeChunk, summary *domain.RetrievalSummary) string {
	var b strings.Builder
	b.WriteString(heavyRule + "\nFINANCIAL RESEARCH CONTEXT\n" + heavyRule + "\n\n")
	b.WriteString("Query: " + query + "\n")

	if section := a.RenderMetrics(metrics); section != "" {
		b.WriteString("\nFINANCIAL METRICS DATA\n" + lightRule + "\n")
		b.WriteString(section)
	}
	if section := a.RenderNarrative(chunks); section != "" {
		b.WriteString("\nEARNINGS COMMENTARY & NARRATIVE CONTEXT\n" + lightRule + "\n")
		b.WriteString(section)
	}
	if summary != nil {
		b.WriteString("\nRETRIEVAL METADATA\n" + lightRule + "\n")
		fmt.Fprintf(&b, "- Mode: %s\n- Numeric Records: %d\n- Narrative Chunks: %d\n- Retrieval Latency: %dms\n",
			summary.Mode, summary.NumericRetrieved, summary.NarrativeRetrieved, summary.LatencyMs)
	}

	b.WriteString("\n" + heavyRule + "\nANALYSIS INSTRUCTIONS\n" + heavyRule + "\n")
	b.WriteString(analysisInstructions + "\n")
	return b.String()
}

// RenderMetrics renders up to MaxContextMetrics usable records.
func (a *ContextAssembler) RenderMetrics(metrics []domain.MetricRecord) string {
	var b strings.Builder
	rendered := 0
	for _, m := range metrics {
		if rendered == MaxContextMetrics {
			break
		}
		if strings.TrimSpace(m.Ticker) == "" || strings.TrimSpace(m.Company) == "" {
			a.logger.Warn("context_metric_skipped", "reason", "missing ticker or company")
			continue
		}
		fmt.Fprintf(&b, "\n%s (%s) - FY %s\n", m.Company, m.Ticker, fiscalYearText(m.Year))
		for _, line := range metricLines(m) {
			b.WriteString("  - " + line + "\n")
		}
		rendered++
	}
	if len(metrics) > rendered {
		a.logger.Debug("context_metrics_capped", "given", len(metrics), "rendered", rendered)
	}
	return b.String()
}

type citedChunk struct {
	label string
	chunk domain.NarrativeChunk
}

// RenderNarrative renders up to MaxContextChunks cited chunks within the
// MaxContextNarrativeChars body budget.
func (a *ContextAssembler) RenderNarrative(chunks []domain.NarrativeChunk) string {
	selected := make([]citedChunk, 0, MaxContextChunks)
	for _, c := range chunks {
		if len(selected) == MaxContextChunks {
			a.logger.Debug("context_chunks_capped", "given", len(chunks))
			break
		}
		ticker := strings.TrimSpace(c.Ticker)
		if ticker == "" || strings.EqualFold(ticker, "unknown") {
			a.logger.Warn("context_chunk_skipped", "reason", "missing ticker", "point_id", c.PointID)
			continue
		}
		selected = append(selected, citedChunk{label: citationLabel(c), chunk: c})
	}

	var b strings.Builder
	total := 0
	for _, item := range groupByLabel(selected) {
		text := item.chunk.Text
		capped := truncateRunes(text, MaxChunkChars)
		cappedLen := runeLen(capped)
		if total+cappedLen > MaxContextNarrativeChars {
			a.logger.Debug("context_narrative_budget_exhausted", "rendered_chars", total)
			break
		}

		b.WriteString("\n[Source: " + item.label + "]\n")
		if title := strings.TrimSpace(item.chunk.SectionTitle); title != "" {
			b.WriteString("Section: " + truncateRunes(title, maxSectionTitle) + "\n")
		}
		fmt.Fprintf(&b, "Relevance Score: %.3f\n", clampScore(item.chunk.Score))
		b.WriteString("```\n" + capped + "\n")
		if runeLen(text) > MaxChunkChars {
			b.WriteString(truncationMarker + "\n")
		}
		b.WriteString("```\n")
		total += cappedLen
	}
	return b.String()
}

func groupByLabel(items []citedChunk) []citedChunk {
	order := make([]string, 0, len(items))
	groups := make(map[string][]citedChunk, len(items))
	for _, item := range items {
		if _, ok := groups[item.label]; !ok {
			order = append(order, item.label)
		}
		groups[item.label] = append(groups[item.label], item)
	}
	out := make([]citedChunk, 0, len(items))
	for _, label := range order {
		out = append(out, groups[label]...)
	}
	return out
}

func citationLabel(c domain.NarrativeChunk) string {
	parts := []string{strings.ToUpper(strings.TrimSpace(c.Ticker)), docTypeTitle(c.DocType)}
	if c.Year > 0 {
		parts = append(parts, "FY"+strconv.Itoa(c.Year))
	}
	label := strings.Join(parts, " ")
	return strings.NewReplacer("<", "", ">", "").Replace(label)
}

// docTypeTitle turns "earnings_call" into "Earnings Call" and "10-k" into
// "10-K": a letter is upper-cased when it does not follow another letter.
func docTypeTitle(docType string) string {
	docType = strings.Join(strings.Fields(strings.ReplaceAll(docType, "_", " ")), " ")
	if docType == "" {
		return "Unknown"
	}
	var b strings.Builder
	afterLetter := false
	for _, r := range docType {
		switch {
		case unicode.IsLetter(r) && afterLetter:
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(r)
		}
		afterLetter = unicode.IsLetter(r)
	}
	return b.String()
}

func fiscalYearText(year *int) string {
	if year == nil {
		return "N/A"
	}
	return strconv.Itoa(*year)
}

type metricField struct {
	label string
	value *float64
	kind  byte // '$' money, '%' percent, 'x' ratio
}

func metricLines(m domain.MetricRecord) []string {
	fields := []metricField{
		{"Revenue", m.Revenue, '$'},
		{"Net Income", m.NetIncome, '$'},
		{"Operating Income", m.OperatingIncome, '$'},
		{"Free Cash Flow", m.FreeCashflow, '$'},
		{"Total Assets", m.Assets, '$'},
		{"Total Liabilities", m.Liabilities, '$'},
		{"Equity", m.Equity, '$'},
		{"Cash", m.Cash, '$'},
		{"Profit Margin", m.ProfitMarginPct, '%'},
		{"Gross Margin", m.GrossMarginPct, '%'},
		{"ROE", m.ROEPct, '%'},
		{"ROA", m.ROAPct, '%'},
		{"Revenue Growth", m.RevenueGrowthPct, '%'},
		{"Net Income Growth", m.NetIncomeGrowthPct, '%'},
		{"Current Ratio", m.CurrentRatio, 'x'},
		{"Debt to Equity", m.DebtToEquity, 'x'},
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.value == nil || math.IsNaN(*f.value) || math.IsInf(*f.value, 0) {
			continue
		}
		switch f.kind {
		case '%':
			lines = append(lines, fmt.Sprintf("%s: %.2f%%", f.label, *f.value))
		case 'x':
			lines = append(lines, fmt.Sprintf("%s: %.2fx", f.label, *f.value))
		default:
			lines = append(lines, f.label+": "+formatMoney(*f.value))
		}
	}
	return lines
}

// formatMoney shows billions from 1e9 upward and millions below.
func formatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	if v >= 1e9 {
		return fmt.Sprintf("%s$%.2fB", sign, v/1e9)
	}
	return fmt.Sprintf("%s$%.2fM", sign, v/1e6)
}
