package domain

import "strings"

const (
	MinFiscalYear = 2000
	MaxFiscalYear = 2100

	MaxTickerLength = 10
)

// MetricRecord is one company-year of numeric fundamentals. Nil fields are
// metrics the ingestion pipeline could not derive.
type MetricRecord struct {
	Company string `json:"company"`
	Ticker  string `json:"ticker"`
	Year    *int   `json:"year,omitempty"`

	Revenue         *float64 `json:"revenue,omitempty"`
	NetIncome       *float64 `json:"net_income,omitempty"`
	OperatingIncome *float64 `json:"operating_income,omitempty"`
	FreeCashflow    *float64 `json:"free_cashflow,omitempty"`
	Assets          *float64 `json:"assets,omitempty"`
	Liabilities     *float64 `json:"liabilities,omitempty"`
	Equity          *float64 `json:"equity,omitempty"`
	Cash            *float64 `json:"cash,omitempty"`

	ProfitMarginPct    *float64 `json:"profit_margin_pct,omitempty"`
	GrossMarginPct     *float64 `json:"gross_margin_pct,omitempty"`
	ROEPct             *float64 `json:"roe_pct,omitempty"`
	ROAPct             *float64 `json:"roa_pct,omitempty"`
	RevenueGrowthPct   *float64 `json:"revenue_growth_pct,omitempty"`
	NetIncomeGrowthPct *float64 `json:"net_income_growth_pct,omitempty"`

	CurrentRatio *float64 `json:"current_ratio,omitempty"`
	DebtToEquity *float64 `json:"debt_to_equity,omitempty"`
}

// Usable reports whether the record identifies a company and carries a
// plausible fiscal year.
func (r MetricRecord) Usable() bool {
	if strings.TrimSpace(r.Ticker) == "" || strings.TrimSpace(r.Company) == "" {
		return false
	}
	if r.Year != nil && !ValidFiscalYear(*r.Year) {
		return false
	}
	return true
}

func ValidFiscalYear(year int) bool {
	return year >= MinFiscalYear && year <= MaxFiscalYear
}

// NarrativeChunk is one excerpt of filing or call-transcript text surfaced by
// semantic search. It is never persisted by this service.
type NarrativeChunk struct {
	DocType      string  `json:"doc_type"`
	Company      string  `json:"company"`
	Ticker       string  `json:"ticker"`
	Year         int     `json:"year"`
	Text         string  `json:"text"`
	SectionTitle string  `json:"section_title,omitempty"`
	PointID      string  `json:"point_id"`
	Score        float64 `json:"score"`
}

// NarrativePoint is a raw candidate returned by the vector index.
type NarrativePoint struct {
	ID      string
	Payload map[string]any
	Score   float64
}

type MetricsFilter struct {
	Ticker  string
	Company string
	Years   []int
	Limit   int
}

type NarrativeFilter struct {
	Tickers  []string
	DocTypes []string
}

type MetricsRequest struct {
	Tickers   []string `json:"tickers,omitempty"`
	Companies []string `json:"companies,omitempty"`
	Years     []int    `json:"years,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

type NarrativeRequest struct {
	Tickers        []string `json:"tickers,omitempty"`
	Years          []int    `json:"years,omitempty"`
	DocTypes       []string `json:"doc_types,omitempty"`
	TopK           int      `json:"top_k,omitempty"`
	ScoreThreshold float64  `json:"score_threshold,omitempty"`
}
