package usecase

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/finvault/internal/core/domain"
)

// KeywordTable holds the phrases that mark a query as numeric or narrative.
type KeywordTable struct {
	Numeric   []string `yaml:"numeric"`
	Narrative []string `yaml:"narrative"`
}

func DefaultKeywordTable() KeywordTable {
	return KeywordTable{
		Numeric: []string{
			"compare", "revenue", "profit", "margin", "roe", "roa", "growth",
			"vs", "higher", "lower", "ratio", "metric", "earnings", "assets",
			"how much", "what is", "financial", "balance", "cash", "debt",
		},
		Narrative: []string{
			"why", "explain", "management", "risk", "strategy", "outlook",
			"commentary", "discussion", "analyst", "transcript", "call",
			"guidance", "challenges", "opportunities", "competitive",
			"business model", "threat", "strength",
		},
	}
}

// LoadKeywordTable reads a YAML keyword table. Lists missing from the file
// keep their defaults.
func LoadKeywordTable(path string) (KeywordTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return KeywordTable{}, fmt.Errorf("read keyword table: %w", err)
	}
	var table KeywordTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return KeywordTable{}, domain.WrapError(domain.ErrInvalidInput, "parse keyword table", err)
	}
	def := DefaultKeywordTable()
	if len(table.Numeric) == 0 {
		table.Numeric = def.Numeric
	}
	if len(table.Narrative) == 0 {
		table.Narrative = def.Narrative
	}
	return table.normalize(), nil
}

func (t KeywordTable) normalize() KeywordTable {
	return KeywordTable{
		Numeric:   normalizeKeywords(t.Numeric),
		Narrative: normalizeKeywords(t.Narrative),
	}
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// QueryClassifier routes a query to a retrieval mode by keyword counting.
type QueryClassifier struct {
	table KeywordTable
}

func NewQueryClassifier(table KeywordTable) *QueryClassifier {
	if len(table.Numeric) == 0 && len(table.Narrative) == 0 {
		table = DefaultKeywordTable()
	}
	return &QueryClassifier{table: table.normalize()}
}

func (c *QueryClassifier) Classify(query string) domain.RetrievalMode {
	lower := strings.ToLower(query)
	numeric := countKeywordHits(lower, c.table.Numeric)
	narrative := countKeywordHits(lower, c.table.Narrative)

	switch {
	case numeric > narrative:
		return domain.ModeNumeric
	case narrative > numeric:
		return domain.ModeNarrative
	default:
		return domain.ModeHybrid
	}
}

func countKeywordHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}
