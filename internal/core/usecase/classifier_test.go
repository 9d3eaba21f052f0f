package usecase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/finvault/internal/core/domain"
)

func TestQueryClassifierClassify(t *testing.T) {
	c := NewQueryClassifier(DefaultKeywordTable())

	cases := []struct {
		query string
		want  domain.RetrievalMode
	}{
		{"Compare revenue and profit margin for AAPL", domain.ModeNumeric},
		{"Why did management change strategy?", domain.ModeNarrative},
		{"hello there", domain.ModeHybrid},
		{"explain the revenue", domain.ModeHybrid},
		{"", domain.ModeHybrid},
		{"WHAT IS THE DEBT RATIO", domain.ModeNumeric},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.query); got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.query, got, tc.want)
		}
	}
}

func TestQueryClassifierDeterministic(t *testing.T) {
	c := NewQueryClassifier(KeywordTable{})
	q := "Explain the outlook and compare margins"
	first := c.Classify(q)
	for range 10 {
		if got := c.Classify(q); got != first {
			t.Fatalf("expected stable mode %s, got %s", first, got)
		}
	}
}

func TestLoadKeywordTableKeepsDefaultsForMissingLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	if err := os.WriteFile(path, []byte("numeric:\n  - EBITDA\n"), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}

	table, err := LoadKeywordTable(path)
	if err != nil {
		t.Fatalf("LoadKeywordTable() error = %v", err)
	}
	if len(table.Numeric) != 1 || table.Numeric[0] != "ebitda" {
		t.Fatalf("unexpected numeric list: %v", table.Numeric)
	}
	if len(table.Narrative) != len(DefaultKeywordTable().Narrative) {
		t.Fatalf("expected default narrative list, got %v", table.Narrative)
	}

	c := NewQueryClassifier(table)
	if got := c.Classify("ebitda trend"); got != domain.ModeNumeric {
		t.Fatalf("expected numeric, got %s", got)
	}
}

func TestLoadKeywordTableRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	if err := os.WriteFile(path, []byte("numeric: [unclosed"), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}
	_, err := LoadKeywordTable(path)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}
