package usecase

import (
	"math"
	"strings"

	"github.com/kirillkom/finvault/internal/core/domain"
)

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(v, 1))
}

func normalizeTickers(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || len(t) > domain.MaxTickerLength {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizeCompanies(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func normalizeYears(in []int) []int {
	out := make([]int, 0, len(in))
	for _, y := range in {
		if domain.ValidFiscalYear(y) {
			out = append(out, y)
		}
	}
	return out
}

func normalizeDocTypes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func runeLen(s string) int {
	return len([]rune(s))
}
