package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/finvault/internal/core/domain"
)

func TestContradictionDetectorParsesVerdicts(t *testing.T) {
	cases := []struct {
		output       string
		wantKind     domain.VerdictKind
		wantEvidence string
	}{
		{"[CONTRADICTION]: CEO claimed growth while revenue fell 10%", domain.VerdictContradiction, "CEO claimed growth while revenue fell 10%"},
		{"Reviewed.\n[ALIGNED] metrics match commentary", domain.VerdictAligned, ""},
		{"[UNCLEAR] not enough data, no [CONTRADICTION] visible", domain.VerdictUnclear, ""},
	}
	for _, tc := range cases {
		inf := &inferencerFake{result: domain.Inference{Text: tc.output, Model: "m"}}
		d := NewContradictionDetector(inf, time.Second, discardLogger())

		v := d.Detect(context.Background(), "metrics", "narrative")
		if v == nil {
			t.Fatalf("%q: expected verdict", tc.output)
		}
		if v.Kind != tc.wantKind {
			t.Fatalf("%q: expected %s, got %s", tc.output, tc.wantKind, v.Kind)
		}
		if v.Evidence != tc.wantEvidence {
			t.Fatalf("%q: expected evidence %q, got %q", tc.output, tc.wantEvidence, v.Evidence)
		}
	}
}

func TestContradictionDetectorUntaggedOutputIsUnclear(t *testing.T) {
	inf := &inferencerFake{result: domain.Inference{Text: "Looks fine to me."}}
	d := NewContradictionDetector(inf, time.Second, discardLogger())

	v := d.Detect(context.Background(), "metrics", "narrative")
	if v == nil || v.Kind != domain.VerdictUnclear {
		t.Fatalf("expected UNCLEAR verdict, got %+v", v)
	}
	if !strings.Contains(v.Raw, "[UNCLEAR]") {
		t.Fatalf("expected [UNCLEAR] tag in raw verdict, got %q", v.Raw)
	}
}

func TestContradictionDetectorUnavailable(t *testing.T) {
	cases := map[string]*ContradictionDetector{
		"nil inferencer": NewContradictionDetector(nil, time.Second, discardLogger()),
		"degraded": NewContradictionDetector(&inferencerFake{result: domain.Inference{
			Text: "mock response (inference failed)", Degraded: true,
		}}, time.Second, discardLogger()),
		"empty output": NewContradictionDetector(&inferencerFake{result: domain.Inference{Text: "   "}}, time.Second, discardLogger()),
		"panic": NewContradictionDetector(&inferencerFake{fn: func(context.Context, string) domain.Inference {
			panic("provider bug")
		}}, time.Second, discardLogger()),
	}
	for name, d := range cases {
		if v := d.Detect(context.Background(), "metrics", "narrative"); v != nil {
			t.Fatalf("%s: expected nil verdict, got %+v", name, v)
		}
	}
}

func TestContradictionDetectorSkipsEmptySummaries(t *testing.T) {
	inf := &inferencerFake{result: domain.Inference{Text: "[ALIGNED]"}}
	d := NewContradictionDetector(inf, time.Second, discardLogger())

	if v := d.Detect(context.Background(), " ", ""); v != nil {
		t.Fatalf("expected nil verdict, got %+v", v)
	}
	if len(inf.prompts) != 0 {
		t.Fatalf("expected no model call, got %d", len(inf.prompts))
	}
}

func TestContradictionDetectorTimeout(t *testing.T) {
	inf := &inferencerFake{fn: func(ctx context.Context, _ string) domain.Inference {
		<-ctx.Done()
		return domain.Inference{Text: "[ALIGNED]"}
	}}
	d := NewContradictionDetector(inf, 20*time.Millisecond, discardLogger())

	start := time.Now()
	if v := d.Detect(context.Background(), "metrics", "narrative"); v != nil {
		t.Fatalf("expected nil verdict on timeout, got %+v", v)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout not honoured, took %s", elapsed)
	}
}

func TestContradictionDetectorBoundsPromptAndOutput(t *testing.T) {
	inf := &inferencerFake{result: domain.Inference{Text: "[ALIGNED] " + strings.Repeat("z", 2000)}}
	d := NewContradictionDetector(inf, time.Second, discardLogger())

	v := d.Detect(context.Background(), strings.Repeat("m", 5000), strings.Repeat("n", 5000))
	if v == nil {
		t.Fatalf("expected verdict")
	}
	if n := len([]rune(v.Raw)); n != maxVerdictChars {
		t.Fatalf("expected raw verdict capped at %d, got %d", maxVerdictChars, n)
	}
	prompt := inf.prompts[0]
	if strings.Contains(prompt, strings.Repeat("m", maxSummaryChars+1)) || strings.Contains(prompt, strings.Repeat("n", maxSummaryChars+1)) {
		t.Fatalf("summaries not truncated in prompt")
	}
}
