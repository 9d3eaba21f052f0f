package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/core/ports"
)

const (
	maxSummaryChars = 2000
	maxVerdictChars = 500

	formatErrorVerdict = "[UNCLEAR]: Output format error"
)

var verdictKinds = []domain.VerdictKind{
	domain.VerdictContradiction,
	domain.VerdictAligned,
	domain.VerdictUnclear,
}

// ContradictionDetector asks the model whether narrative claims contradict
// the numeric evidence.
type ContradictionDetector struct {
	inferencer ports.Inferencer
	timeout    time.Duration
	logger     *slog.Logger
}

func NewContradictionDetector(inferencer ports.Inferencer, timeout time.Duration, logger *slog.Logger) *ContradictionDetector {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ContradictionDetector{
		inferencer: inferencer,
		timeout:    timeout,
		logger:     loggerOrDefault(logger),
	}
}

// Detect returns nil when no verdict is available. A nil verdict never means
// the evidence is aligned.
func (d *ContradictionDetector) Detect(ctx context.Context, numericSummary, narrativeSummary string) (verdict *domain.ContradictionVerdict) {
	if d == nil || d.inferencer == nil {
		return nil
	}
	if strings.TrimSpace(numericSummary) == "" && strings.TrimSpace(narrativeSummary) == "" {
		d.logger.Debug("contradiction_check_skipped", "reason", "empty summaries")
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("contradiction_check_panic", "panic", fmt.Sprint(r))
			verdict = nil
		}
	}()

	inferCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result := d.inferencer.Infer(inferCtx, buildContradictionPrompt(numericSummary, narrativeSummary))
	if result.Degraded {
		d.logger.Warn("contradiction_check_unavailable", "model", result.Model)
		return nil
	}
	if inferCtx.Err() != nil {
		d.logger.Warn("contradiction_check_timeout", "timeout_ms", d.timeout.Milliseconds())
		return nil
	}

	output := truncateRunes(strings.TrimSpace(result.Text), maxVerdictChars)
	if output == "" {
		d.logger.Warn("contradiction_check_empty_output", "model", result.Model)
		return nil
	}
	parsed, err := parseVerdict(output)
	if err != nil {
		d.logger.Warn("contradiction_check_format_violation",
			"error_kind", domain.ErrorKind(err),
			"output_head", truncateRunes(output, 100),
		)
		return &domain.ContradictionVerdict{Kind: domain.VerdictUnclear, Raw: formatErrorVerdict}
	}
	return parsed
}

// parseVerdict picks the earliest verdict tag in output.
func parseVerdict(output string) (*domain.ContradictionVerdict, error) {
	best := -1
	var kind domain.VerdictKind
	for _, k := range verdictKinds {
		idx := strings.Index(output, k.Tag())
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
			kind = k
		}
	}
	if best < 0 {
		return nil, domain.WrapError(domain.ErrFormatViolation, "parse verdict", fmt.Errorf("no verdict tag"))
	}

	verdict := &domain.ContradictionVerdict{Kind: kind, Raw: output}
	if kind == domain.VerdictContradiction {
		evidence := output[best+len(kind.Tag()):]
		evidence = strings.TrimLeft(evidence, " :-\t\n")
		evidence = strings.TrimSpace(strings.TrimPrefix(evidence, "if found:"))
		verdict.Evidence = evidence
	}
	return verdict, nil
}

func buildContradictionPrompt(numericSummary, narrativeSummary string) string {
	return fmt.Sprintf(`You are a financial auditor. Review the following financial metrics and
narrative excerpts for contradictions.

FINANCIAL METRICS:
%s

NARRATIVE (from earnings calls and filings):
%s

Identify ANY statements in the narrative that contradict the metrics, such as:
- claims of growth when metrics show decline
- confidence in the outlook when metrics deteriorated
- denial of risks that the metrics show
- quantitative guidance inconsistent with historical trends

Your response MUST start with exactly one of these tags:
[CONTRADICTION] if you found contradictions, followed by ": <specific contradiction with evidence>"
[ALIGNED] if metrics and narrative are consistent
[UNCLEAR] if there is insufficient data to decide
`, truncateRunes(numericSummary, maxSummaryChars), truncateRunes(narrativeSummary, maxSummaryChars))
}
