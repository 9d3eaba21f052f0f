package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/kirillkom/finvault/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

type metricsRepoFake struct {
	mu      sync.Mutex
	filters []domain.MetricsFilter
	byKey   map[string][]domain.MetricRecord
	errKeys map[string]error
	fn      func(ctx context.Context, f domain.MetricsFilter) ([]domain.MetricRecord, error)
}

func (f *metricsRepoFake) ListMetrics(ctx context.Context, filter domain.MetricsFilter) ([]domain.MetricRecord, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, filter)
	}
	key := filter.Ticker + filter.Company
	if err := f.errKeys[key]; err != nil {
		return nil, err
	}
	return f.byKey[key], nil
}

type narrativeIndexFake struct {
	exists    bool
	existsErr error
	points    []domain.NarrativePoint
	searchErr error

	gotLimit     int
	gotThreshold float64
	gotFilter    domain.NarrativeFilter
	searchCalls  int
}

func (f *narrativeIndexFake) CollectionExists(context.Context) (bool, error) {
	return f.exists, f.existsErr
}

func (f *narrativeIndexFake) SearchPoints(_ context.Context, _ []float32, limit int, threshold float64, filter domain.NarrativeFilter) ([]domain.NarrativePoint, error) {
	f.searchCalls++
	f.gotLimit = limit
	f.gotThreshold = threshold
	f.gotFilter = filter
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.points, nil
}

type embedderFake struct {
	vector []float32
	err    error
	calls  int
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

type inferencerFake struct {
	mu      sync.Mutex
	result  domain.Inference
	fn      func(ctx context.Context, prompt string) domain.Inference
	prompts []string
}

func (f *inferencerFake) Infer(ctx context.Context, prompt string) domain.Inference {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, prompt)
	}
	return f.result
}

type observerFake struct {
	mu        sync.Mutex
	summaries []domain.RetrievalSummary
	failures  []string
	verdicts  []domain.VerdictKind
	models    []string
}

func (o *observerFake) ObserveRetrieval(s domain.RetrievalSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, s)
}

func (o *observerFake) ObserveBackendFailure(backend string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, backend)
}

func (o *observerFake) ObserveVerdict(kind domain.VerdictKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verdicts = append(o.verdicts, kind)
}

func (o *observerFake) ObserveInference(model string, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.models = append(o.models, model)
}

func metric(ticker string, year int) domain.MetricRecord {
	return domain.MetricRecord{
		Company: ticker + " Inc",
		Ticker:  ticker,
		Year:    intPtr(year),
		Revenue: floatPtr(100e9),
	}
}

func narrativePoint(id, ticker string, year int, docType, text string, score float64) domain.NarrativePoint {
	return domain.NarrativePoint{
		ID:    id,
		Score: score,
		Payload: map[string]any{
			"ticker":   ticker,
			"company":  ticker + " Inc",
			"year":     float64(year),
			"doc_type": docType,
			"text":     text,
		},
	}
}
