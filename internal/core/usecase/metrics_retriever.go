package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/core/ports"
)

const (
	minMetricsLimit = 1
	maxMetricsLimit = 100

	metricsSubQueryParallelism = 4
)

type MetricsRetriever struct {
	repo     ports.MetricsRepository
	timeout  time.Duration
	logger   *slog.Logger
	observer ports.RetrievalObserver
}

func NewMetricsRetriever(repo ports.MetricsRepository, timeout time.Duration, logger *slog.Logger, observer ports.RetrievalObserver) *MetricsRetriever {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MetricsRetriever{
		repo:     repo,
		timeout:  timeout,
		logger:   loggerOrDefault(logger),
		observer: observerOrNoop(observer),
	}
}

type metricsSubQuery struct {
	label  string
	filter domain.MetricsFilter
}

// Fetch returns validated metric records. Backend failures degrade to fewer
// (or zero) records and are only logged.
func (r *MetricsRetriever) Fetch(ctx context.Context, req domain.MetricsRequest) []domain.MetricRecord {
	limit := clampInt(req.Limit, minMetricsLimit, maxMetricsLimit)

	tickers := normalizeTickers(req.Tickers)
	if len(req.Tickers) > 0 && len(tickers) == 0 {
		r.logger.Debug("metrics_tickers_filtered_out", "given", len(req.Tickers))
		return []domain.MetricRecord{}
	}
	companies := normalizeCompanies(req.Companies)
	if len(req.Companies) > 0 && len(companies) == 0 {
		r.logger.Debug("metrics_companies_filtered_out", "given", len(req.Companies))
		return []domain.MetricRecord{}
	}
	years := normalizeYears(req.Years)
	if len(req.Years) > 0 && len(years) == 0 {
		r.logger.Debug("metrics_years_filtered_out", "given", len(req.Years))
		years = nil
	}

	queries := planMetricsSubQueries(tickers, companies, years, limit)
	results := make([][]domain.MetricRecord, len(queries))

	var g errgroup.Group
	g.SetLimit(metricsSubQueryParallelism)
	for i, q := range queries {
		g.Go(func() error {
			results[i] = r.runSubQuery(ctx, q)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.MetricRecord, 0, limit)
	for _, records := range results {
		out = append(out, records...)
	}
	r.logger.Info("metrics_retrieved", "records", len(out), "sub_queries", len(queries))
	return out
}

func planMetricsSubQueries(tickers, companies []string, years []int, limit int) []metricsSubQuery {
	switch {
	case len(tickers) > 0:
		out := make([]metricsSubQuery, 0, len(tickers))
		for _, t := range tickers {
			out = append(out, metricsSubQuery{
				label:  "ticker=" + t,
				filter: domain.MetricsFilter{Ticker: t, Years: years, Limit: limit},
			})
		}
		return out
	case len(companies) > 0:
		out := make([]metricsSubQuery, 0, len(companies))
		for _, c := range companies {
			out = append(out, metricsSubQuery{
				label:  "company=" + c,
				filter: domain.MetricsFilter{Company: c, Years: years, Limit: limit},
			})
		}
		return out
	default:
		return []metricsSubQuery{{
			label:  "default",
			filter: domain.MetricsFilter{Years: years, Limit: limit},
		}}
	}
}

func (r *MetricsRetriever) runSubQuery(ctx context.Context, q metricsSubQuery) (out []domain.MetricRecord) {
	defer func() {
		if p := recover(); p != nil {
			r.observer.ObserveBackendFailure("postgres")
			r.logger.Error("metrics_subquery_panic", "sub_query", q.label, "panic", fmt.Sprint(p))
			out = nil
		}
	}()

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.repo.ListMetrics(queryCtx, q.filter)
	if err != nil {
		r.observer.ObserveBackendFailure("postgres")
		r.logger.Warn("metrics_subquery_failed",
			"component", "metrics_retriever",
			"backend", "postgres",
			"sub_query", q.label,
			"error_kind", domain.ErrorKind(err),
			"error", err,
		)
		return nil
	}

	valid := make([]domain.MetricRecord, 0, len(records))
	dropped := 0
	for _, rec := range records {
		if !rec.Usable() {
			dropped++
			continue
		}
		valid = append(valid, rec)
	}
	if dropped > 0 {
		r.logger.Warn("metrics_records_dropped", "sub_query", q.label, "dropped", dropped)
	}
	return valid
}
