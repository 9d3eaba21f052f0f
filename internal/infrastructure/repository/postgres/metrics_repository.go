package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/infrastructure/resilience"
)

const metricsColumns = `company, COALESCE(ticker, ''), year,
	revenue::float8, net_income::float8, operating_income::float8, free_cashflow::float8,
	assets::float8, liabilities::float8, equity::float8, cash::float8,
	profit_margin_pct::float8, gross_margin_pct::float8, roe_pct::float8, roa_pct::float8,
	revenue_growth_pct::float8, net_income_growth_pct::float8,
	current_ratio::float8, debt_to_equity::float8`

type MetricsRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

// NewMetricsRepository takes an optional executor; nil runs each query once.
func NewMetricsRepository(db *sql.DB, executor *resilience.Executor) *MetricsRepository {
	return &MetricsRepository{db: db, executor: executor}
}

// ListMetrics returns the newest years first. All filter values travel as
// bind parameters.
func (r *MetricsRepository) ListMetrics(ctx context.Context, filter domain.MetricsFilter) ([]domain.MetricRecord, error) {
	query, args := buildMetricsQuery(filter)

	out, err := resilience.Call(ctx, r.executor, "postgres.list_metrics", func(ctx context.Context) ([]domain.MetricRecord, error) {
		return r.queryMetrics(ctx, query, args, filter.Limit)
	}, resilience.ClassifyError)
	if err != nil {
		return nil, resilience.WrapBackendError("list metrics", err, resilience.ClassifyError)
	}
	return out, nil
}

func (r *MetricsRepository) queryMetrics(ctx context.Context, query string, args []any, limit int) ([]domain.MetricRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "list metrics", err)
	}
	defer rows.Close()

	out := make([]domain.MetricRecord, 0, max(limit, 0))
	for rows.Next() {
		rec, err := scanMetricRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metric record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "iterate metrics", err)
	}
	return out, nil
}

func buildMetricsQuery(filter domain.MetricsFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Ticker != "" {
		where = append(where, "ticker = "+next(filter.Ticker))
	}
	if filter.Company != "" {
		where = append(where, "LOWER(company) = LOWER("+next(filter.Company)+")")
	}
	if len(filter.Years) > 0 {
		where = append(where, "year = ANY("+next(intArrayLiteral(filter.Years))+"::int[])")
	}

	var b strings.Builder
	b.WriteString("SELECT " + metricsColumns + "\nFROM financial_metrics")
	if len(where) > 0 {
		b.WriteString("\nWHERE " + strings.Join(where, " AND "))
	}
	b.WriteString("\nORDER BY year DESC, ticker ASC")
	b.WriteString("\nLIMIT " + next(max(filter.Limit, 1)))
	return b.String(), args
}

func intArrayLiteral(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func scanMetricRecord(rows *sql.Rows) (domain.MetricRecord, error) {
	var (
		rec  domain.MetricRecord
		year sql.NullInt64
		nums [16]sql.NullFloat64
	)
	dest := []any{&rec.Company, &rec.Ticker, &year}
	for i := range nums {
		dest = append(dest, &nums[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return domain.MetricRecord{}, err
	}

	if year.Valid {
		y := int(year.Int64)
		rec.Year = &y
	}
	targets := []**float64{
		&rec.Revenue, &rec.NetIncome, &rec.OperatingIncome, &rec.FreeCashflow,
		&rec.Assets, &rec.Liabilities, &rec.Equity, &rec.Cash,
		&rec.ProfitMarginPct, &rec.GrossMarginPct, &rec.ROEPct, &rec.ROAPct,
		&rec.RevenueGrowthPct, &rec.NetIncomeGrowthPct,
		&rec.CurrentRatio, &rec.DebtToEquity,
	}
	for i, target := range targets {
		if nums[i].Valid {
			v := nums[i].Float64
			*target = &v
		}
	}
	return rec, nil
}
