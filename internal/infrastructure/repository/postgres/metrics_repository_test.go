package postgres

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/infrastructure/resilience"
)

var metricsRowColumns = []string{
	"company", "ticker", "year",
	"revenue", "net_income", "operating_income", "free_cashflow",
	"assets", "liabilities", "equity", "cash",
	"profit_margin_pct", "gross_margin_pct", "roe_pct", "roa_pct",
	"revenue_growth_pct", "net_income_growth_pct",
	"current_ratio", "debt_to_equity",
}

func TestBuildMetricsQueryBindsEveryFilter(t *testing.T) {
	query, args := buildMetricsQuery(domain.MetricsFilter{
		Ticker:  "AAPL",
		Company: "Apple",
		Years:   []int{2024, 2023},
		Limit:   25,
	})

	for _, want := range []string{
		"ticker = $1",
		"LOWER(company) = LOWER($2)",
		"year = ANY($3::int[])",
		"ORDER BY year DESC, ticker ASC",
		"LIMIT $4",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("expected %q in query:\n%s", want, query)
		}
	}
	if len(args) != 4 || args[0] != "AAPL" || args[2] != "{2024,2023}" || args[3] != 25 {
		t.Fatalf("unexpected args: %v", args)
	}
	if strings.Contains(query, "Apple") || strings.Contains(query, "2024") {
		t.Fatalf("filter values must not be interpolated:\n%s", query)
	}
}

func TestBuildMetricsQueryWithoutFilters(t *testing.T) {
	query, args := buildMetricsQuery(domain.MetricsFilter{Limit: 10})
	if strings.Contains(query, "WHERE") {
		t.Fatalf("expected no WHERE clause:\n%s", query)
	}
	if len(args) != 1 || args[0] != 10 {
		t.Fatalf("expected only the limit argument, got %v", args)
	}
}

func TestMetricsRepositoryListMetricsScansNullableColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(metricsRowColumns).
		AddRow("Apple Inc", "AAPL", int64(2024),
			391.0e9, 93.7e9, nil, nil,
			nil, nil, nil, nil,
			23.97, nil, nil, nil,
			2.02, nil,
			nil, 1.87).
		AddRow("Apple Inc", "AAPL", nil,
			nil, nil, nil, nil,
			nil, nil, nil, nil,
			nil, nil, nil, nil,
			nil, nil,
			nil, nil)

	mock.ExpectQuery("FROM financial_metrics").
		WithArgs("AAPL", 5).
		WillReturnRows(rows)

	repo := NewMetricsRepository(db, nil)
	got, err := repo.ListMetrics(context.Background(), domain.MetricsFilter{Ticker: "AAPL", Limit: 5})
	if err != nil {
		t.Fatalf("ListMetrics() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	first := got[0]
	if first.Year == nil || *first.Year != 2024 {
		t.Fatalf("expected year 2024, got %v", first.Year)
	}
	if first.Revenue == nil || *first.Revenue != 391.0e9 || first.OperatingIncome != nil {
		t.Fatalf("unexpected money columns: %+v", first)
	}
	if first.RevenueGrowthPct == nil || *first.RevenueGrowthPct != 2.02 || first.DebtToEquity == nil || *first.DebtToEquity != 1.87 {
		t.Fatalf("unexpected ratio columns: %+v", first)
	}
	if got[1].Year != nil || got[1].Revenue != nil {
		t.Fatalf("expected nil fields for NULL columns: %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMetricsRepositoryListMetricsWrapsBackendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM financial_metrics").
		WithArgs(1).
		WillReturnError(errors.New("connection reset"))

	_, err = NewMetricsRepository(db, nil).ListMetrics(context.Background(), domain.MetricsFilter{Limit: 1})
	if !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
}

func TestMetricsRepositoryRetriesTransientNetworkError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM financial_metrics").
		WithArgs("AAPL", 1).
		WillReturnError(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")})
	mock.ExpectQuery("FROM financial_metrics").
		WithArgs("AAPL", 1).
		WillReturnRows(sqlmock.NewRows(metricsRowColumns).AddRow(
			"Apple Inc.", "AAPL", int64(2024),
			391.0e9, nil, nil, nil,
			nil, nil, nil, nil,
			nil, nil, nil, nil,
			nil, nil,
			nil, nil))

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	}, nil)
	got, err := NewMetricsRepository(db, exec).ListMetrics(context.Background(), domain.MetricsFilter{Ticker: "AAPL", Limit: 1})
	if err != nil {
		t.Fatalf("ListMetrics() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record after retry, got %d", len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(schemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS financial_metrics").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
