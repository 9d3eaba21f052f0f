package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockKey int64 = 2026101801

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables this service reads and writes. Metrics
// rows are loaded by the ingestion pipeline.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS financial_metrics (
	id SERIAL PRIMARY KEY,
	company VARCHAR(50) NOT NULL,
	ticker VARCHAR(10),
	year INTEGER NOT NULL,
	revenue NUMERIC,
	net_income NUMERIC,
	operating_income NUMERIC,
	free_cashflow NUMERIC,
	assets NUMERIC,
	liabilities NUMERIC,
	equity NUMERIC,
	cash NUMERIC,
	profit_margin_pct NUMERIC,
	gross_margin_pct NUMERIC,
	roe_pct NUMERIC,
	roa_pct NUMERIC,
	current_ratio NUMERIC,
	debt_to_equity NUMERIC,
	revenue_growth_pct NUMERIC,
	net_income_growth_pct NUMERIC,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (company, year)
);

CREATE INDEX IF NOT EXISTS idx_financial_metrics_ticker_year ON financial_metrics(ticker, year);
CREATE INDEX IF NOT EXISTS idx_financial_metrics_company_year ON financial_metrics(company, year);

CREATE TABLE IF NOT EXISTS query_history (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	query TEXT NOT NULL,
	retrieval_mode VARCHAR(20) NOT NULL,
	retrieved_metrics_count INTEGER NOT NULL DEFAULT 0,
	retrieved_narrative_count INTEGER NOT NULL DEFAULT 0,
	response TEXT,
	model_used VARCHAR(100),
	tokens_used INTEGER NOT NULL DEFAULT 0,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_history_user_created ON query_history(user_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
