package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/finvault/internal/core/domain"
)

func TestQueryHistoryRepositorySaveQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	createdAt := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO query_history").
		WithArgs("r-1", "u-1", "How did Apple do?", "hybrid", 3, 2, "answer", "llama", 120, int64(840), createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewQueryHistoryRepository(db)
	err = repo.SaveQuery(context.Background(), domain.QueryRecord{
		ID:                 "r-1",
		UserID:             "u-1",
		Query:              "How did Apple do?",
		Mode:               domain.ModeHybrid,
		MetricsRetrieved:   3,
		NarrativeRetrieved: 2,
		Response:           "answer",
		Model:              "llama",
		TokensUsed:         120,
		LatencyMs:          840,
		CreatedAt:          createdAt,
	})
	if err != nil {
		t.Fatalf("SaveQuery() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryHistoryRepositoryListRecentQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "query", "retrieval_mode", "retrieved_metrics_count", "retrieved_narrative_count",
		"response", "model_used", "tokens_used", "latency_ms", "created_at",
	}).AddRow("r-1", "u-1", "q", "numeric", 4, 0, "a", "llama", 10, 300, time.Now())

	mock.ExpectQuery("FROM query_history").
		WithArgs("u-1", 20).
		WillReturnRows(rows)

	got, err := NewQueryHistoryRepository(db).ListRecentQueries(context.Background(), "u-1", 20)
	if err != nil {
		t.Fatalf("ListRecentQueries() error = %v", err)
	}
	if len(got) != 1 || got[0].Mode != domain.ModeNumeric || got[0].MetricsRetrieved != 4 {
		t.Fatalf("unexpected records: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryHistoryRepositoryDeleteQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM query_history WHERE user_id = \\$1").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewQueryHistoryRepository(db).DeleteQueries(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("DeleteQueries() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
