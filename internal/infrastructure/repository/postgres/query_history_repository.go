package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/finvault/internal/core/domain"
)

type QueryHistoryRepository struct {
	db *sql.DB
}

func NewQueryHistoryRepository(db *sql.DB) *QueryHistoryRepository {
	return &QueryHistoryRepository{db: db}
}

// SaveQuery is idempotent per record id, so redelivered events are harmless.
func (r *QueryHistoryRepository) SaveQuery(ctx context.Context, record domain.QueryRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO query_history (
	id, user_id, query, retrieval_mode, retrieved_metrics_count, retrieved_narrative_count,
	response, model_used, tokens_used, latency_ms, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO NOTHING
`,
		record.ID,
		record.UserID,
		record.Query,
		string(record.Mode),
		record.MetricsRetrieved,
		record.NarrativeRetrieved,
		record.Response,
		record.Model,
		record.TokensUsed,
		record.LatencyMs,
		record.CreatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrBackendUnavailable, "save query", err)
	}
	return nil
}

func (r *QueryHistoryRepository) DeleteQueries(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM query_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, domain.WrapError(domain.ErrBackendUnavailable, "delete queries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete queries rows affected: %w", err)
	}
	return n, nil
}

func (r *QueryHistoryRepository) ListRecentQueries(ctx context.Context, userID string, limit int) ([]domain.QueryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, query, retrieval_mode, retrieved_metrics_count, retrieved_narrative_count,
	COALESCE(response, ''), COALESCE(model_used, ''), tokens_used, latency_ms, created_at
FROM query_history
WHERE ($1 = '' OR user_id = $1)
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "list recent queries", err)
	}
	defer rows.Close()

	out := make([]domain.QueryRecord, 0, limit)
	for rows.Next() {
		var (
			rec  domain.QueryRecord
			mode string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Query,
			&mode,
			&rec.MetricsRetrieved,
			&rec.NarrativeRetrieved,
			&rec.Response,
			&rec.Model,
			&rec.TokensUsed,
			&rec.LatencyMs,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query record: %w", err)
		}
		rec.Mode = domain.RetrievalMode(mode)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query records: %w", err)
	}
	return out, nil
}
