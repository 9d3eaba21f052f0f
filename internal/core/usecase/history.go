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
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// QueryHistoryUseCase persists research events and reads them back.
type QueryHistoryUseCase struct {
	store  ports.QueryHistoryStore
	logger *slog.Logger
}

func NewQueryHistoryUseCase(store ports.QueryHistoryStore, logger *slog.Logger) *QueryHistoryUseCase {
	return &QueryHistoryUseCase{store: store, logger: loggerOrDefault(logger)}
}

func (uc *QueryHistoryUseCase) Record(ctx context.Context, record domain.QueryRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record query", fmt.Errorf("record id is required"))
	}
	if strings.TrimSpace(record.Query) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record query", fmt.Errorf("query is required"))
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := uc.store.SaveQuery(ctx, record); err != nil {
		return fmt.Errorf("save query %s: %w", record.ID, err)
	}
	uc.logger.Info("query_history_recorded", "record_id", record.ID, "mode", record.Mode)
	return nil
}

func (uc *QueryHistoryUseCase) Recent(ctx context.Context, userID string, limit int) ([]domain.QueryRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	records, err := uc.store.ListRecentQueries(ctx, strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent queries: %w", err)
	}
	return records, nil
}

// Clear deletes every run of one user. An empty user id is rejected so a
// missing parameter can never wipe the whole table.
func (uc *QueryHistoryUseCase) Clear(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "clear query history", fmt.Errorf("user id is required"))
	}
	deleted, err := uc.store.DeleteQueries(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete queries: %w", err)
	}
	uc.logger.Info("query_history_cleared", "user_id", userID, "deleted", deleted)
	return deleted, nil
}
