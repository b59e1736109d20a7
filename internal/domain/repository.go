package domain

import (
	"context"
	"time"
)

// HistoryRepository persists one record per job. Implementations must make
// every Update atomic with respect to concurrent Get and List calls.
type HistoryRepository interface {
	Append(ctx context.Context, rec HistoryRecord) error
	Update(ctx context.Context, jobID string, patch HistoryPatch) error
	Get(ctx context.Context, jobID string) (HistoryRecord, error)
	List(ctx context.Context, page, pageSize int) ([]HistoryRecord, int, error)
	Delete(ctx context.Context, jobID string) error
}

// HistoryPurger is implemented by stores that can drop soft-deleted records.
type HistoryPurger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int, error)
}

// WalkHistory calls fn for every live record, page by page, newest first.
// fn may update the record it is given; ordering is by creation time so
// updates do not shift pages.
func WalkHistory(ctx context.Context, repo HistoryRepository, fn func(HistoryRecord) error) error {
	for page := 1; ; page++ {
		items, total, err := repo.List(ctx, page, MaxPageSize)
		if err != nil {
			return err
		}
		for _, rec := range items {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(items) < MaxPageSize || page*MaxPageSize >= total {
			return nil
		}
	}
}
