package repo

import (
	"context"
	"fmt"
	"time"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/sqlinline"
)

// HistoryRepositoryPG implements domain.HistoryRepository on PostgreSQL.
type HistoryRepositoryPG struct {
	db  infra.SQLExecutor
	now func() time.Time
}

var (
	_ domain.HistoryRepository = (*HistoryRepositoryPG)(nil)
	_ domain.HistoryPurger     = (*HistoryRepositoryPG)(nil)
)

func NewHistoryRepository(db infra.SQLExecutor) *HistoryRepositoryPG {
	return &HistoryRepositoryPG{db: db, now: time.Now}
}

// EnsureSchema creates the history table and its index when missing.
func (r *HistoryRepositoryPG) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{sqlinline.QCreateHistoryTable, sqlinline.QCreateHistoryCreatedIndex} {
		if _, err := r.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
	}
	return nil
}

func (r *HistoryRepositoryPG) Append(ctx context.Context, rec domain.HistoryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	tag, err := r.db.Exec(ctx, sqlinline.QInsertHistory,
		rec.JobID,
		string(rec.Status),
		rec.UserImagePath,
		rec.StyleImagePath,
		rec.ResultImagePath,
		rec.ComparisonImagePath,
		rec.VideoJobID,
		rec.VideoPath,
		string(rec.VideoStatus),
		rec.Description,
		rec.IdentityNote,
		rec.Error,
		rec.StyleName,
		rec.StyleID,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: history record %s exists", domain.ErrDuplicateOperation, rec.JobID)
	}
	return nil
}

func (r *HistoryRepositoryPG) Update(ctx context.Context, jobID string, patch domain.HistoryPatch) error {
	tag, err := r.db.Exec(ctx, sqlinline.QUpdateHistory,
		jobID,
		statusParam(patch.Status),
		patch.UserImagePath,
		patch.StyleImagePath,
		patch.ResultImagePath,
		patch.ComparisonImagePath,
		patch.VideoJobID,
		patch.VideoPath,
		statusParam(patch.VideoStatus),
		patch.Description,
		patch.IdentityNote,
		patch.Error,
	)
	if err != nil {
		return fmt.Errorf("update history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *HistoryRepositoryPG) Get(ctx context.Context, jobID string) (domain.HistoryRecord, error) {
	rec, err := scanHistory(r.db.QueryRow(ctx, sqlinline.QSelectHistory, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.HistoryRecord{}, domain.ErrNotFound
		}
		return domain.HistoryRecord{}, fmt.Errorf("get history: %w", err)
	}
	return rec, nil
}

// List returns live records newest first together with the live total.
func (r *HistoryRepositoryPG) List(ctx context.Context, page, pageSize int) ([]domain.HistoryRecord, int, error) {
	_, size, offset := domain.NormalizePage(page, pageSize)

	var total int
	if err := r.db.QueryRow(ctx, sqlinline.QCountHistory).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}
	rows, err := r.db.Query(ctx, sqlinline.QListHistory, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := make([]domain.HistoryRecord, 0, size)
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan history: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	return items, total, nil
}

func (r *HistoryRepositoryPG) Delete(ctx context.Context, jobID string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QSoftDeleteHistory, jobID)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *HistoryRepositoryPG) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QPurgeHistory, r.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(row rowScanner) (domain.HistoryRecord, error) {
	var (
		rec                 domain.HistoryRecord
		status, videoStatus string
	)
	if err := row.Scan(
		&rec.JobID,
		&status,
		&rec.UserImagePath,
		&rec.StyleImagePath,
		&rec.ResultImagePath,
		&rec.ComparisonImagePath,
		&rec.VideoJobID,
		&rec.VideoPath,
		&videoStatus,
		&rec.Description,
		&rec.IdentityNote,
		&rec.Error,
		&rec.StyleName,
		&rec.StyleID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return domain.HistoryRecord{}, err
	}
	rec.Status = domain.JobStatus(status)
	rec.VideoStatus = domain.JobStatus(videoStatus)
	return rec, nil
}

func statusParam(s *domain.JobStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
