package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tryon/internal/domain"
)

const schema = `
create table if not exists tryon_history (
	job_id                text primary key,
	status                text not null,
	user_image_path       text not null default '',
	style_image_path      text not null default '',
	result_image_path     text not null default '',
	comparison_image_path text not null default '',
	video_job_id          text not null default '',
	video_path            text not null default '',
	video_status          text not null default '',
	description           text not null default '',
	identity_note         text not null default '',
	error_message         text not null default '',
	style_name            text not null default '',
	style_id              text not null default '',
	created_at            integer not null,
	updated_at            integer not null,
	deleted_at            integer
);
create index if not exists tryon_history_created_idx on tryon_history (created_at desc, job_id desc);
`

const columns = `job_id, status, user_image_path, style_image_path, result_image_path, comparison_image_path,
	video_job_id, video_path, video_status, description, identity_note, error_message,
	style_name, style_id, created_at, updated_at, deleted_at`

// Store is a history backend on an embedded SQLite database. Timestamps are
// stored as unix nanoseconds so ordering is numeric.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ domain.HistoryRepository = (*Store)(nil)
	_ domain.HistoryPurger     = (*Store)(nil)
)

// Open creates the database file if needed, enables WAL and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history: %w", err)
	}
	// single connection plus WAL keeps writers from tripping over each other
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history: %w", err)
	}
	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, rec domain.HistoryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	res, err := s.db.ExecContext(ctx, `insert into tryon_history (`+columns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, null)
		on conflict (job_id) do nothing`,
		rec.JobID, string(rec.Status), rec.UserImagePath, rec.StyleImagePath, rec.ResultImagePath, rec.ComparisonImagePath,
		rec.VideoJobID, rec.VideoPath, string(rec.VideoStatus), rec.Description, rec.IdentityNote, rec.Error,
		rec.StyleName, rec.StyleID, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: history record %s exists", domain.ErrDuplicateOperation, rec.JobID)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, jobID string, patch domain.HistoryPatch) error {
	res, err := s.db.ExecContext(ctx, `update tryon_history set
		status                = coalesce(?, status),
		user_image_path       = coalesce(?, user_image_path),
		style_image_path      = coalesce(?, style_image_path),
		result_image_path     = coalesce(?, result_image_path),
		comparison_image_path = coalesce(?, comparison_image_path),
		video_job_id          = coalesce(?, video_job_id),
		video_path            = coalesce(?, video_path),
		video_status          = coalesce(?, video_status),
		description           = coalesce(?, description),
		identity_note         = coalesce(?, identity_note),
		error_message         = coalesce(?, error_message),
		updated_at            = ?
		where job_id = ? and deleted_at is null`,
		status(patch.Status), str(patch.UserImagePath), str(patch.StyleImagePath), str(patch.ResultImagePath),
		str(patch.ComparisonImagePath), str(patch.VideoJobID), str(patch.VideoPath), status(patch.VideoStatus),
		str(patch.Description), str(patch.IdentityNote), str(patch.Error),
		s.now().UTC().UnixNano(), jobID,
	)
	if err != nil {
		return fmt.Errorf("update history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (domain.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `select `+columns+` from tryon_history where job_id = ? and deleted_at is null`, jobID)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HistoryRecord{}, domain.ErrNotFound
	}
	return rec, err
}

func (s *Store) List(ctx context.Context, page, pageSize int) ([]domain.HistoryRecord, int, error) {
	_, size, offset := domain.NormalizePage(page, pageSize)
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from tryon_history where deleted_at is null`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `select `+columns+` from tryon_history
		where deleted_at is null
		order by created_at desc, job_id desc
		limit ? offset ?`, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := make([]domain.HistoryRecord, 0, size)
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	return items, total, nil
}

func (s *Store) Delete(ctx context.Context, jobID string) error {
	now := s.now().UTC().UnixNano()
	res, err := s.db.ExecContext(ctx, `update tryon_history set deleted_at = ?, updated_at = ? where job_id = ? and deleted_at is null`, now, now, jobID)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan).UnixNano()
	res, err := s.db.ExecContext(ctx, `delete from tryon_history where deleted_at is not null and deleted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (domain.HistoryRecord, error) {
	var (
		rec                  domain.HistoryRecord
		status, videoStatus  string
		createdAt, updatedAt int64
		deletedAt            sql.NullInt64
	)
	if err := row.Scan(
		&rec.JobID, &status, &rec.UserImagePath, &rec.StyleImagePath, &rec.ResultImagePath, &rec.ComparisonImagePath,
		&rec.VideoJobID, &rec.VideoPath, &videoStatus, &rec.Description, &rec.IdentityNote, &rec.Error,
		&rec.StyleName, &rec.StyleID, &createdAt, &updatedAt, &deletedAt,
	); err != nil {
		return domain.HistoryRecord{}, err
	}
	rec.Status = domain.JobStatus(status)
	rec.VideoStatus = domain.JobStatus(videoStatus)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if deletedAt.Valid {
		t := time.Unix(0, deletedAt.Int64).UTC()
		rec.DeletedAt = &t
	}
	return rec, nil
}

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func status(p *domain.JobStatus) any {
	if p == nil {
		return nil
	}
	return string(*p)
}
