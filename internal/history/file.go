package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"tryon/internal/domain"
)

// FileStore persists one JSON document per job.
//
// Directory layout:
//
//	<root>/<job_id>.json
//
// Writes go through a temp file and a rename, so readers never see a
// partial record and take no lock.
type FileStore struct {
	root  string
	locks sync.Map
	now   func() time.Time
}

var (
	_ domain.HistoryRepository = (*FileStore)(nil)
	_ domain.HistoryPurger     = (*FileStore)(nil)
)

func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("history root dir is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve history root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create history root: %w", err)
	}
	return &FileStore{root: abs, now: time.Now}, nil
}

func (s *FileStore) RootDir() string {
	return s.root
}

func (s *FileStore) recordPath(jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("%w: invalid job id %q", domain.ErrInvalidRequest, jobID)
	}
	return filepath.Join(s.root, jobID+".json"), nil
}

func (s *FileStore) lock(jobID string) func() {
	v, _ := s.locks.LoadOrStore(jobID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *FileStore) Append(ctx context.Context, rec domain.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.recordPath(rec.JobID)
	if err != nil {
		return err
	}
	unlock := s.lock(rec.JobID)
	defer unlock()

	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("%w: history record %s exists", domain.ErrDuplicateOperation, rec.JobID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	return s.write(p, rec)
}

func (s *FileStore) Update(ctx context.Context, jobID string, patch domain.HistoryPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.recordPath(jobID)
	if err != nil {
		return err
	}
	unlock := s.lock(jobID)
	defer unlock()

	rec, err := s.read(p)
	if err != nil {
		return err
	}
	if rec.DeletedAt != nil {
		return domain.ErrNotFound
	}
	if patch.Empty() {
		return nil
	}
	patch.Apply(&rec)
	rec.UpdatedAt = s.now().UTC()
	return s.write(p, rec)
}

func (s *FileStore) Get(ctx context.Context, jobID string) (domain.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.HistoryRecord{}, err
	}
	p, err := s.recordPath(jobID)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	rec, err := s.read(p)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	if rec.DeletedAt != nil {
		return domain.HistoryRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// List returns live records newest first.
func (s *FileStore) List(ctx context.Context, page, pageSize int) ([]domain.HistoryRecord, int, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, 0, err
	}
	live := all[:0]
	for _, rec := range all {
		if rec.DeletedAt == nil {
			live = append(live, rec)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].JobID > live[j].JobID
		}
		return live[i].CreatedAt.After(live[j].CreatedAt)
	})

	_, size, offset := domain.NormalizePage(page, pageSize)
	total := len(live)
	if offset >= total {
		return []domain.HistoryRecord{}, total, nil
	}
	end := offset + size
	if end > total {
		end = total
	}
	return append([]domain.HistoryRecord(nil), live[offset:end]...), total, nil
}

// Delete marks the record deleted. It disappears from Get and List.
func (s *FileStore) Delete(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.recordPath(jobID)
	if err != nil {
		return err
	}
	unlock := s.lock(jobID)
	defer unlock()

	rec, err := s.read(p)
	if err != nil {
		return err
	}
	if rec.DeletedAt != nil {
		return domain.ErrNotFound
	}
	now := s.now().UTC()
	rec.DeletedAt = &now
	rec.UpdatedAt = now
	return s.write(p, rec)
}

// Purge removes records deleted more than olderThan ago.
func (s *FileStore) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().UTC().Add(-olderThan)
	removed := 0
	for _, rec := range all {
		if rec.DeletedAt == nil || !rec.DeletedAt.Before(cutoff) {
			continue
		}
		p, err := s.recordPath(rec.JobID)
		if err != nil {
			continue
		}
		unlock := s.lock(rec.JobID)
		err = os.Remove(p)
		unlock()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("purge history record %s: %w", rec.JobID, err)
		}
		s.locks.Delete(rec.JobID)
		removed++
	}
	return removed, nil
}

func (s *FileStore) scan(ctx context.Context) ([]domain.HistoryRecord, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history root: %w", err)
	}
	out := make([]domain.HistoryRecord, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := s.read(filepath.Join(s.root, name))
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *FileStore) read(p string) (domain.HistoryRecord, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.HistoryRecord{}, domain.ErrNotFound
		}
		return domain.HistoryRecord{}, fmt.Errorf("read history record: %w", err)
	}
	var rec domain.HistoryRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("parse %s: %w", filepath.Base(p), err)
	}
	return rec, nil
}

func (s *FileStore) write(p string, rec domain.HistoryRecord) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(s.root, ".record.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp history file: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("rename history file: %w", err)
	}
	return nil
}
