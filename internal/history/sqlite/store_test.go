package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tryon/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreAppendGetUpdate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	created := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, domain.HistoryRecord{
		JobID:         "job-1",
		Status:        domain.JobStatusPending,
		UserImagePath: "/staging/user_job-1.jpg",
		StyleName:     "linen shirt",
		CreatedAt:     created,
	}))
	assert.ErrorIs(t, s.Append(ctx, domain.HistoryRecord{JobID: "job-1", Status: domain.JobStatusPending}), domain.ErrDuplicateOperation)

	status := domain.JobStatusSucceeded
	result := "/out/tryon_job-1.png"
	note := "identity preserved: same face"
	require.NoError(t, s.Update(ctx, "job-1", domain.HistoryPatch{Status: &status, ResultImagePath: &result, IdentityNote: &note}))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, got.Status)
	assert.Equal(t, result, got.ResultImagePath)
	assert.Equal(t, note, got.IdentityNote)
	assert.Equal(t, "/staging/user_job-1.jpg", got.UserImagePath)
	assert.Equal(t, "linen shirt", got.StyleName)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.DeletedAt)

	assert.ErrorIs(t, s.Update(ctx, "ghost", domain.HistoryPatch{Status: &status}), domain.ErrNotFound)
	_, err = s.Get(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := domain.HistoryRecord{JobID: fmt.Sprintf("job-%d", i), Status: domain.JobStatusPending, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.Append(ctx, rec))
	}

	items, total, err := s.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, "job-4", items[0].JobID)
	assert.Equal(t, "job-3", items[1].JobID)

	items, _, err = s.List(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "job-0", items[0].JobID)

	items, total, err = s.List(ctx, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, items)
}

func TestStoreDeleteAndPurge(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for _, id := range []string{"keep", "gone"} {
		require.NoError(t, s.Append(ctx, domain.HistoryRecord{JobID: id, Status: domain.JobStatusSucceeded}))
	}
	require.NoError(t, s.Delete(ctx, "gone"))
	assert.ErrorIs(t, s.Delete(ctx, "gone"), domain.ErrNotFound)

	status := domain.JobStatusFailed
	assert.ErrorIs(t, s.Update(ctx, "gone", domain.HistoryPatch{Status: &status}), domain.ErrNotFound)

	items, total, err := s.List(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "keep", items[0].JobID)

	removed, err := s.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	s.now = func() time.Time { return now.Add(3 * time.Hour) }
	removed, err = s.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
