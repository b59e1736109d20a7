package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tryon/internal/domain"
	"tryon/internal/history/sqlite"
	"tryon/internal/infra"
)

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	logger := infra.NopLogger()

	b, err := Open(ctx, &infra.Config{HistoryBackend: infra.HistoryBackendFile, HistoryDir: filepath.Join(dir, "history")}, logger)
	require.NoError(t, err)
	defer b.Close()
	assert.IsType(t, &FileStore{}, b.Store)
	assert.Nil(t, b.Credentials)
	require.NoError(t, b.Store.Append(ctx, domain.HistoryRecord{JobID: "j1", Status: domain.JobStatusPending}))

	s, err := Open(ctx, &infra.Config{HistoryBackend: infra.HistoryBackendSQLite, SQLitePath: filepath.Join(dir, "h.db")}, logger)
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &sqlite.Store{}, s.Store)

	_, err = Open(ctx, &infra.Config{HistoryBackend: "redis"}, logger)
	assert.Error(t, err)
}
