package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "satsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissing(t *testing.T) {
	s := openTemp(t)

	_, ok, err := s.Load(context.Background(), "himawari")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveAndLoad(t *testing.T) {
	s := openTemp(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	cursor := time.Date(2023, 12, 5, 7, 0, 0, 0, time.UTC)
	found := time.Date(2023, 12, 5, 6, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, Checkpoint{Source: "himawari", Cursor: cursor, Mode: "historical", LastFound: found}))

	cp, ok, err := s.Load(ctx, "himawari")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cursor, cp.Cursor)
	assert.Equal(t, found, cp.LastFound)
	assert.Equal(t, "historical", cp.Mode)
	assert.Equal(t, now, cp.UpdatedAt)
}

func TestSaveUpserts(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	first := time.Date(2023, 3, 16, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, Checkpoint{Source: "imerg", Cursor: first, Mode: "historical"}))
	require.NoError(t, s.Save(ctx, Checkpoint{Source: "imerg", Cursor: first.AddDate(0, 0, 1), Mode: "realtime"}))
	require.NoError(t, s.Save(ctx, Checkpoint{Source: "modis", Cursor: first, Mode: "historical"}))

	cp, ok, err := s.Load(ctx, "imerg")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.AddDate(0, 0, 1), cp.Cursor)
	assert.Equal(t, "realtime", cp.Mode)
	assert.True(t, cp.LastFound.IsZero())

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "imerg", all[0].Source)
	assert.Equal(t, "modis", all[1].Source)
}

func TestCheckpointsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satsync.db")
	ctx := context.Background()
	cursor := time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC)

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, Checkpoint{Source: "modis", Cursor: cursor, Mode: "realtime"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	cp, ok, err := s.Load(ctx, "modis")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cursor, cp.Cursor)
}

func TestDeleteAndValidation(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	assert.Error(t, s.Save(ctx, Checkpoint{Cursor: time.Now()}))

	require.NoError(t, s.Save(ctx, Checkpoint{Source: "himawari", Cursor: time.Now(), Mode: "realtime"}))
	require.NoError(t, s.Delete(ctx, "himawari"))

	_, ok, err := s.Load(ctx, "himawari")
	require.NoError(t, err)
	assert.False(t, ok)
}
