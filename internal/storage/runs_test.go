package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/paper-video/internal/domain"
)

func TestRunRepository_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	repo := NewRunRepository(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := domain.RunRecord{
		ID: "run-1", Source: "a.pdf", Status: domain.RunFailed,
		Images: 2, Error: "[extracting/no_images] no images found",
		StartedAt: base, FinishedAt: base.Add(time.Second),
	}
	newer := domain.RunRecord{
		ID: "run-2", Source: "b.pdf", Status: domain.RunCompleted,
		Images: 3, Segments: 5, Bytes: 1024, Duration: 42500 * time.Millisecond,
		StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute),
	}
	require.NoError(t, repo.Record(ctx, older))
	require.NoError(t, repo.Record(ctx, newer))

	runs, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)

	got, err := repo.GetByID(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, got.Status)
	assert.Equal(t, 5, got.Segments)
	assert.Equal(t, int64(1024), got.Bytes)
	assert.Equal(t, 42500*time.Millisecond, got.Duration)
	assert.True(t, newer.StartedAt.Equal(got.StartedAt))

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// duplicate ids are rejected
	assert.Error(t, repo.Record(ctx, older))

	limited, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mongo", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
