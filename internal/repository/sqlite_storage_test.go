package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/fusionctl/internal/domain"
	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
)

func newSQLiteStorage(t *testing.T, path string) *SQLiteStorage {
	t.Helper()
	repo, err := NewSQLiteStorage(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteStorage_CRUD(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "runs.db")
	repo := newSQLiteStorage(t, path)

	run := &domain.Run{
		ID:          "run-1",
		FusionSetID: "fs",
		State:       domain.RunStateRunning,
		Steps:       []*domain.WorkflowStep{{Name: domain.StepBuild, Status: domain.StepStatusPending}},
	}
	require.NoError(t, repo.CreateRun(ctx, run))
	assert.ErrorIs(t, repo.CreateRun(ctx, run), errpkg.ErrInvalidInput)

	run.State = domain.RunStateSucceeded
	run.TaskID = "T1"
	run.Steps[0].Status = domain.StepStatusCompleted
	require.NoError(t, repo.UpdateRun(ctx, run))
	require.NoError(t, repo.Close())

	reopened := newSQLiteStorage(t, path)
	got, err := reopened.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateSucceeded, got.State)
	assert.Equal(t, "T1", got.TaskID)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, domain.StepStatusCompleted, got.Steps[0].Status)
}

func TestSQLiteStorage_NotFound(t *testing.T) {
	repo := newSQLiteStorage(t, filepath.Join(t.TempDir(), "runs.db"))

	_, err := repo.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, errpkg.ErrRunNotFound)

	err = repo.UpdateRun(context.Background(), &domain.Run{ID: "missing"})
	assert.ErrorIs(t, err, errpkg.ErrRunNotFound)
}

func TestSQLiteStorage_ListAndFilter(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteStorage(t, filepath.Join(t.TempDir(), "runs.db"))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, r := range []*domain.Run{
		{ID: "b", State: domain.RunStateFailed, CreatedAt: base.Add(time.Minute)},
		{ID: "a", State: domain.RunStateSucceeded, CreatedAt: base},
		{ID: "c", State: domain.RunStateFailed, CreatedAt: base.Add(2 * time.Minute)},
	} {
		require.NoError(t, repo.CreateRun(ctx, r))
	}

	all, err := repo.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	failed, err := repo.GetRunsByState(ctx, domain.RunStateFailed)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "b", failed[0].ID)
}
