package repository

import (
	"path/filepath"
	"testing"
	"time"

	"reposync/internal/db"
	"reposync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) {
	t.Helper()
	require.NoError(t, db.Init(filepath.Join(t.TempDir(), "reposync.db")))
	t.Cleanup(func() { _ = db.Close() })
}

func record(t *testing.T, repo *HistoryRepository, op model.OperationKind, status model.SyncStatus, recovered bool, at time.Time) {
	t.Helper()
	require.NoError(t, repo.Save(&model.History{
		OperationID: string(op) + at.Format(time.RFC3339),
		Operation:   op,
		Status:      status,
		Recovered:   recovered,
		StartedAt:   at,
		FinishedAt:  at.Add(time.Second),
	}))
}

func TestHistoryRepository(t *testing.T) {
	setupDB(t)
	repo := NewHistoryRepository()

	last, err := repo.LastSuccess()
	require.NoError(t, err)
	assert.Nil(t, last)

	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	record(t, repo, model.OperationSync, model.StatusSynced, false, base)
	record(t, repo, model.OperationPush, model.StatusError, false, base.Add(time.Minute))
	record(t, repo, model.OperationSync, model.StatusSynced, true, base.Add(2*time.Minute))

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Succeeded: 2, Failed: 1, Recovered: 1}, stats)

	recent, err := repo.GetRecent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Recovered)
	assert.Equal(t, model.OperationPush, recent[1].Operation)

	failed, err := repo.GetFailed()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, model.StatusError, failed[0].Status)

	last, err = repo.LastSuccess()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(base.Add(2*time.Minute+time.Second)))
}
