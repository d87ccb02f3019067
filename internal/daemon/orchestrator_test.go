package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reposync/internal/gitrepo/gittest"
	"reposync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationsBeforeInitialize(t *testing.T) {
	m := newMachine(t, gittest.NewRemote(t))
	ctx := context.Background()

	assert.ErrorIs(t, m.orch.Push(ctx), ErrNotInitialized)
	assert.ErrorIs(t, m.orch.Pull(ctx), ErrNotInitialized)
	assert.ErrorIs(t, m.orch.Sync(ctx), ErrNotInitialized)
	assert.ErrorIs(t, m.orch.StartAutoSync(ctx), ErrNotInitialized)

	_, err := m.orch.Status(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = m.orch.DetailedStatus(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.Zero(t, m.runner.calls.Load())
}

func TestInitialize_PendingAndMirrored(t *testing.T) {
	remote := gittest.NewRemote(t)
	gittest.Seed(t, remote, map[string][]byte{
		"remote-only.md": []byte("from remote"),
		"shared.md":      []byte("remote version"),
	})

	m := newMachine(t, remote)
	m.write(t, "local.md", "local")
	m.write(t, "shared.md", "local version")
	m.init(t)

	assert.Equal(t, model.StatusPending, m.sink.lastStatus())
	assert.True(t, m.orch.Initialized())

	assert.Equal(t, "from remote", m.read(t, "remote-only.md"))
	assert.Equal(t, "local version", m.read(t, "shared.md"))

	data, err := os.ReadFile(filepath.Join(m.work, "local.md"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))

	// Initialize is idempotent.
	require.NoError(t, m.orch.Initialize(context.Background()))
}

func TestInitialize_RestartKeepsLocalDeletion(t *testing.T) {
	remote := gittest.NewRemote(t)
	m := newMachine(t, remote).init(t)
	ctx := context.Background()

	m.write(t, "keep.md", "keep")
	m.write(t, "gone.md", "gone")
	require.NoError(t, m.orch.Sync(ctx))

	m.restart(t)
	require.NoError(t, os.Remove(filepath.Join(m.source, "gone.md")))

	m.init(t)
	require.NoError(t, m.orch.Sync(ctx))

	assert.NoFileExists(t, filepath.Join(m.source, "gone.md"))
	assert.NoFileExists(t, filepath.Join(m.work, "gone.md"))
	assert.Equal(t, "keep.md", gittest.Git(t, remote, "ls-tree", "--name-only", "main"))
}

func TestDisconnect_RemovesWorkingCopy(t *testing.T) {
	remote := gittest.NewRemote(t)
	m := newMachine(t, remote).init(t)
	ctx := context.Background()

	m.write(t, "a.md", "a")
	require.NoError(t, m.orch.Sync(ctx))
	require.NoError(t, m.orch.StartAutoSync(ctx))

	require.NoError(t, m.orch.Disconnect())
	assert.NoDirExists(t, m.work)
	assert.False(t, m.orch.Initialized())
	assert.False(t, m.orch.AutoSync().Running())
	assert.Equal(t, model.StatusPending, m.sink.lastStatus())
	assert.Equal(t, "a", m.read(t, "a.md"))

	_, err := m.orch.Status(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, m.orch.Disconnect(), ErrNotInitialized)

	// The lock is released and the remote history comes back on reconnect.
	m.init(t)
	assert.Equal(t, "a", gittest.Git(t, m.work, "show", "HEAD:a.md"))
	assert.Equal(t, "a", m.read(t, "a.md"))
}

func TestInitialize_WorkDirLocked(t *testing.T) {
	remote := gittest.NewRemote(t)
	a := newMachine(t, remote).init(t)

	b := NewOrchestrator(Options{
		Settings: fakeSettings{remote: remote, work: a.work, source: t.TempDir()},
		Branch:   gittest.Branch,
	})
	err := b.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
	assert.False(t, b.Initialized())

	require.NoError(t, a.orch.Close())
	require.NoError(t, b.Initialize(context.Background()))
	require.NoError(t, b.Close())
}

func TestInitialize_MissingRemote(t *testing.T) {
	m := newMachine(t, "")
	err := m.orch.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.StatusError, m.sink.lastStatus())
}

func TestSync_PushesAndIsIdempotent(t *testing.T) {
	remote := gittest.NewRemote(t)
	m := newMachine(t, remote).init(t)
	ctx := context.Background()

	m.write(t, "notes/a.md", "hello")
	require.NoError(t, m.orch.Sync(ctx))
	assert.Equal(t, model.StatusSynced, m.sink.lastStatus())

	head := gittest.Git(t, remote, "rev-parse", "refs/heads/main")
	assert.True(t, strings.HasPrefix(gittest.Git(t, remote, "log", "-1", "--format=%s", "main"), syncMessagePrefix))
	assert.Equal(t, "hello", gittest.Git(t, remote, "show", "main:notes/a.md"))

	require.NoError(t, m.orch.Sync(ctx))
	assert.Equal(t, head, gittest.Git(t, remote, "rev-parse", "refs/heads/main"))
	assert.Equal(t, "1", gittest.Git(t, remote, "rev-list", "--count", "main"))

	rows := m.history.all()
	require.Len(t, rows, 2)
	assert.Equal(t, model.OperationSync, rows[0].Operation)
	assert.Equal(t, model.StatusSynced, rows[1].Status)
	assert.Equal(t, "up to date", rows[1].Message)
	assert.NotEqual(t, rows[0].OperationID, rows[1].OperationID)

	snap, err := m.orch.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.PendingChangeCount)
	assert.NotNil(t, snap.LastSyncAt)
	assert.Equal(t, remote, snap.RepositoryID)
}

func TestSync_BackToBackIsNoop(t *testing.T) {
	remote := gittest.NewRemote(t)
	m := newMachine(t, remote).init(t)
	m.write(t, "a.md", "a")

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	m.sink.mu.Lock()
	m.sink.hook = func(status model.SyncStatus) {
		if status == model.StatusSyncing {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	}
	m.sink.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- m.orch.Sync(context.Background()) }()

	<-entered
	assert.True(t, m.orch.Syncing())

	before := m.runner.calls.Load()
	require.NoError(t, m.orch.Sync(context.Background()))
	assert.Equal(t, before, m.runner.calls.Load())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, m.orch.Syncing())
	assert.Len(t, m.history.all(), 1)
}

func TestSync_TwoMachines(t *testing.T) {
	remote := gittest.NewRemote(t)
	a := newMachine(t, remote).init(t)
	b := newMachine(t, remote).init(t)
	ctx := context.Background()

	a.write(t, "shared/plan.md", "v1")
	require.NoError(t, a.orch.Sync(ctx))

	require.NoError(t, b.orch.Sync(ctx))
	assert.Equal(t, "v1", b.read(t, "shared/plan.md"))

	b.write(t, "shared/plan.md", "v2 from b")
	b.write(t, "b-only.md", "b")
	require.NoError(t, b.orch.Sync(ctx))

	// a edits another file concurrently; both histories must survive.
	a.write(t, "a-only.md", "a")
	require.NoError(t, a.orch.Sync(ctx))
	assert.Equal(t, "v2 from b", a.read(t, "shared/plan.md"))
	assert.Equal(t, "b", a.read(t, "b-only.md"))

	require.NoError(t, b.orch.Sync(ctx))
	assert.Equal(t, "a", b.read(t, "a-only.md"))

	// Deletions propagate in both directions.
	require.NoError(t, os.Remove(filepath.Join(a.source, "b-only.md")))
	require.NoError(t, a.orch.Sync(ctx))
	require.NoError(t, b.orch.Sync(ctx))
	assert.NoFileExists(t, filepath.Join(b.source, "b-only.md"))
}

func TestPushAndPull(t *testing.T) {
	remote := gittest.NewRemote(t)
	a := newMachine(t, remote).init(t)
	b := newMachine(t, remote).init(t)
	ctx := context.Background()

	a.write(t, "doc.md", "pushed")
	require.NoError(t, a.orch.Push(ctx))
	assert.Equal(t, "pushed", gittest.Git(t, remote, "show", "main:doc.md"))

	require.NoError(t, b.orch.Pull(ctx))
	assert.Equal(t, "pushed", b.read(t, "doc.md"))
	assert.Equal(t, model.StatusSynced, b.sink.lastStatus())

	rows := b.history.all()
	require.Len(t, rows, 1)
	assert.Equal(t, model.OperationPull, rows[0].Operation)
	assert.Equal(t, gittest.Git(t, remote, "rev-parse", "refs/heads/main"), rows[0].Commit)
}

func TestSync_ConcurrentBinaryEditResolvedByHeuristic(t *testing.T) {
	remote := gittest.NewRemote(t)
	a := newMachine(t, remote).init(t)
	b := newMachine(t, remote).init(t)
	ctx := context.Background()

	a.write(t, "img/a.png", strings.Repeat("a", 100))
	require.NoError(t, a.orch.Sync(ctx))
	require.NoError(t, b.orch.Sync(ctx))

	// Both edit the same binary; a's copy is far larger.
	a.write(t, "img/a.png", strings.Repeat("A", 5000))
	b.write(t, "img/a.png", strings.Repeat("B", 120))
	require.NoError(t, a.orch.Sync(ctx))
	require.NoError(t, b.orch.Sync(ctx))

	assert.Equal(t, strings.Repeat("A", 5000), b.read(t, "img/a.png"))
	assert.Equal(t, "5000", gittest.Git(t, remote, "cat-file", "-s", "main:img/a.png"))
}

func TestStatusAndDetailedStatus(t *testing.T) {
	remote := gittest.NewRemote(t)
	m := newMachine(t, remote).init(t)
	ctx := context.Background()

	for i := range 12 {
		m.write(t, filepath.Join("batch", string(rune('a'+i))+".md"), "x")
	}

	snap, err := m.orch.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, snap.PendingChangeCount)
	assert.Nil(t, snap.LastSyncAt)
	assert.False(t, snap.AutoSync)

	detail, err := m.orch.DetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, detail.TotalChangedCount)
	assert.Len(t, detail.ChangedPaths, DefaultPreviewLimit)
	assert.Equal(t, "batch/a.md", detail.ChangedPaths[0])
	assert.Zero(t, detail.CommitsAhead)

	require.NoError(t, m.orch.Sync(ctx))

	other := gittest.Clone(t, remote)
	gittest.WriteFile(t, other, "remote.md", []byte("r"))
	gittest.CommitAll(t, other, "remote change")
	gittest.Push(t, other)

	detail, err = m.orch.DetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.CommitsBehind)
	assert.Zero(t, detail.TotalChangedCount)
}

func TestSync_ErrorIsReported(t *testing.T) {
	remote := gittest.NewRemote(t)
	m := newMachine(t, remote).init(t)
	require.NoError(t, os.RemoveAll(remote))

	m.write(t, "a.md", "a")
	err := m.orch.Sync(context.Background())
	require.Error(t, err)

	assert.Equal(t, model.StatusError, m.sink.lastStatus())
	m.sink.mu.Lock()
	last := m.sink.logs[len(m.sink.logs)-1]
	m.sink.mu.Unlock()
	assert.Equal(t, model.LevelError, last.Level)

	rows := m.history.all()
	require.Len(t, rows, 1)
	assert.Equal(t, model.StatusError, rows[0].Status)
	assert.NotEmpty(t, rows[0].Message)
}

func TestAutoSyncThroughOrchestrator(t *testing.T) {
	remote := gittest.NewRemote(t)
	m := newMachine(t, remote).init(t)
	ctx := context.Background()

	require.NoError(t, m.orch.StartAutoSync(ctx))
	require.NoError(t, m.orch.StartAutoSync(ctx))
	assert.True(t, m.orch.AutoSync().Running())

	snap, err := m.orch.Status(ctx)
	require.NoError(t, err)
	assert.True(t, snap.AutoSync)
	assert.InDelta(t, int(DefaultInterval/time.Second), snap.NextSyncIn, 2)

	m.orch.StopAutoSync()
	m.orch.StopAutoSync()

	values := m.sink.countdownValues()
	require.NotEmpty(t, values)
	assert.Equal(t, 0, values[len(values)-1])
	zeros := 0
	for _, v := range values {
		if v == 0 {
			zeros++
		}
	}
	assert.Equal(t, 1, zeros)
}
