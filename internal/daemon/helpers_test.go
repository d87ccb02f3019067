package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"reposync/internal/gitrepo"
	"reposync/internal/gitrepo/gittest"
	"reposync/internal/model"

	"github.com/stretchr/testify/require"
)

type fakeSettings struct {
	remote, work, source string
}

func (s fakeSettings) RemoteURL() string { return s.remote }

func (s fakeSettings) Token() (string, bool) { return "", false }

func (s fakeSettings) WorkDir() string { return s.work }

func (s fakeSettings) SourceDir() string { return s.source }

type recorder struct {
	mu         sync.Mutex
	statuses   []model.SyncStatus
	logs       []LogEntry
	countdowns []int
	hook       func(model.SyncStatus)
}

func (r *recorder) OnStatus(status model.SyncStatus) {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(status)
	}
}

func (r *recorder) OnLog(message string, level model.LogLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, LogEntry{Message: message, Level: level})
}

func (r *recorder) OnCountdown(seconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countdowns = append(r.countdowns, seconds)
}

func (r *recorder) lastStatus() model.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *recorder) countdownValues() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.countdowns...)
}

type countingRunner struct {
	inner gitrepo.ExecRunner
	calls atomic.Int64
}

func (c *countingRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, []byte, error) {
	c.calls.Add(1)
	return c.inner.Run(ctx, dir, args...)
}

type memoryHistory struct {
	mu   sync.Mutex
	rows []model.History
}

func (m *memoryHistory) Save(h *model.History) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *h)
	return nil
}

func (m *memoryHistory) all() []model.History {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.History(nil), m.rows...)
}

type machine struct {
	remote  string
	orch    *Orchestrator
	sink    *recorder
	runner  *countingRunner
	history *memoryHistory
	source  string
	work    string
}

// newMachine builds an orchestrator with its own source and working
// directory against remote.
func newMachine(t *testing.T, remote string) *machine {
	t.Helper()
	gittest.RequireGit(t)

	root := t.TempDir()
	m := &machine{
		remote:  remote,
		sink:    &recorder{},
		runner:  &countingRunner{},
		history: &memoryHistory{},
		source:  filepath.Join(root, "source"),
		work:    filepath.Join(root, "work"),
	}
	m.build()

	t.Cleanup(func() { _ = m.orch.Close() })
	return m
}

func (m *machine) build() {
	m.orch = NewOrchestrator(Options{
		Settings:    fakeSettings{remote: m.remote, work: m.work, source: m.source},
		Sink:        m.sink,
		History:     m.history,
		Branch:      gittest.Branch,
		AuthorName:  "Sync Bot",
		AuthorEmail: "bot@example.com",
		Runner:      m.runner,
	})
}

// restart closes the orchestrator and replaces it with a fresh, uninitialized
// one over the same directories, as a new process would.
func (m *machine) restart(t *testing.T) *machine {
	t.Helper()
	require.NoError(t, m.orch.Close())
	m.build()
	return m
}

func (m *machine) init(t *testing.T) *machine {
	t.Helper()
	require.NoError(t, m.orch.Initialize(context.Background()))
	return m
}

func (m *machine) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(m.source, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (m *machine) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(m.source, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}
