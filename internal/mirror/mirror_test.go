package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reposync/internal/model"
	"reposync/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func read(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func newMirror(t *testing.T) (*Mirror, string, string) {
	t.Helper()
	source := t.TempDir()
	work := t.TempDir()

	filter, err := pipeline.NewFilter(source, []string{"*.log"})
	require.NoError(t, err)

	m, err := New(source, work, filter)
	require.NoError(t, err)
	return m, source, work
}

func TestPush(t *testing.T) {
	m, source, work := newMirror(t)

	write(t, source, "a.md", "a")
	write(t, source, "dir/b.md", "b")
	write(t, source, "same.md", "same")
	write(t, source, "debug.log", "ignored")

	write(t, work, "same.md", "same")
	write(t, work, "stale/gone.md", "old")
	write(t, work, ".git/HEAD", "ref: refs/heads/main")
	write(t, work, "remote.log", "filtered, untouched")

	plan, err := m.Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "dir/b.md"}, plan.Copied)
	assert.Equal(t, []string{"stale/gone.md"}, plan.Removed)
	assert.FileExists(t, filepath.Join(work, "stale", "gone.md"))

	changes, err := m.Push()
	require.NoError(t, err)
	assert.Equal(t, plan, changes)
	assert.Equal(t, 3, changes.Len())
	assert.Equal(t, []string{"a.md", "dir/b.md", "stale/gone.md"}, changes.Paths())

	assert.Equal(t, "a", read(t, work, "a.md"))
	assert.Equal(t, "b", read(t, work, "dir/b.md"))
	assert.NoDirExists(t, filepath.Join(work, "stale"))
	assert.NoFileExists(t, filepath.Join(work, "debug.log"))
	assert.FileExists(t, filepath.Join(work, ".git", "HEAD"))
	assert.FileExists(t, filepath.Join(work, "remote.log"))

	again, err := m.Push()
	require.NoError(t, err)
	assert.Zero(t, again.Len())
}

func TestAdopt(t *testing.T) {
	m, source, work := newMirror(t)

	write(t, work, "remote-only.md", "remote")
	write(t, work, "both.md", "remote version")
	write(t, work, ".git/config", "x")
	write(t, source, "both.md", "local version")

	adopted, err := m.Adopt()
	require.NoError(t, err)
	assert.Equal(t, []string{"remote-only.md"}, adopted)

	assert.Equal(t, "remote", read(t, source, "remote-only.md"))
	assert.Equal(t, "local version", read(t, source, "both.md"))
	assert.NoDirExists(t, filepath.Join(source, ".git"))
}

type blob struct {
	data    []byte
	changed time.Time
}

type fakeTree map[string]map[string]blob

func (f fakeTree) Show(_ context.Context, ref, path string) ([]byte, error) {
	b, ok := f[ref][path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return b.data, nil
}

func (f fakeTree) ObjectSize(_ context.Context, ref, path string) (int64, bool, error) {
	b, ok := f[ref][path]
	return int64(len(b.data)), ok, nil
}

func (f fakeTree) LastChange(_ context.Context, ref, path string) (time.Time, error) {
	return f[ref][path].changed, nil
}

type fixedResolver struct {
	outcome model.Resolution
	calls   []string
}

func (r *fixedResolver) Resolve(local, _ model.FileState) model.Resolution {
	r.calls = append(r.calls, local.Path)
	return r.outcome
}

func TestPullBack(t *testing.T) {
	m, source, _ := newMirror(t)
	now := time.Now()

	tree := fakeTree{
		"before": {
			"unchanged.md":  {data: []byte("v1")},
			"edited.md":     {data: []byte("v1")},
			"deleted.md":    {data: []byte("v1")},
			"edited-del.md": {data: []byte("v1")},
		},
		"HEAD": {
			"new.md":       {data: []byte("fresh"), changed: now},
			"unchanged.md": {data: []byte("v2"), changed: now},
			"edited.md":    {data: []byte("v2 remote"), changed: now},
			"same.md":      {data: []byte("same"), changed: now},
			"skip.log":     {data: []byte("log"), changed: now},
		},
	}

	write(t, source, "unchanged.md", "v1")
	write(t, source, "edited.md", "v1 local edit")
	write(t, source, "deleted.md", "v1")
	write(t, source, "edited-del.md", "v1 local edit")
	write(t, source, "same.md", "same")

	resolver := &fixedResolver{outcome: model.KeepLocal}
	paths := []string{"new.md", "unchanged.md", "edited.md", "deleted.md", "edited-del.md", "same.md", "skip.log"}

	res, err := m.PullBack(context.Background(), tree, resolver, "before", paths)
	require.NoError(t, err)

	assert.Equal(t, []string{"new.md", "unchanged.md"}, res.Updated)
	assert.Equal(t, []string{"deleted.md"}, res.Removed)
	assert.Equal(t, []string{"edited.md", "edited-del.md"}, res.Kept)
	assert.Equal(t, []string{"edited.md"}, resolver.calls)

	assert.Equal(t, "fresh", read(t, source, "new.md"))
	assert.Equal(t, "v2", read(t, source, "unchanged.md"))
	assert.Equal(t, "v1 local edit", read(t, source, "edited.md"))
	assert.Equal(t, "v1 local edit", read(t, source, "edited-del.md"))
	assert.NoFileExists(t, filepath.Join(source, "deleted.md"))
	assert.NoFileExists(t, filepath.Join(source, "skip.log"))
}

func TestPullBack_RemoteWinsOverLocalEdit(t *testing.T) {
	m, source, _ := newMirror(t)

	tree := fakeTree{
		"HEAD": {"notes.pb": {data: []byte("remote"), changed: time.Now()}},
	}
	write(t, source, "notes.pb", "local")

	// No pre-pull commit: every differing local file is treated as edited.
	res, err := m.PullBack(context.Background(), tree, &fixedResolver{outcome: model.KeepRemote}, "", []string{"notes.pb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.pb"}, res.Updated)
	assert.Equal(t, "remote", read(t, source, "notes.pb"))
}
