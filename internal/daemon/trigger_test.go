package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"reposync/internal/model"
	"reposync/internal/pipeline"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncOnChange(t *testing.T) {
	root := t.TempDir()
	filter, err := pipeline.NewFilter(root, nil)
	require.NoError(t, err)

	a := filepath.Join(root, "a.md")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0644))

	events := make(chan model.FileEvent, 8)
	events <- model.FileEvent{Type: model.EventWrite, Path: a}
	events <- model.FileEvent{Type: model.EventWrite, Path: a}
	events <- model.FileEvent{Type: model.EventWrite, Path: filepath.Join(root, "x.tmp")}
	close(events)

	var syncs atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		SyncOnChange(context.Background(), clockwork.NewFakeClock(), events, filter, time.Second, func(context.Context) error {
			syncs.Add(1)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger did not finish")
	}
	assert.Equal(t, int32(1), syncs.Load())
}

func TestSyncOnChange_OnlyIgnoredPaths(t *testing.T) {
	root := t.TempDir()
	filter, err := pipeline.NewFilter(root, nil)
	require.NoError(t, err)

	events := make(chan model.FileEvent, 1)
	events <- model.FileEvent{Type: model.EventWrite, Path: filepath.Join(root, ".git", "index")}
	close(events)

	var syncs atomic.Int32
	SyncOnChange(context.Background(), clockwork.NewFakeClock(), events, filter, time.Second, func(context.Context) error {
		syncs.Add(1)
		return nil
	})
	assert.Zero(t, syncs.Load())
}
