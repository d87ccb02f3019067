package autostart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderUnit(t *testing.T) {
	unit, err := RenderUnit("/opt/reposync/bin/reposync")
	require.NoError(t, err)

	text := string(unit)
	assert.Contains(t, text, "[Service]")
	assert.Contains(t, text, `ExecStart="/opt/reposync/bin/reposync" watch`)
	assert.Contains(t, text, "WantedBy=default.target")
}

func TestLinuxAutoStarter(t *testing.T) {
	dir := t.TempDir()
	var calls [][]string
	l := &LinuxAutoStarter{
		UnitDir: filepath.Join(dir, "user"),
		Systemctl: func(args ...string) error {
			calls = append(calls, args)
			return nil
		},
	}

	installed, err := l.IsInstalled()
	require.NoError(t, err)
	assert.False(t, installed)

	require.NoError(t, l.Install("/usr/local/bin/reposync"))

	installed, err = l.IsInstalled()
	require.NoError(t, err)
	assert.True(t, installed)

	data, err := os.ReadFile(filepath.Join(dir, "user", "reposync.service"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/usr/local/bin/reposync")
	assert.Equal(t, [][]string{
		{"daemon-reload"},
		{"enable", "reposync.service"},
		{"start", "reposync.service"},
	}, calls)

	calls = nil
	require.NoError(t, l.Uninstall())
	installed, err = l.IsInstalled()
	require.NoError(t, err)
	assert.False(t, installed)
	assert.Equal(t, []string{"daemon-reload"}, calls[len(calls)-1])
}
