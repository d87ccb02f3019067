package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "origin", cfg.RemoteName)
	assert.Equal(t, "main", cfg.Branch)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, 0.2, cfg.SizeRatioThreshold)
	assert.Equal(t, filepath.Join(dir, "mirror"), cfg.WorkDir)
	assert.Equal(t, filepath.Join(dir, "reposync.db"), cfg.DBPath)
	assert.Contains(t, cfg.BinaryExtensions, ".png")
	assert.Equal(t, dir, cfg.Dir)
}

func TestLoadFrom_File(t *testing.T) {
	dir := t.TempDir()
	content := "remote_url: https://example.com/me/notes.git\n" +
		"source_dir: /tmp/notes\n" +
		"interval: 30s\n" +
		"branch: trunk\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/me/notes.git", cfg.RemoteURL)
	assert.Equal(t, "/tmp/notes", cfg.SourceDir)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, "trunk", cfg.Branch)
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	cfg.RemoteURL = "git@example.com:me/notes.git"
	cfg.SourceDir = "/tmp/src"
	cfg.Interval = 2 * time.Minute
	require.NoError(t, cfg.Save())

	loaded, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.RemoteURL, loaded.RemoteURL)
	assert.Equal(t, cfg.SourceDir, loaded.SourceDir)
	assert.Equal(t, 2*time.Minute, loaded.Interval)
}

func TestValidate(t *testing.T) {
	tmp := t.TempDir()

	valid := func() *Config {
		cfg := Default
		cfg.RemoteURL = "https://example.com/me/notes.git"
		cfg.SourceDir = filepath.Join(tmp, "src")
		cfg.WorkDir = filepath.Join(tmp, "work")
		return &cfg
	}

	t.Run("ok", func(t *testing.T) {
		cfg := valid()
		require.NoError(t, cfg.Validate())
		assert.True(t, filepath.IsAbs(cfg.SourceDir))
	})

	t.Run("missing remote", func(t *testing.T) {
		cfg := valid()
		cfg.RemoteURL = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "remote_url")
	})

	t.Run("missing source", func(t *testing.T) {
		cfg := valid()
		cfg.SourceDir = " "
		assert.Error(t, cfg.Validate())
	})

	t.Run("work dir inside source", func(t *testing.T) {
		cfg := valid()
		cfg.WorkDir = filepath.Join(cfg.SourceDir, "mirror")
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad threshold", func(t *testing.T) {
		cfg := valid()
		cfg.SizeRatioThreshold = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("short interval", func(t *testing.T) {
		cfg := valid()
		cfg.Interval = 10 * time.Millisecond
		assert.Error(t, cfg.Validate())
	})
}

func TestSettings(t *testing.T) {
	cfg := Default
	cfg.RemoteURL = "https://example.com/r.git"
	cfg.SourceDir = "/src"
	cfg.WorkDir = "/work"

	s := cfg.Settings(func() (string, bool) { return "tok", true })
	assert.Equal(t, "https://example.com/r.git", s.RemoteURL())
	assert.Equal(t, "/src", s.SourceDir())
	assert.Equal(t, "/work", s.WorkDir())
	tok, ok := s.Token()
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)

	_, ok = cfg.Settings(nil).Token()
	assert.False(t, ok)
}
