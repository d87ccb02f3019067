// Package gittest builds throwaway git remotes and clones for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const Branch = "main"

// RequireGit skips the test when no git binary is available.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// Git runs git in dir and fails the test on error.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	out, err := run(dir, nil, args...)
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(out)
}

func run(dir string, env []string, args ...string) (string, error) {
	full := append([]string{
		"-c", "user.name=Test User",
		"-c", "user.email=test@example.com",
		"-c", "commit.gpgsign=false",
		"-c", "init.defaultBranch=" + Branch,
	}, args...)

	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, env...)

	out, err := cmd.CombinedOutput()
	return string(out), err
}

// NewRemote creates an empty bare repository and returns its path.
func NewRemote(t testing.TB) string {
	t.Helper()
	RequireGit(t)

	dir := filepath.Join(t.TempDir(), "remote.git")
	require.NoError(t, os.MkdirAll(dir, 0755))
	Git(t, dir, "init", "--bare")
	Git(t, dir, "symbolic-ref", "HEAD", "refs/heads/"+Branch)
	return dir
}

// Clone makes a working clone of remote with HEAD on Branch.
func Clone(t testing.TB, remote string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "clone")
	Git(t, filepath.Dir(dir), "clone", remote, dir)

	if _, err := run(dir, nil, "rev-parse", "--verify", "--quiet", "HEAD"); err != nil {
		Git(t, dir, "symbolic-ref", "HEAD", "refs/heads/"+Branch)
	}
	return dir
}

func WriteFile(t testing.TB, dir, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// CommitAll stages everything in dir and commits it, returning the commit id.
func CommitAll(t testing.TB, dir, msg string) string {
	t.Helper()
	Git(t, dir, "add", "-A")
	Git(t, dir, "commit", "-m", msg)
	return Git(t, dir, "rev-parse", "HEAD")
}

// CommitAllAt is CommitAll with fixed author and committer dates.
func CommitAllAt(t testing.TB, dir, msg string, when time.Time) string {
	t.Helper()
	stamp := when.Format(time.RFC3339)
	env := []string{"GIT_AUTHOR_DATE=" + stamp, "GIT_COMMITTER_DATE=" + stamp}

	Git(t, dir, "add", "-A")
	out, err := run(dir, env, "commit", "-m", msg)
	require.NoError(t, err, "git commit: %s", out)
	return Git(t, dir, "rev-parse", "HEAD")
}

func Push(t testing.TB, dir string) {
	t.Helper()
	Git(t, dir, "push", "origin", "HEAD:refs/heads/"+Branch)
}

// Seed pushes one commit containing files to remote from a scratch clone.
func Seed(t testing.TB, remote string, files map[string][]byte) string {
	t.Helper()
	dir := Clone(t, remote)
	for rel, data := range files {
		WriteFile(t, dir, rel, data)
	}
	id := CommitAll(t, dir, "seed")
	Push(t, dir)
	return id
}

// Bytes returns n bytes of filler, handy for size-based scenarios.
func Bytes(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}
