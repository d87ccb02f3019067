package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

func (r *Repo) StageAll(ctx context.Context) error {
	_, err := r.run(ctx, "add", "-A")
	return err
}

// Commit records the staged changes and returns the new commit id. When there
// is nothing to commit the error satisfies errors.Is(err, ErrNothingToCommit).
func (r *Repo) Commit(ctx context.Context, message string) (string, error) {
	if _, err := r.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}

	return r.run(ctx, "rev-parse", "HEAD")
}

func (r *Repo) Push(ctx context.Context, force bool) error {
	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, r.remote, "HEAD:refs/heads/"+r.branch)

	_, err := r.run(ctx, r.network(args...)...)
	return err
}

func (r *Repo) Fetch(ctx context.Context) error {
	_, err := r.run(ctx, r.network("fetch", "--prune", r.remote)...)
	return err
}

// Pull pulls the tracked branch, rebasing local commits when rebase is set and
// allowing fast-forward only otherwise.
func (r *Repo) Pull(ctx context.Context, rebase bool) error {
	mode := "--ff-only"
	if rebase {
		mode = "--rebase"
	}

	_, err := r.run(ctx, r.network("pull", mode, r.remote, r.branch)...)
	return err
}

// Stash saves uncommitted changes, untracked files included. It reports
// whether anything was saved.
func (r *Repo) Stash(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "stash", "push", "--include-untracked", "-m", stashMessage)
	if err != nil {
		return false, err
	}

	return !strings.Contains(out, "No local changes to save"), nil
}

func (r *Repo) StashPop(ctx context.Context) error {
	_, err := r.run(ctx, "stash", "pop")
	return err
}

func (r *Repo) HasStash(ctx context.Context) bool {
	out, err := r.run(ctx, "stash", "list")
	return err == nil && out != ""
}

func (r *Repo) RebaseInProgress() bool {
	return exists(filepath.Join(r.gitDir(), "rebase-merge")) ||
		exists(filepath.Join(r.gitDir(), "rebase-apply"))
}

func (r *Repo) MergeInProgress() bool {
	return exists(filepath.Join(r.gitDir(), "MERGE_HEAD"))
}

// AbortRebase aborts an in-progress rebase and reports whether one existed.
// When --abort itself fails the rebase state is dropped with --quit.
func (r *Repo) AbortRebase(ctx context.Context) (bool, error) {
	if !r.RebaseInProgress() {
		return false, nil
	}

	if _, err := r.run(ctx, "rebase", "--abort"); err != nil {
		if _, quitErr := r.run(ctx, "rebase", "--quit"); quitErr != nil {
			return true, err
		}
	}

	return true, nil
}

func (r *Repo) AbortMerge(ctx context.Context) (bool, error) {
	if !r.MergeInProgress() {
		return false, nil
	}

	_, err := r.run(ctx, "merge", "--abort")
	return true, err
}

func (r *Repo) lockPath() string {
	return filepath.Join(r.gitDir(), "index.lock")
}

// RemoveStaleLock deletes .git/index.lock left behind by a crashed git
// process and reports whether one was present.
func (r *Repo) RemoveStaleLock() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.lockPath()); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to remove stale lock: %w", err)
	}

	return true, nil
}

func (r *Repo) ResetHard(ctx context.Context, ref string) error {
	_, err := r.run(ctx, "reset", "--hard", ref)
	return err
}

// DiffNames lists paths that differ between two refs.
func (r *Repo) DiffNames(ctx context.Context, from, to string) ([]string, error) {
	out, err := r.run(ctx, "-c", "core.quotepath=off", "diff", "--name-only", from, to, "--")
	if err != nil {
		return nil, err
	}

	return splitLines(out), nil
}

// Show returns the content of path at ref.
func (r *Repo) Show(ctx context.Context, ref, path string) ([]byte, error) {
	return r.runRaw(ctx, "show", ref+":"+path)
}

// ObjectSize returns the blob size of path at ref, and false when the path
// does not exist there.
func (r *Repo) ObjectSize(ctx context.Context, ref, path string) (int64, bool, error) {
	spec := ref + ":" + path
	if _, err := r.run(ctx, "cat-file", "-e", spec); err != nil {
		return 0, false, nil
	}

	out, err := r.run(ctx, "cat-file", "-s", spec)
	if err != nil {
		return 0, false, err
	}

	size, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse object size %q: %w", out, err)
	}

	return size, true, nil
}

// LastChange returns the commit time of the latest commit touching path on
// ref, or the zero time when the path has no history there.
func (r *Repo) LastChange(ctx context.Context, ref, path string) (time.Time, error) {
	out, err := r.run(ctx, "log", "-1", "--format=%cI", ref, "--", path)
	if err != nil {
		return time.Time{}, err
	}
	if out == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, out)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse commit time %q: %w", out, err)
	}

	return t, nil
}

func (r *Repo) CheckoutPath(ctx context.Context, ref, path string) error {
	_, err := r.run(ctx, "checkout", ref, "--", path)
	return err
}

// ListFiles lists the paths tracked at ref.
func (r *Repo) ListFiles(ctx context.Context, ref string) ([]string, error) {
	out, err := r.run(ctx, "-c", "core.quotepath=off", "ls-tree", "-r", "--name-only", ref)
	if err != nil {
		return nil, err
	}

	return splitLines(out), nil
}

func (r *Repo) HeadExists(ctx context.Context) bool {
	_, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	return err == nil
}

// HeadID returns the current commit id, or "" on an unborn branch.
func (r *Repo) HeadID(ctx context.Context) string {
	out, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

func (r *Repo) RemoteBranchExists(ctx context.Context) bool {
	_, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "refs/remotes/"+r.RemoteRef())
	return err == nil
}

// AheadBehind counts commits on HEAD missing from the remote-tracking branch
// and the reverse. It does not fetch.
func (r *Repo) AheadBehind(ctx context.Context) (int, int, error) {
	head := r.HeadExists(ctx)
	remote := r.RemoteBranchExists(ctx)

	switch {
	case !head && !remote:
		return 0, 0, nil
	case !remote:
		n, err := r.count(ctx, "HEAD")
		return n, 0, err
	case !head:
		n, err := r.count(ctx, r.RemoteRef())
		return 0, n, err
	}

	out, err := r.run(ctx, "rev-list", "--left-right", "--count", "HEAD..."+r.RemoteRef())
	if err != nil {
		return 0, 0, err
	}

	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", out)
	}

	ahead, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, err
	}
	behind, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, err
	}

	return ahead, behind, nil
}

func (r *Repo) count(ctx context.Context, ref string) (int, error) {
	out, err := r.run(ctx, "rev-list", "--count", ref)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(out)
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}

	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
