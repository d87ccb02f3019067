// Package recovery brings a divergent or broken working copy back to a clean,
// pushable state. Local history always wins the commit graph; binary file
// content is decided per path by the conflict heuristic.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reposync/internal/conflict"
	"reposync/internal/gitrepo"
	"reposync/internal/logger"
	"reposync/internal/model"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const ReconcileMessage = "reposync: reconcile diverged history"

var ErrRecoveryFailed = errors.New("recovery failed")

// Repository is the subset of gitrepo.Repo the merger drives.
type Repository interface {
	Dir() string
	RemoteRef() string
	AbortRebase(ctx context.Context) (bool, error)
	AbortMerge(ctx context.Context) (bool, error)
	RemoveStaleLock() (bool, error)
	StashPop(ctx context.Context) error
	ResetHard(ctx context.Context, ref string) error
	Fetch(ctx context.Context) error
	DiffNames(ctx context.Context, from, to string) ([]string, error)
	ObjectSize(ctx context.Context, ref, path string) (int64, bool, error)
	LastChange(ctx context.Context, ref, path string) (time.Time, error)
	CheckoutPath(ctx context.Context, ref, path string) error
	StageAll(ctx context.Context) error
	Commit(ctx context.Context, message string) (string, error)
	Push(ctx context.Context, force bool) error
}

type Step struct {
	Name    string
	Outcome string
	Err     error
}

type Report struct {
	Steps    []Step
	Resolved []model.ResolvedPath
	Commit   string
	// Absorbed collects failures of the steps that do not abort recovery.
	Absorbed error
}

func (r *Report) record(name, outcome string, err error) {
	r.Steps = append(r.Steps, Step{Name: name, Outcome: outcome, Err: err})

	if err != nil {
		r.Absorbed = multierr.Append(r.Absorbed, fmt.Errorf("%s: %w", name, err))
		logger.Log.Warn("recovery step",
			zap.String("step", name),
			zap.String("outcome", outcome),
			zap.Error(err))
		return
	}

	logger.Log.Info("recovery step",
		zap.String("step", name),
		zap.String("outcome", outcome))
}

type Merger struct {
	repo     Repository
	resolver *conflict.Resolver
	binary   *conflict.BinarySet
}

func NewMerger(repo Repository, resolver *conflict.Resolver, binary *conflict.BinarySet) *Merger {
	if resolver == nil {
		resolver = conflict.NewResolver(conflict.DefaultThreshold)
	}
	if binary == nil {
		binary = conflict.NewBinarySet()
	}

	return &Merger{
		repo:     repo,
		resolver: resolver,
		binary:   binary,
	}
}

// Recover runs the reconciliation steps in order. Only a failed force-push
// is returned as an error; every other failure is logged and absorbed into
// the report.
func (m *Merger) Recover(ctx context.Context, hadStash bool) (*Report, error) {
	report := &Report{}
	logger.Log.Info("recovery started", zap.String("dir", m.repo.Dir()), zap.Bool("had_stash", hadStash))

	m.cleanup(ctx, report, hadStash)

	if err := m.repo.ResetHard(ctx, "HEAD"); err != nil {
		report.record("reset", "failed", err)
	} else {
		report.record("reset", "done", nil)
	}

	if err := m.repo.Fetch(ctx); err != nil {
		report.record("fetch", "failed", err)
	} else {
		report.record("fetch", "done", nil)
	}

	binary := m.conflicting(ctx, report)
	m.resolve(ctx, report, binary)

	if err := m.repo.StageAll(ctx); err != nil {
		report.record("stage", "failed", err)
	} else {
		report.record("stage", "done", nil)
	}

	id, err := m.repo.Commit(ctx, ReconcileMessage)
	switch {
	case errors.Is(err, gitrepo.ErrNothingToCommit):
		report.record("commit", "nothing to commit", nil)
	case err != nil:
		report.record("commit", "failed", err)
	default:
		report.Commit = id
		report.record("commit", id, nil)
	}

	if err := m.repo.Push(ctx, true); err != nil {
		report.record("force-push", "failed", err)
		return report, fmt.Errorf("%w: %w", ErrRecoveryFailed, err)
	}
	report.record("force-push", "done", nil)

	logger.Log.Info("recovery finished",
		zap.Int("resolved", len(report.Resolved)),
		zap.String("commit", report.Commit))

	return report, nil
}

func (m *Merger) cleanup(ctx context.Context, report *Report, hadStash bool) {
	aborted, err := m.repo.AbortRebase(ctx)
	report.record("abort-rebase", outcome(aborted, "aborted", "none"), err)

	aborted, err = m.repo.AbortMerge(ctx)
	report.record("abort-merge", outcome(aborted, "aborted", "none"), err)

	removed, err := m.repo.RemoveStaleLock()
	report.record("remove-lock", outcome(removed, "removed", "none"), err)

	if !hadStash {
		return
	}

	// Conflicts from the pop are discarded by the reset that follows.
	if err := m.repo.StashPop(ctx); err != nil {
		report.record("stash-pop", "conflicted", err)
		return
	}
	report.record("stash-pop", "done", nil)
}

func (m *Merger) conflicting(ctx context.Context, report *Report) []string {
	paths, err := m.repo.DiffNames(ctx, "HEAD", m.repo.RemoteRef())
	if err != nil {
		report.record("diff", "failed", err)
		return nil
	}

	binary, text := m.binary.Partition(paths)
	report.record("diff", fmt.Sprintf("%d binary, %d text", len(binary), len(text)), nil)

	return binary
}

func (m *Merger) resolve(ctx context.Context, report *Report, paths []string) {
	ref := m.repo.RemoteRef()

	for _, path := range paths {
		local, err := m.localState(path)
		if err != nil {
			report.record("resolve "+path, "skipped", err)
			continue
		}

		remote, err := m.remoteState(ctx, ref, path)
		if err != nil {
			report.record("resolve "+path, "skipped", err)
			continue
		}

		if !local.Exists && !remote.Exists {
			continue
		}

		outcome := m.resolver.Resolve(local, remote)
		if outcome == model.KeepRemote {
			if err := m.repo.CheckoutPath(ctx, ref, path); err != nil {
				report.record("resolve "+path, "checkout failed", err)
				continue
			}
		}

		report.Resolved = append(report.Resolved, model.ResolvedPath{
			Path:       path,
			Resolution: outcome,
			Local:      local,
			Remote:     remote,
		})
		report.record("resolve "+path, string(outcome), nil)
	}
}

func (m *Merger) localState(path string) (model.FileState, error) {
	state := model.FileState{Path: path}

	info, err := os.Lstat(filepath.Join(m.repo.Dir(), filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, err
	}

	state.Size = info.Size()
	state.ModTime = info.ModTime()
	state.Exists = true
	return state, nil
}

func (m *Merger) remoteState(ctx context.Context, ref, path string) (model.FileState, error) {
	state := model.FileState{Path: path}

	size, ok, err := m.repo.ObjectSize(ctx, ref, path)
	if err != nil || !ok {
		return state, err
	}

	changed, err := m.repo.LastChange(ctx, ref, path)
	if err != nil {
		return state, err
	}

	state.Size = size
	state.ModTime = changed
	state.Exists = true
	return state, nil
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
