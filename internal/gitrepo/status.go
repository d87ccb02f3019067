package gitrepo

import (
	"context"
	"strings"

	"reposync/internal/model"
)

type FileStatus struct {
	Path     string
	Index    byte
	WorkTree byte
}

// Conflicted reports an unmerged entry (DD, AU, UD, UA, DU, AA, UU).
func (f FileStatus) Conflicted() bool {
	switch string([]byte{f.Index, f.WorkTree}) {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	}
	return false
}

// Status lists working tree changes, untracked files included.
func (r *Repo) Status(ctx context.Context) ([]FileStatus, error) {
	out, err := r.runRaw(ctx, "-c", "core.quotepath=off", "status", "--porcelain=v1", "-uall")
	if err != nil {
		return nil, err
	}

	return parseStatus(string(out)), nil
}

func parseStatus(out string) []FileStatus {
	var entries []FileStatus
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}

		path := line[3:]
		if _, to, ok := strings.Cut(path, " -> "); ok {
			path = to
		}
		path = strings.Trim(path, `"`)

		entries = append(entries, FileStatus{
			Path:     path,
			Index:    line[0],
			WorkTree: line[1],
		})
	}
	return entries
}

// Health classifies the working copy. Locked wins over Conflicted, which wins
// over Dirty.
func (r *Repo) Health(ctx context.Context) (model.Health, error) {
	if exists(r.lockPath()) {
		return model.HealthLocked, nil
	}
	if r.RebaseInProgress() || r.MergeInProgress() {
		return model.HealthConflicted, nil
	}

	entries, err := r.Status(ctx)
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		if e.Conflicted() {
			return model.HealthConflicted, nil
		}
	}

	if len(entries) > 0 {
		return model.HealthDirty, nil
	}

	return model.HealthClean, nil
}
