// Package mirror copies files between the source directory and the git
// working directory.
package mirror

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"reposync/internal/logger"
	"reposync/internal/pipeline"
	"reposync/internal/util"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

type FileFilter interface {
	ListSyncable() ([]string, error)
	Match(rel string) bool
}

// Changes lists relative paths touched by a mirror pass.
type Changes struct {
	Copied  []string
	Removed []string
}

func (c *Changes) Len() int {
	return len(c.Copied) + len(c.Removed)
}

func (c *Changes) Paths() []string {
	paths := append(append([]string{}, c.Copied...), c.Removed...)
	sort.Strings(paths)
	return paths
}

type Mirror struct {
	source string
	work   string
	filter FileFilter
}

func New(source, work string, filter FileFilter) (*Mirror, error) {
	absSrc, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("invalid source path: %w", err)
	}
	absWork, err := filepath.Abs(work)
	if err != nil {
		return nil, fmt.Errorf("invalid work path: %w", err)
	}

	return &Mirror{
		source: absSrc,
		work:   absWork,
		filter: filter,
	}, nil
}

func (m *Mirror) Source() string { return m.source }

func (m *Mirror) Work() string { return m.work }

func (m *Mirror) sourcePath(rel string) string {
	return filepath.Join(m.source, filepath.FromSlash(rel))
}

func (m *Mirror) workPath(rel string) string {
	return filepath.Join(m.work, filepath.FromSlash(rel))
}

// Push makes the working directory match the source for every filtered path:
// changed files are copied, and filtered files missing from the source are
// removed.
func (m *Mirror) Push() (*Changes, error) {
	return m.push(true)
}

// Plan reports what Push would change without touching the disk.
func (m *Mirror) Plan() (*Changes, error) {
	return m.push(false)
}

func (m *Mirror) push(apply bool) (*Changes, error) {
	syncable, err := m.filter.ListSyncable()
	if err != nil {
		return nil, err
	}

	changes := &Changes{}
	keep := mapset.NewThreadUnsafeSet[string](syncable...)

	for _, rel := range syncable {
		same, err := pipeline.SameContent(m.sourcePath(rel), m.workPath(rel))
		if err != nil {
			return changes, fmt.Errorf("failed to compare %s: %w", rel, err)
		}
		if same {
			continue
		}

		if apply {
			if err := util.CopyFile(m.sourcePath(rel), m.workPath(rel)); err != nil {
				return changes, fmt.Errorf("failed to mirror %s: %w", rel, err)
			}
		}
		changes.Copied = append(changes.Copied, rel)
	}

	tracked, err := m.listWork()
	if err != nil {
		return changes, err
	}

	for _, rel := range tracked {
		if keep.Contains(rel) || !m.filter.Match(rel) {
			continue
		}

		if apply {
			path := m.workPath(rel)
			if err := util.RemoveIfExists(path); err != nil {
				return changes, err
			}
			util.RemoveEmptyParents(m.work, path)
		}
		changes.Removed = append(changes.Removed, rel)
	}

	if apply && changes.Len() > 0 {
		logger.Log.Info("mirrored source into working copy",
			zap.Int("copied", len(changes.Copied)),
			zap.Int("removed", len(changes.Removed)))
	}

	return changes, nil
}

// Adopt copies files present only in the working directory into the source.
// Existing source files are never overwritten.
func (m *Mirror) Adopt() ([]string, error) {
	files, err := m.listWork()
	if err != nil {
		return nil, err
	}

	var adopted []string
	for _, rel := range files {
		if !m.filter.Match(rel) || util.Exists(m.sourcePath(rel)) {
			continue
		}

		if err := util.CopyFile(m.workPath(rel), m.sourcePath(rel)); err != nil {
			return adopted, fmt.Errorf("failed to adopt %s: %w", rel, err)
		}
		adopted = append(adopted, rel)
	}

	if len(adopted) > 0 {
		logger.Log.Info("adopted remote files into source",
			zap.Int("count", len(adopted)))
	}

	return adopted, nil
}

// listWork returns the relative paths of regular files in the working
// directory, git metadata excluded.
func (m *Mirror) listWork() ([]string, error) {
	var files []string

	err := filepath.WalkDir(m.work, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == m.work {
				return filepath.SkipDir
			}
			return err
		}

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(m.work, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list working copy: %w", err)
	}

	return files, nil
}
