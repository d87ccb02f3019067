package pipeline

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"reposync/internal/logger"
	"reposync/internal/model"

	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"
)

// IgnoreFile holds extra gitignore-style rules inside the source directory.
const IgnoreFile = ".syncignore"

var defaultIgnoreLines = []string{
	".git",
	"*.reposync.tmp",
	"*.tmp",
	"*.swp",
	"*~",
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// Filter decides which files under the source directory are mirrored. Rules
// are the defaults, the configured ignore list, then the source's .syncignore.
type Filter struct {
	root   string
	ignore *gitignore.GitIgnore
	rules  int
}

func NewFilter(root string, ignoreList []string) (*Filter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid source path: %w", err)
	}

	lines := append([]string{}, defaultIgnoreLines...)
	lines = append(lines, ignoreList...)

	extra, err := readIgnoreFile(filepath.Join(abs, IgnoreFile))
	if err != nil {
		return nil, err
	}
	lines = append(lines, extra...)

	if len(extra) > 0 {
		logger.Log.Info("loaded ignore file",
			zap.String("path", filepath.Join(abs, IgnoreFile)),
			zap.Int("rules", len(extra)))
	}

	return &Filter{
		root:   abs,
		ignore: gitignore.CompileIgnoreLines(lines...),
		rules:  len(lines),
	}, nil
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ignore file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore file: %w", err)
	}

	return lines, nil
}

func (f *Filter) Root() string {
	return f.root
}

// Match reports whether the slash-separated relative path is synced.
func (f *Filter) Match(rel string) bool {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	if rel == "" || rel == "." || strings.HasPrefix(rel, "../") {
		return false
	}
	return !f.ignore.MatchesPath(rel)
}

func (f *Filter) matchDir(rel string) bool {
	return f.Match(rel) && !f.ignore.MatchesPath(rel+"/")
}

// SkipDir reports whether the absolute directory path is excluded along with
// everything below it.
func (f *Filter) SkipDir(path string) bool {
	rel, ok := f.Rel(path)
	if !ok {
		return false
	}
	return !f.matchDir(rel)
}

// Rel converts an absolute path under the source directory to the relative
// form Match expects.
func (f *Filter) Rel(path string) (string, bool) {
	rel, err := filepath.Rel(f.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ListSyncable walks the source directory and returns the relative paths of
// the regular files to mirror, in lexical order.
func (f *Filter) ListSyncable() ([]string, error) {
	var paths []string

	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == f.root {
			return nil
		}

		rel, ok := f.Rel(path)
		if !ok {
			return nil
		}

		if d.IsDir() {
			if !f.matchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !f.Match(rel) {
			return nil
		}

		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list source files: %w", err)
	}

	return paths, nil
}

// FilterEvents drops events for paths the filter excludes.
func FilterEvents(inCh <-chan model.FileEvent, f *Filter) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			rel, ok := f.Rel(event.Path)
			if !ok || !f.Match(rel) {
				continue
			}
			outCh <- event
		}
	}()

	return outCh
}
