package mirror

import (
	"bytes"
	"context"
	"os"
	"time"

	"reposync/internal/logger"
	"reposync/internal/model"
	"reposync/internal/pipeline"
	"reposync/internal/util"

	"go.uber.org/zap"
)

// Tree reads committed content from the working copy's history.
type Tree interface {
	Show(ctx context.Context, ref, path string) ([]byte, error)
	ObjectSize(ctx context.Context, ref, path string) (int64, bool, error)
	LastChange(ctx context.Context, ref, path string) (time.Time, error)
}

type Resolver interface {
	Resolve(local, remote model.FileState) model.Resolution
}

// PullResult lists how pulled changes were applied to the source.
type PullResult struct {
	Updated []string
	Removed []string
	Kept    []string
}

// PullBack applies paths changed by a pull (between before and HEAD) to the
// source directory. A source file still equal to the pre-pull version is
// replaced or removed; a locally edited one goes to the resolver, and is
// never removed.
func (m *Mirror) PullBack(ctx context.Context, tree Tree, resolver Resolver, before string, paths []string) (*PullResult, error) {
	result := &PullResult{}

	for _, rel := range paths {
		if !m.filter.Match(rel) {
			continue
		}

		if err := m.pullPath(ctx, tree, resolver, before, rel, result); err != nil {
			logger.Log.Error("failed to apply pulled change",
				zap.String("path", rel),
				zap.Error(err))
			return result, err
		}
	}

	if len(result.Updated)+len(result.Removed)+len(result.Kept) > 0 {
		logger.Log.Info("applied pulled changes to source",
			zap.Int("updated", len(result.Updated)),
			zap.Int("removed", len(result.Removed)),
			zap.Int("kept_local", len(result.Kept)))
	}

	return result, nil
}

func (m *Mirror) pullPath(ctx context.Context, tree Tree, resolver Resolver, before, rel string, result *PullResult) error {
	src := m.sourcePath(rel)

	remoteSize, remoteExists, err := tree.ObjectSize(ctx, "HEAD", rel)
	if err != nil {
		return err
	}

	var remote []byte
	if remoteExists {
		if remote, err = tree.Show(ctx, "HEAD", rel); err != nil {
			return err
		}
	}

	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		if !remoteExists {
			return nil
		}
		result.Updated = append(result.Updated, rel)
		return m.writeSource(rel, remote)
	}
	if err != nil {
		return err
	}

	local, err := pipeline.Checksum(src)
	if err != nil {
		return err
	}

	if remoteExists && bytes.Equal(local, pipeline.ChecksumBytes(remote)) {
		return nil
	}

	if m.unchangedSince(ctx, tree, before, rel, local) {
		if !remoteExists {
			result.Removed = append(result.Removed, rel)
			if err := util.RemoveIfExists(src); err != nil {
				return err
			}
			util.RemoveEmptyParents(m.source, src)
			return nil
		}
		result.Updated = append(result.Updated, rel)
		return m.writeSource(rel, remote)
	}

	if !remoteExists {
		result.Kept = append(result.Kept, rel)
		return nil
	}

	changed, err := tree.LastChange(ctx, "HEAD", rel)
	if err != nil {
		return err
	}

	outcome := resolver.Resolve(
		model.FileState{Path: rel, Size: info.Size(), ModTime: info.ModTime(), Exists: true},
		model.FileState{Path: rel, Size: remoteSize, ModTime: changed, Exists: true},
	)
	if outcome == model.KeepLocal {
		result.Kept = append(result.Kept, rel)
		return nil
	}

	result.Updated = append(result.Updated, rel)
	return m.writeSource(rel, remote)
}

// unchangedSince reports whether the source copy equals rel at ref.
func (m *Mirror) unchangedSince(ctx context.Context, tree Tree, ref, rel string, local []byte) bool {
	if ref == "" {
		return false
	}

	if _, ok, err := tree.ObjectSize(ctx, ref, rel); err != nil || !ok {
		return false
	}

	base, err := tree.Show(ctx, ref, rel)
	if err != nil {
		return false
	}

	return bytes.Equal(local, pipeline.ChecksumBytes(base))
}

func (m *Mirror) writeSource(rel string, data []byte) error {
	return util.AtomicWrite(m.sourcePath(rel), bytes.NewReader(data))
}
