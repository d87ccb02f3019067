package conflict

import (
	"time"

	"reposync/internal/logger"
	"reposync/internal/model"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// DefaultThreshold is the relative size difference above which the larger
// file wins outright.
const DefaultThreshold = 0.20

// Resolve decides which side of a conflicting path survives. A size delta
// above DefaultThreshold favours the larger file; otherwise the later
// timestamp wins. Ties favour local.
func Resolve(localSize int64, localMTime time.Time, remoteSize int64, remoteMTime time.Time) model.Resolution {
	return resolve(DefaultThreshold, localSize, localMTime, remoteSize, remoteMTime)
}

func resolve(threshold float64, localSize int64, localMTime time.Time, remoteSize int64, remoteMTime time.Time) model.Resolution {
	if DiffRatio(localSize, remoteSize) > threshold {
		if remoteSize > localSize {
			return model.KeepRemote
		}
		return model.KeepLocal
	}

	if remoteMTime.After(localMTime) {
		return model.KeepRemote
	}
	return model.KeepLocal
}

// DiffRatio is |l-r| / max(l, r, 1).
func DiffRatio(localSize, remoteSize int64) float64 {
	delta := localSize - remoteSize
	if delta < 0 {
		delta = -delta
	}
	return float64(delta) / float64(max(localSize, remoteSize, 1))
}

type Resolver struct {
	threshold float64
}

func NewResolver(threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Resolver{threshold: threshold}
}

func (r *Resolver) Resolve(local, remote model.FileState) model.Resolution {
	outcome := resolve(r.threshold, local.Size, local.ModTime, remote.Size, remote.ModTime)

	logger.Log.Info("conflict resolved",
		zap.String("path", local.Path),
		zap.String("outcome", string(outcome)),
		zap.String("local_size", humanize.IBytes(uint64(max(local.Size, 0)))),
		zap.String("remote_size", humanize.IBytes(uint64(max(remote.Size, 0)))),
		zap.Float64("diff_ratio", DiffRatio(local.Size, remote.Size)),
		zap.Time("local_mod", local.ModTime),
		zap.Time("remote_mod", remote.ModTime))

	return outcome
}

func (r *Resolver) Threshold() float64 {
	return r.threshold
}
