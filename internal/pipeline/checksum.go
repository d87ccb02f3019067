package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"

	"reposync/internal/logger"
	"reposync/internal/model"

	"go.uber.org/zap"
)

func Checksum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

func ChecksumBytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func HexSum(sum []byte) string {
	return hex.EncodeToString(sum)
}

// SameContent compares two files by size, then by checksum. A missing file
// never equals an existing one.
func SameContent(a, b string) (bool, error) {
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	if os.IsNotExist(errA) || os.IsNotExist(errB) {
		return os.IsNotExist(errA) && os.IsNotExist(errB), nil
	}
	if errA != nil {
		return false, errA
	}
	if errB != nil {
		return false, errB
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}

	sa, err := Checksum(a)
	if err != nil {
		return false, err
	}
	sb, err := Checksum(b)
	if err != nil {
		return false, err
	}

	return bytes.Equal(sa, sb), nil
}

// ChecksumFilter drops write events whose content did not change since the
// last event for the same path.
type ChecksumFilter struct {
	mu    sync.Mutex
	cache map[string][]byte
}

func NewChecksumFilter() *ChecksumFilter {
	return &ChecksumFilter{
		cache: make(map[string][]byte),
	}
}

func (cf *ChecksumFilter) Run(inCh <-chan model.FileEvent) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			if cf.Changed(event) {
				outCh <- event
			}
		}
	}()

	return outCh
}

func (cf *ChecksumFilter) Changed(event model.FileEvent) bool {
	if event.Type == model.EventRemove || event.Type == model.EventRename {
		cf.mu.Lock()
		delete(cf.cache, event.Path)
		cf.mu.Unlock()
		return true
	}

	sum, err := Checksum(event.Path)
	if err != nil {
		// Directories and vanished files still count as a change.
		logger.Log.Debug("checksum failed",
			zap.String("path", event.Path),
			zap.Error(err))
		return true
	}

	cf.mu.Lock()
	defer cf.mu.Unlock()

	prev, exists := cf.cache[event.Path]
	if exists && bytes.Equal(prev, sum) {
		logger.Log.Debug("checksum unchanged, skipping",
			zap.String("path", event.Path))
		return false
	}

	cf.cache[event.Path] = sum
	return true
}
