package conflict

import (
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

var DefaultBinaryExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".ico", ".tiff",
	".pb", ".bin", ".dat", ".db", ".sqlite", ".pdf", ".zip",
}

// BinarySet recognises paths that cannot be text-merged and are therefore
// auto-resolved by the heuristic.
type BinarySet struct {
	exts mapset.Set[string]
}

func NewBinarySet(exts ...string) *BinarySet {
	if len(exts) == 0 {
		exts = DefaultBinaryExtensions
	}

	set := mapset.NewSet[string]()
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set.Add(ext)
	}

	return &BinarySet{exts: set}
}

func (b *BinarySet) Contains(p string) bool {
	return b.exts.Contains(strings.ToLower(path.Ext(p)))
}

// Partition splits paths into binary and text, preserving order.
func (b *BinarySet) Partition(paths []string) (binary, text []string) {
	for _, p := range paths {
		if b.Contains(p) {
			binary = append(binary, p)
		} else {
			text = append(text, p)
		}
	}
	return binary, text
}
