package model

import "time"

// FileState is one side of a conflicting path. ModTime is the disk mtime for
// the local side and the last commit time for the remote side.
type FileState struct {
	Path    string
	Size    int64
	ModTime time.Time
	Exists  bool
}

type Resolution string

const (
	KeepLocal  Resolution = "KEEP_LOCAL"
	KeepRemote Resolution = "KEEP_REMOTE"
)

type ResolvedPath struct {
	Path       string     `json:"path"`
	Resolution Resolution `json:"resolution"`
	Local      FileState  `json:"-"`
	Remote     FileState  `json:"-"`
}
