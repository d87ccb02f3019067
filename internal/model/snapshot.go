package model

import "time"

type StatusSnapshot struct {
	Status             SyncStatus `json:"status"`
	PendingChangeCount int        `json:"pending_change_count"`
	LastSyncAt         *time.Time `json:"last_sync_at"`
	RepositoryID       string     `json:"repository_id"`
	AutoSync           bool       `json:"auto_sync"`
	NextSyncIn         int        `json:"next_sync_in"`
}

type DetailedStatus struct {
	CommitsAhead      int      `json:"commits_ahead"`
	CommitsBehind     int      `json:"commits_behind"`
	ChangedPaths      []string `json:"changed_paths"`
	TotalChangedCount int      `json:"total_changed_count"`
}
