package model

type OperationKind string

const (
	OperationPush OperationKind = "PUSH"
	OperationPull OperationKind = "PULL"
	OperationSync OperationKind = "SYNC"
)

type SyncStatus string

const (
	StatusPending SyncStatus = "PENDING"
	StatusSyncing SyncStatus = "SYNCING"
	StatusPushing SyncStatus = "PUSHING"
	StatusPulling SyncStatus = "PULLING"
	StatusSynced  SyncStatus = "SYNCED"
	StatusError   SyncStatus = "ERROR"
)

// Active reports whether the status marks an operation in flight.
func (s SyncStatus) Active() bool {
	return s == StatusSyncing || s == StatusPushing || s == StatusPulling
}

type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelError   LogLevel = "error"
)

// Health is the state of the working copy as seen before a pull.
type Health string

const (
	HealthClean      Health = "CLEAN"
	HealthDirty      Health = "DIRTY"
	HealthConflicted Health = "CONFLICTED"
	HealthLocked     Health = "LOCKED"
)
