package daemon

import (
	"sync"
	"time"

	"reposync/internal/logger"
	"reposync/internal/model"

	"go.uber.org/zap"
)

// Sink receives status transitions, user-facing log lines and the auto-sync
// countdown.
type Sink interface {
	OnStatus(status model.SyncStatus)
	OnLog(message string, level model.LogLevel)
	OnCountdown(seconds int)
}

type nopSink struct{}

func (nopSink) OnStatus(model.SyncStatus) {}

func (nopSink) OnLog(string, model.LogLevel) {}

func (nopSink) OnCountdown(int) {}

// LogEntry is one line forwarded to the sink.
type LogEntry struct {
	Message string         `json:"message"`
	Level   model.LogLevel `json:"level"`
	At      time.Time      `json:"at"`
}

// Reporter is the daemon's Sink: it logs every event and keeps the latest
// state for the status endpoint.
type Reporter struct {
	mu        sync.RWMutex
	status    model.SyncStatus
	countdown int
	changedAt time.Time
	logs      []LogEntry
	limit     int
}

func NewReporter(limit int) *Reporter {
	if limit <= 0 {
		limit = 50
	}

	return &Reporter{
		status:    model.StatusPending,
		changedAt: time.Now(),
		limit:     limit,
	}
}

func (r *Reporter) OnStatus(status model.SyncStatus) {
	r.mu.Lock()
	r.status = status
	r.changedAt = time.Now()
	r.mu.Unlock()

	logger.Log.Debug("status changed", zap.String("status", string(status)))
}

func (r *Reporter) OnLog(message string, level model.LogLevel) {
	r.mu.Lock()
	r.logs = append(r.logs, LogEntry{Message: message, Level: level, At: time.Now()})
	if len(r.logs) > r.limit {
		r.logs = r.logs[len(r.logs)-r.limit:]
	}
	r.mu.Unlock()

	switch level {
	case model.LevelError:
		logger.Log.Error(message)
	default:
		logger.Log.Info(message, zap.String("level", string(level)))
	}
}

func (r *Reporter) OnCountdown(seconds int) {
	r.mu.Lock()
	r.countdown = seconds
	r.mu.Unlock()
}

type ReporterSnapshot struct {
	Status    model.SyncStatus `json:"status"`
	ChangedAt time.Time        `json:"changed_at"`
	Countdown int              `json:"countdown"`
	Logs      []LogEntry       `json:"logs"`
}

func (r *Reporter) Snapshot() ReporterSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return ReporterSnapshot{
		Status:    r.status,
		ChangedAt: r.changedAt,
		Countdown: r.countdown,
		Logs:      append([]LogEntry(nil), r.logs...),
	}
}
