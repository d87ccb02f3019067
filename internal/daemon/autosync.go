package daemon

import (
	"context"
	"sync"
	"time"

	"reposync/internal/logger"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// AutoSyncController runs a sync every interval and reports the seconds left
// until the next run. The next run is scheduled when the previous one
// finishes, so a slow sync delays the schedule instead of overlapping it.
type AutoSyncController struct {
	clock     clockwork.Clock
	interval  time.Duration
	run       func(ctx context.Context) error
	countdown func(seconds int)

	mu       sync.Mutex
	running  bool
	nextFire time.Time
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewAutoSyncController(clock clockwork.Clock, interval time.Duration, run func(ctx context.Context) error, countdown func(int)) *AutoSyncController {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if countdown == nil {
		countdown = func(int) {}
	}

	return &AutoSyncController{
		clock:     clock,
		interval:  interval,
		run:       run,
		countdown: countdown,
	}
}

// Start schedules the first run one interval from now. It returns false when
// already running.
func (a *AutoSyncController) Start(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	a.running = true
	a.cancel = cancel
	a.nextFire = a.clock.Now().Add(a.interval)
	a.countdown(a.remainingLocked())

	a.wg.Add(2)
	go a.tick(ctx)
	go a.loop(ctx)

	logger.Log.Info("auto-sync started", zap.Duration("interval", a.interval))
	return true
}

// Stop cancels both tasks, waits for an in-flight run to finish and reports a
// final countdown of 0. Stopping a stopped controller does nothing.
func (a *AutoSyncController) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.cancel()
	a.mu.Unlock()

	a.wg.Wait()
	a.countdown(0)

	logger.Log.Info("auto-sync stopped")
}

func (a *AutoSyncController) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Remaining is ceil(max(0, nextFire-now)) in seconds, 0 when stopped.
func (a *AutoSyncController) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return 0
	}
	return a.remainingLocked()
}

func (a *AutoSyncController) remainingLocked() int {
	left := a.nextFire.Sub(a.clock.Now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func (a *AutoSyncController) emit() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		a.countdown(a.remainingLocked())
	}
}

func (a *AutoSyncController) tick(ctx context.Context) {
	defer a.wg.Done()

	ticker := a.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			a.emit()
		}
	}
}

func (a *AutoSyncController) loop(ctx context.Context) {
	defer a.wg.Done()

	for {
		a.mu.Lock()
		wait := a.nextFire.Sub(a.clock.Now())
		a.mu.Unlock()

		timer := a.clock.NewTimer(max(wait, 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		// A started run completes even if Stop is called meanwhile.
		if err := a.run(context.WithoutCancel(ctx)); err != nil {
			logger.Log.Warn("scheduled sync failed", zap.Error(err))
		}

		a.mu.Lock()
		a.nextFire = a.clock.Now().Add(a.interval)
		if a.running {
			a.countdown(a.remainingLocked())
		}
		a.mu.Unlock()
	}
}
