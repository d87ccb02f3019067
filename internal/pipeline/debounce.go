package pipeline

import (
	"time"

	"reposync/internal/model"

	"github.com/jonboulle/clockwork"
)

// Debounce collects events until delay passes without a new one, then emits
// the batch with one entry per path (latest event wins, first-seen order).
// Pending events are flushed when inCh closes.
func Debounce(clock clockwork.Clock, inCh <-chan model.FileEvent, delay time.Duration) <-chan []model.FileEvent {
	outCh := make(chan []model.FileEvent, 1)

	go func() {
		defer close(outCh)

		var (
			batch []model.FileEvent
			index = make(map[string]int)
			timer clockwork.Timer
			fire  <-chan time.Time
		)

		flush := func() {
			if len(batch) == 0 {
				return
			}
			outCh <- batch
			batch = nil
			index = make(map[string]int)
		}

		for {
			select {
			case event, ok := <-inCh:
				if !ok {
					if timer != nil {
						timer.Stop()
					}
					flush()
					return
				}

				if i, seen := index[event.Path]; seen {
					batch[i] = event
				} else {
					index[event.Path] = len(batch)
					batch = append(batch, event)
				}

				if timer != nil {
					timer.Stop()
				}
				timer = clock.NewTimer(delay)
				fire = timer.Chan()

			case <-fire:
				fire = nil
				timer = nil
				flush()
			}
		}
	}()

	return outCh
}
