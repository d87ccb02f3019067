package daemon

import (
	"context"
	"time"

	"reposync/internal/logger"
	"reposync/internal/model"
	"reposync/internal/pipeline"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultSettleDelay = 2 * time.Second

// SyncOnChange runs sync once the source directory has been quiet for delay
// after a change. It returns when events closes and the last batch is handled.
func SyncOnChange(ctx context.Context, clock clockwork.Clock, events <-chan model.FileEvent, filter *pipeline.Filter, delay time.Duration, sync func(ctx context.Context) error) {
	filtered := pipeline.FilterEvents(events, filter)
	changed := pipeline.NewChecksumFilter().Run(filtered)

	for batch := range pipeline.Debounce(clock, changed, delay) {
		if ctx.Err() != nil {
			continue
		}

		logger.Log.Info("source changed, syncing",
			zap.Int("paths", len(batch)),
			zap.String("first", batch[0].Path))

		if err := sync(ctx); err != nil {
			logger.Log.Warn("sync after change failed", zap.Error(err))
		}
	}
}
