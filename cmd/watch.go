package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reposync/internal/daemon"
	"reposync/internal/logger"
	"reposync/internal/pipeline"
	"reposync/internal/repository"
	"reposync/internal/watcher"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var watchNoAuto bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync daemon",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) (err error) {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reporter := daemon.NewReporter(100)
	orch, filter, err := newOrchestrator(ctx, reporter)
	if err != nil {
		return err
	}

	var stop shutdown
	defer func() {
		err = multierr.Append(err, stop.run(5*time.Second))
	}()
	stop.add(func(context.Context) error { return orch.Close() })

	srv := daemon.NewServer(ctx, orch, reporter, repository.NewHistoryRepository(), cfg.DaemonPort)
	srv.Start()
	stop.add(srv.Stop)

	if !watchNoAuto {
		if err := orch.StartAutoSync(ctx); err != nil {
			return err
		}
	}

	if cfg.SyncOnChange {
		if err := watchSource(ctx, &stop, orch, filter); err != nil {
			return err
		}
	}

	logger.Log.Info("reposync daemon started",
		zap.String("source", cfg.SourceDir),
		zap.Int("port", cfg.DaemonPort),
		zap.Bool("auto_sync", !watchNoAuto),
		zap.Bool("sync_on_change", cfg.SyncOnChange))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	return nil
}

// watchSource syncs after changes in the source directory settle.
func watchSource(ctx context.Context, stop *shutdown, orch *daemon.Orchestrator, filter *pipeline.Filter) error {
	w, err := watcher.New(256, watcher.WithSkipDir(filter.SkipDir))
	if err != nil {
		return err
	}
	if err := w.Watch(cfg.SourceDir); err != nil {
		_ = w.Stop()
		return err
	}

	triggerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		daemon.SyncOnChange(triggerCtx, clockwork.NewRealClock(), w.Events(), filter, daemon.DefaultSettleDelay, orch.Sync)
	}()

	stop.add(func(context.Context) error {
		cancel()
		err := w.Stop()
		<-done
		return err
	})
	return nil
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoAuto, "no-auto", false, "do not start the auto-sync countdown")
	rootCmd.AddCommand(watchCmd)
}
