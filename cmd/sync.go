package cmd

import (
	"context"
	"errors"
	"fmt"

	"reposync/internal/daemon"

	"github.com/spf13/cobra"
)

// operationCmd runs an operation on the daemon when one is listening and
// in-process otherwise.
func operationCmd(use, short, path string, op func(orch *daemon.Orchestrator, ctx context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemonRunning() {
				var status daemonStatus
				err := daemonPost(path, &status)
				if errors.Is(err, errSyncInFlight) {
					fmt.Println(err)
					return nil
				}
				if err != nil {
					return err
				}

				printStatus(status.StatusSnapshot)
				return nil
			}

			ctx := cmd.Context()
			return withOrchestrator(ctx, func(orch *daemon.Orchestrator) error {
				if err := op(orch, ctx); err != nil {
					return err
				}

				snap, err := orch.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(snap)
				return nil
			})
		},
	}
}

var (
	syncCmd = operationCmd("sync", "Pull remote changes, then push local ones", "/sync",
		(*daemon.Orchestrator).Sync)
	pushCmd = operationCmd("push", "Publish local changes to the remote", "/push",
		(*daemon.Orchestrator).Push)
	pullCmd = operationCmd("pull", "Bring remote changes into the source directory", "/pull",
		(*daemon.Orchestrator).Pull)
)

func init() {
	rootCmd.AddCommand(syncCmd, pushCmd, pullCmd)
}
