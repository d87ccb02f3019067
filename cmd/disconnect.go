package cmd

import (
	"fmt"

	"reposync/internal/daemon"

	"github.com/spf13/cobra"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Remove the working copy; the source directory is kept",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if daemonRunning() {
			if err := daemonPost("/disconnect", nil); err != nil {
				return err
			}
		} else {
			err := withOrchestrator(cmd.Context(), func(orch *daemon.Orchestrator) error {
				return orch.Disconnect()
			})
			if err != nil {
				return err
			}
		}

		fmt.Printf("disconnected, %s removed\n", cfg.WorkDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}
