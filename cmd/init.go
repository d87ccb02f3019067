package cmd

import (
	"errors"
	"fmt"

	"reposync/internal/daemon"

	"github.com/spf13/cobra"
)

var (
	initRemote string
	initSource string
	initWork   string
	initBranch string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bind a source directory to a git remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		if initRemote != "" {
			cfg.RemoteURL = initRemote
		}
		if initSource != "" {
			cfg.SourceDir = initSource
		}
		if initWork != "" {
			cfg.WorkDir = initWork
		}
		if initBranch != "" {
			cfg.Branch = initBranch
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return err
		}

		if daemonRunning() {
			return errors.New("config saved; restart the daemon to pick it up")
		}

		return withOrchestrator(cmd.Context(), func(orch *daemon.Orchestrator) error {
			snap, err := orch.Status(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("initialized %s\n", snap.RepositoryID)
			fmt.Printf("  source:  %s\n", cfg.SourceDir)
			fmt.Printf("  mirror:  %s\n", cfg.WorkDir)
			fmt.Printf("  pending: %d change(s), run `reposync sync` to publish\n", snap.PendingChangeCount)
			return nil
		})
	},
}

func init() {
	initCmd.Flags().StringVar(&initRemote, "remote", "", "git remote URL")
	initCmd.Flags().StringVar(&initSource, "source", "", "directory to mirror")
	initCmd.Flags().StringVar(&initWork, "work", "", "working copy directory (default ~/.reposync/mirror)")
	initCmd.Flags().StringVar(&initBranch, "branch", "", "branch to track")
	rootCmd.AddCommand(initCmd)
}
