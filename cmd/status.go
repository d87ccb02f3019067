package cmd

import (
	"errors"
	"fmt"
	"time"

	"reposync/internal/daemon"
	"reposync/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusDetail bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if daemonRunning() {
			return daemonStatusReport()
		}

		ctx := cmd.Context()
		return withOrchestrator(ctx, func(orch *daemon.Orchestrator) error {
			snap, err := orch.Status(ctx)
			if err != nil {
				return err
			}
			printStatus(snap)

			if !statusDetail {
				return nil
			}

			detail, err := orch.DetailedStatus(ctx)
			if err != nil {
				return err
			}
			printDetail(detail)
			return nil
		})
	},
}

func daemonStatusReport() error {
	var status daemonStatus
	if err := daemonGet("/status", &status); err != nil {
		return err
	}
	printStatus(status.StatusSnapshot)
	if status.Syncing {
		fmt.Println("  a sync is in progress")
	}

	if statusDetail {
		var detail model.DetailedStatus
		if err := daemonGet("/status/detail", &detail); err != nil && !errors.Is(err, errSyncInFlight) {
			return err
		}
		printDetail(detail)
	}

	if len(status.Logs) > 0 {
		fmt.Println("recent:")
		for _, l := range status.Logs {
			fmt.Printf("  %s %-7s %s\n", l.At.Format("15:04:05"), l.Level, l.Message)
		}
	}

	return nil
}

func printStatus(snap model.StatusSnapshot) {
	lastSync := "never"
	if snap.LastSyncAt != nil {
		lastSync = humanize.Time(*snap.LastSyncAt)
	}

	fmt.Printf("%-8s %s\n", snap.Status, snap.RepositoryID)
	fmt.Printf("  pending changes: %d\n", snap.PendingChangeCount)
	fmt.Printf("  last sync:       %s\n", lastSync)
	if snap.AutoSync {
		fmt.Printf("  next sync in:    %s\n", time.Duration(snap.NextSyncIn)*time.Second)
	}
}

func printDetail(detail model.DetailedStatus) {
	fmt.Printf("  ahead %d, behind %d\n", detail.CommitsAhead, detail.CommitsBehind)
	for _, p := range detail.ChangedPaths {
		fmt.Printf("    %s\n", p)
	}
	if more := detail.TotalChangedCount - len(detail.ChangedPaths); more > 0 {
		fmt.Printf("    ... and %d more\n", more)
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusDetail, "detail", false, "include ahead/behind counts and changed paths")
	rootCmd.AddCommand(statusCmd)
}
