package cmd

import (
	"fmt"

	"reposync/internal/model"
	"reposync/internal/repository"

	"github.com/spf13/cobra"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := repository.NewHistoryRepository()

		histories, err := repo.GetRecent(historyN)
		if err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			mark := "✓"
			if h.Status == model.StatusError {
				mark = "✗"
			}

			recovered := ""
			if h.Recovered {
				recovered = " (recovered)"
			}

			fmt.Printf("%s [%s] %-4s %s%s\n",
				mark,
				h.StartedAt.Format("2006-01-02 15:04:05"),
				h.Operation,
				h.Message,
				recovered,
			)
		}

		stats, err := repo.GetStats()
		if err != nil {
			return err
		}
		fmt.Printf("\n%d operations: %d succeeded, %d failed, %d recovered\n",
			stats.Total, stats.Succeeded, stats.Failed, stats.Recovered)

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyN, "number", "n", 20, "number of history entries to show")
	rootCmd.AddCommand(historyCmd)
}
