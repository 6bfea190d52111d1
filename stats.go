package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			userID, err := currentUserID(cmd, a)
			if err != nil {
				return err
			}

			stats, err := a.store.Stats(cmd.Context(), userID)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(stats)
			}

			fmt.Printf("Accounts:       %d\n", stats.AccountCount)
			fmt.Printf("Files:          %d\n", stats.TotalFiles)
			fmt.Printf("Folders:        %d\n", stats.TotalFolders)
			fmt.Printf("Inactive files: %d\n", stats.InactiveFiles)
			fmt.Printf("Total size:     %s\n", formatSize(stats.TotalSize))

			return nil
		},
	}
}
