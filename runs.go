package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs <account-id>",
		Short: "Show recent sync runs for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			runs, err := a.store.ListRuns(cmd.Context(), id, limit)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(runs)
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					string(r.Status),
					formatNano(r.StartedAt),
					formatNanoPtr(r.CompletedAt),
					strconv.Itoa(r.FilesProcessed),
					strconv.Itoa(r.FilesAdded),
					strconv.Itoa(r.FilesUpdated),
					strconv.Itoa(r.FilesDeactivated),
				})
			}

			printTable(os.Stdout, []string{"RUN", "STATUS", "STARTED", "COMPLETED", "PROC", "ADD", "UPD", "DEACT"}, rows)

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")

	return cmd
}
