package main

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oneclouds/oneclouds/internal/config"
)

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Query the file catalog",
	}

	cmd.AddCommand(newFilesLargeCmd())

	return cmd
}

func newFilesLargeCmd() *cobra.Command {
	var (
		minSize string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "large",
		Short: "List the largest cataloged files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			minBytes, err := config.ParseSize(minSize)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			userID, err := currentUserID(cmd, a)
			if err != nil {
				return err
			}

			files, err := a.store.ListLargeFiles(cmd.Context(), userID, minBytes, limit)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(files)
			}

			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{
					strconv.FormatInt(f.ID, 10),
					formatSizePtr(f.Size),
					strconv.FormatInt(f.AccountID, 10),
					f.MimeType,
					f.Name,
				})
			}

			printTable(os.Stdout, []string{"ID", "SIZE", "ACCOUNT", "MIME", "NAME"}, rows)

			return nil
		},
	}

	cmd.Flags().StringVar(&minSize, "min-size", "100MB", "minimum file size")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")

	return cmd
}
