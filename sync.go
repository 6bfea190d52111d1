package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oneclouds/oneclouds/internal/catalog"
)

func newSyncCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "sync [account-id]",
		Short: "Reconcile remote listings into the catalog",
		Long:  "Reconcile one account's remote listing into the catalog, or all\nactive accounts with --all. At most one sync runs per account at a time.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass exactly one of an account id or --all")
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			orch, err := a.orchestrator(nil)
			if err != nil {
				return err
			}

			if all {
				return orch.RunAll(cmd.Context())
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}

			account, err := a.store.GetAccount(cmd.Context(), id)
			if err != nil {
				return err
			}

			run, err := orch.SyncAccount(cmd.Context(), account)
			if err != nil {
				return err
			}

			return printRun(run)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "sync every active account")

	return cmd
}

func printRun(run *catalog.SyncRun) error {
	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(run)
	}

	statusf("Sync %s: %s\n", run.ID, run.Status)
	statusf("  processed:   %d\n", run.FilesProcessed)
	statusf("  added:       %d\n", run.FilesAdded)
	statusf("  updated:     %d\n", run.FilesUpdated)
	statusf("  deactivated: %d\n", run.FilesDeactivated)

	return nil
}
