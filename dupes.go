package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/config"
	"github.com/oneclouds/oneclouds/internal/provider"
	"github.com/oneclouds/oneclouds/internal/sync"
)

func newDupesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dupes",
		Short: "Find and remove duplicate files across accounts",
	}

	cmd.AddCommand(newDupesListCmd())
	cmd.AddCommand(newDupesRmCmd())

	return cmd
}

func newDupesListCmd() *cobra.Command {
	var (
		minSize string
		mode    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List duplicate groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			groups, err := detectDupes(cmd, a, minSize, mode)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(groups)
			}

			if len(groups) == 0 {
				statusf("No duplicates found.\n")
				return nil
			}

			var wasted int64

			for _, g := range groups {
				wasted += g.WastedSize

				fmt.Printf("%s (%s, %s wasted)\n", g.Key, g.Tier, formatSize(g.WastedSize))

				for _, f := range g.Files {
					fmt.Printf("  %8d  %-10s  account %d  %s\n", f.ID, formatSizePtr(f.Size), f.AccountID, f.Name)
				}
			}

			statusf("\n%d groups, %s reclaimable\n", len(groups), formatSize(wasted))

			return nil
		},
	}

	cmd.Flags().StringVar(&minSize, "min-size", "", "minimum file size, e.g. 1MB (default from config)")
	cmd.Flags().StringVar(&mode, "mode", "", "restrict to accounts in one access mode")

	return cmd
}

func newDupesRmCmd() *cobra.Command {
	var (
		minSize string
		keep    int64
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "rm <group-key>",
		Short: "Delete all but one member of a duplicate group",
		Long:  "Delete every member of a duplicate group except the file named by\n--keep, remotely and from the catalog. Every affected account must be\nconnected in full_access mode.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			groups, err := detectDupes(cmd, a, minSize, "")
			if err != nil {
				return err
			}

			group := findGroup(groups, args[0])
			if group == nil {
				return fmt.Errorf("no duplicate group with key %q", args[0])
			}

			doomed, err := checkRemoval(cmd, a, group, keep)
			if err != nil {
				return err
			}

			if dryRun {
				for _, f := range doomed {
					statusf("Would delete %s (id %d, account %d)\n", f.Name, f.ID, f.AccountID)
				}

				return nil
			}

			return removeFiles(cmd, a, doomed)
		},
	}

	cmd.Flags().StringVar(&minSize, "min-size", "", "minimum file size used when matching the group")
	cmd.Flags().Int64Var(&keep, "keep", 0, "file record id to keep")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")

	_ = cmd.MarkFlagRequired("keep")

	return cmd
}

func detectDupes(cmd *cobra.Command, a *app, minSize, mode string) ([]sync.DuplicateGroup, error) {
	if mode != "" && !catalog.AccessMode(mode).Valid() {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}

	if minSize == "" {
		minSize = a.cfg.Dedupe.MinSize
	}

	minBytes, err := config.ParseSize(minSize)
	if err != nil {
		return nil, err
	}

	userID, err := currentUserID(cmd, a)
	if err != nil {
		return nil, err
	}

	detector := sync.NewDuplicateDetector(a.store, a.logger)

	return detector.Detect(cmd.Context(), userID, sync.DetectOptions{
		Mode:    catalog.AccessMode(mode),
		MinSize: minBytes,
	})
}

func findGroup(groups []sync.DuplicateGroup, key string) *sync.DuplicateGroup {
	for i := range groups {
		if groups[i].Key == key {
			return &groups[i]
		}
	}

	return nil
}

// checkRemoval validates the keeper is a group member and that every file to
// be deleted lives on a full_access account. Returns the members to delete.
func checkRemoval(cmd *cobra.Command, a *app, group *sync.DuplicateGroup, keep int64) ([]*catalog.FileRecord, error) {
	var doomed []*catalog.FileRecord

	kept := false

	for _, f := range group.Files {
		if f.ID == keep {
			kept = true
			continue
		}

		doomed = append(doomed, f)
	}

	if !kept {
		return nil, fmt.Errorf("file %d is not a member of group %q", keep, group.Key)
	}

	for _, f := range doomed {
		account, err := a.store.GetAccount(cmd.Context(), f.AccountID)
		if err != nil {
			return nil, err
		}

		if account.Mode != catalog.ModeFullAccess {
			return nil, fmt.Errorf("account %d (%s) is connected in %s mode; deletion needs full_access",
				account.ID, account.Provider, account.Mode)
		}
	}

	return doomed, nil
}

// removeFiles deletes the records remotely and from the catalog, grouping
// gateway construction per account.
func removeFiles(cmd *cobra.Command, a *app, doomed []*catalog.FileRecord) error {
	box, err := a.secretsBox()
	if err != nil {
		return err
	}

	builder := &gatewayBuilder{cfg: a.cfg, box: box, logger: a.logger}
	coord := provider.NewCoordinator(&sealedSaver{store: a.store, box: box}, a.logger)

	gateways := make(map[int64]provider.Gateway)

	for _, f := range doomed {
		gw, ok := gateways[f.AccountID]
		if !ok {
			account, err := a.store.GetAccount(cmd.Context(), f.AccountID)
			if err != nil {
				return err
			}

			gw, err = builder.BuildGateway(cmd.Context(), account)
			if err != nil {
				return err
			}

			gateways[f.AccountID] = gw
		}

		err := coord.Call(cmd.Context(), f.AccountID, gw, func(ctx context.Context) error {
			return gw.DeleteFile(ctx, f.ProviderFileID)
		})
		if err != nil {
			return fmt.Errorf("deleting %s remotely: %w", f.Name, err)
		}

		if err := a.store.DeleteFile(cmd.Context(), f.ID); err != nil {
			return fmt.Errorf("removing %s from catalog: %w", f.Name, err)
		}

		statusf("Deleted %s (id %d, account %d)\n", f.Name, f.ID, f.AccountID)
	}

	return nil
}
