package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/provider"
)

// tokenInput is the JSON shape accepted by "accounts add --token-file".
type tokenInput struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expiry       string `json:"expiry"` // RFC3339, optional
}

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage connected storage accounts",
	}

	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsAddCmd())
	cmd.AddCommand(newAccountsRemoveCmd())

	return cmd
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected accounts",
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

			accounts, err := a.store.ListAccounts(cmd.Context(), userID)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(accounts)
			}

			rows := make([][]string, 0, len(accounts))
			for _, acc := range accounts {
				active := "yes"
				if !acc.Active {
					active = "no"
				}

				rows = append(rows, []string{
					strconv.FormatInt(acc.ID, 10),
					acc.Provider,
					acc.AccountEmail,
					string(acc.Mode),
					active,
					formatNanoPtr(acc.LastSync),
					formatSize(acc.StorageUsed),
				})
			}

			printTable(os.Stdout, []string{"ID", "PROVIDER", "EMAIL", "MODE", "ACTIVE", "LAST SYNC", "USED"}, rows)

			return nil
		},
	}
}

func newAccountsAddCmd() *cobra.Command {
	var (
		providerID string
		email      string
		name       string
		mode       string
		tokenFile  string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Connect a storage account",
		Long:  "Connect a storage account from an OAuth token pair.\nThe token file is JSON with access_token, refresh_token, and an optional\nRFC3339 expiry. Pass \"-\" to read it from stdin.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !provider.Known(providerID) {
				return fmt.Errorf("unknown provider %q", providerID)
			}

			accessMode := catalog.AccessMode(mode)
			if !accessMode.Valid() {
				return fmt.Errorf("invalid mode %q (want metadata or full_access)", mode)
			}

			creds, err := readTokenFile(tokenFile)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			box, err := a.secretsBox()
			if err != nil {
				return err
			}

			plain, err := creds.Encode()
			if err != nil {
				return err
			}

			sealed, err := box.Seal(plain)
			if err != nil {
				return err
			}

			userID, err := currentUserID(cmd, a)
			if err != nil {
				return err
			}

			account := &catalog.StorageAccount{
				UserID:       userID,
				Provider:     providerID,
				Mode:         accessMode,
				AccountEmail: email,
				AccountName:  name,
				Credentials:  sealed,
				Active:       true,
			}

			if !creds.Expiry.IsZero() {
				account.TokenExpiry = catalog.Int64Ptr(creds.Expiry.UnixNano())
			}

			if err := a.store.CreateAccount(cmd.Context(), account); err != nil {
				return err
			}

			statusf("Connected %s account %s (id %d, mode %s)\n", providerID, email, account.ID, mode)

			return nil
		},
	}

	cmd.Flags().StringVar(&providerID, "provider", "", "provider id (google_drive, dropbox, onedrive)")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&mode, "mode", string(catalog.ModeMetadata), "access mode (metadata or full_access)")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "path to OAuth token JSON, \"-\" for stdin")

	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("token-file")

	return cmd
}

func newAccountsRemoveCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Disconnect a storage account",
		Long:  "Disconnect a storage account. By default the account is deactivated\nand its file records kept; --purge deletes the account row entirely.",
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

			if purge {
				err = a.store.DeleteAccount(cmd.Context(), id)
			} else {
				err = a.store.DeactivateAccount(cmd.Context(), id)
			}

			if err != nil {
				return err
			}

			statusf("Removed account %d\n", id)

			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "delete the account row instead of deactivating it")

	return cmd
}

// readTokenFile parses the token JSON from a path or stdin.
func readTokenFile(path string) (provider.Credentials, error) {
	var (
		raw []byte
		err error
	)

	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}

	if err != nil {
		return provider.Credentials{}, fmt.Errorf("reading token file: %w", err)
	}

	var in tokenInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return provider.Credentials{}, fmt.Errorf("parsing token file: %w", err)
	}

	if in.AccessToken == "" {
		return provider.Credentials{}, fmt.Errorf("token file has no access_token")
	}

	creds := provider.Credentials{
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
	}

	if in.Expiry != "" {
		expiry, err := time.Parse(time.RFC3339, in.Expiry)
		if err != nil {
			return provider.Credentials{}, fmt.Errorf("parsing token expiry: %w", err)
		}

		creds.Expiry = expiry
	}

	return creds, nil
}
