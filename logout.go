package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove synced data from this device",
		Long: `Sign out of the sync service.

The saved token and all records belonging to the signed-out account are
removed from this device, along with sync cursors and id mappings. Data
on the server is untouched.`,
		Args: cobra.NoArgs,
		RunE: runLogout,
	}
}

func runLogout(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(resolvedCfg)

	a, err := newApp(resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, ok := a.provider.CurrentUser()
	if !ok {
		statusf("Not signed in.\n")
		return nil
	}

	if err := a.provider.Logout(); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	if err := a.store.ClearOwnedRecords(cmd.Context(), identity.UserID); err != nil {
		return fmt.Errorf("removing local data: %w", err)
	}

	statusf("Signed out %s and removed synced data from this device.\n", identityLabel(identity))

	return nil
}
