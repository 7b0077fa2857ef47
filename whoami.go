package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runWhoami(*cobra.Command, []string) error {
	logger := buildLogger(resolvedCfg)

	a, err := newApp(resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, ok := a.provider.CurrentUser()
	if !ok {
		if flagJSON {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"signed_in": false})
		}

		fmt.Println("Not signed in.")

		return nil
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"signed_in":    true,
			"user_id":      identity.UserID,
			"email":        identity.Email,
			"display_name": identity.DisplayName,
		})
	}

	fmt.Printf("Signed in as %s (%s)\n", identityLabel(identity), identity.UserID)

	return nil
}
