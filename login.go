package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/habistat/habistat-go/internal/api"
	"github.com/habistat/habistat-go/internal/auth"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with a device code",
		Long: `Sign in to the sync service using the OAuth2 device flow.

After sign-in, any data created before signing in is migrated to the new
account and a full sync runs.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(resolvedCfg)

	a, err := newApp(resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	identity, err := a.provider.Login(ctx, func(da auth.DeviceAuth) {
		statusf("To sign in, visit:\n\n    %s\n\nand enter code: %s\n\n", da.VerificationURI, da.UserCode)
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	statusf("Signed in as %s\n", identityLabel(identity))

	if err := postLoginSync(ctx, a, identity); err != nil {
		// Signed in but not synced; the next sync or watch picks it up.
		logger.Warn("post-login sync incomplete", "error", err)
		statusf("Sign-in complete, but the first sync did not finish: %v\n", err)

		return nil
	}

	statusf("Initial sync complete.\n")

	return nil
}

// postLoginSync runs the sign-in sequence: register the user with the
// service, claim any anonymous local data, then run a full sync. The
// same sequence runs in the watch daemon via the auth bridge; here it is
// invoked directly because no bridge is listening.
func postLoginSync(ctx context.Context, a *app, identity *auth.Identity) error {
	if err := a.client.EnsureUser(ctx, api.User{
		ID:          identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
	}); err != nil {
		return fmt.Errorf("registering user: %w", err)
	}

	report, err := a.migrator.Migrate(ctx, identity.UserID)
	if err != nil {
		return err
	}

	if report.Total() > 0 {
		statusf("Migrated %d local records to your account.\n", report.Total())
	}

	return a.orchestrator.FullSync(ctx)
}

func identityLabel(identity *auth.Identity) string {
	if identity.Email != "" {
		return identity.Email
	}

	if identity.DisplayName != "" {
		return identity.DisplayName
	}

	return identity.UserID
}
