package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state, cursors, and pending changes",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

type entityStatus struct {
	EntityType string `json:"entity_type"`
	LastSync   string `json:"last_sync"`
	Pending    int    `json:"pending"`
}

type statusReport struct {
	SignedIn bool           `json:"signed_in"`
	Account  string         `json:"account,omitempty"`
	Entities []entityStatus `json:"entities"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(resolvedCfg)

	a, err := newApp(resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	report := statusReport{}

	if identity, ok := a.provider.CurrentUser(); ok {
		report.SignedIn = true
		report.Account = identityLabel(identity)
	}

	pending, err := a.store.CountPendingChanges(ctx)
	if err != nil {
		return fmt.Errorf("counting pending changes: %w", err)
	}

	for _, entityType := range entityOrder {
		cursor, err := a.store.GetSyncCursor(ctx, entityType)
		if err != nil {
			return fmt.Errorf("reading %s cursor: %w", entityType, err)
		}

		report.Entities = append(report.Entities, entityStatus{
			EntityType: entityType,
			LastSync:   formatCursor(cursor),
			Pending:    pending[entityType],
		})
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	printStatusReport(report)

	return nil
}

func printStatusReport(report statusReport) {
	if report.SignedIn {
		fmt.Printf("Account: %s\n\n", report.Account)
	} else {
		fmt.Print("Not signed in. Local changes are kept until you run 'habistat login'.\n\n")
	}

	rows := make([][]string, 0, len(report.Entities))
	for _, e := range report.Entities {
		rows = append(rows, []string{e.EntityType, e.LastSync, fmt.Sprintf("%d", e.Pending)})
	}

	printTable(os.Stdout, []string{"ENTITY", "LAST SYNC", "PENDING"}, rows)
}

// formatCursor renders a sync cursor for display. Zero means the type has
// never synced on this device.
func formatCursor(cursorMs int64) string {
	if cursorMs == 0 {
		return "never"
	}

	return formatTime(time.UnixMilli(cursorMs))
}
