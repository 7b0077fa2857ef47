package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/habistat/habistat-go/internal/store"
	"github.com/habistat/habistat-go/internal/sync"
)

func newSyncCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full sync cycle",
		Long: `Synchronize local data with the service once and exit.

Entity types sync in dependency order: calendars, habits, activity days,
completions. Use 'habistat watch' for continuous background sync.

With --full, sync cursors are reset so everything is re-pulled from the
service; records deleted on another device are removed locally, while
local changes not yet pushed are kept and uploaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, full)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "re-sync from zero, removing records deleted on the server")

	return cmd
}

func runSync(cmd *cobra.Command, full bool) error {
	logger := buildLogger(resolvedCfg)

	a, err := newApp(resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := shutdownContext(cmd.Context(), logger, nil)

	if full {
		if err := sync.ResetForFullSync(ctx, a.store, entityOrder); err != nil {
			return fmt.Errorf("resetting sync cursors: %w", err)
		}
	}

	err = a.orchestrator.FullSync(ctx)

	switch {
	case errors.Is(err, sync.ErrAuthNotReady):
		return errors.New("not signed in; run 'habistat login' first")
	case errors.Is(err, sync.ErrNetworkUnavailable):
		return errors.New("sync service unreachable; try again when online")
	case errors.Is(err, sync.ErrSyncWaitTimeout):
		return errors.New("sync is taking longer than expected; check 'habistat status' later")
	case err != nil:
		return err
	}

	status := a.orchestrator.Status()

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(syncReport(status))
	}

	printSyncReport(status)

	if status.State == sync.StateError {
		return fmt.Errorf("sync incomplete: %s", status.LastError)
	}

	return nil
}

// entityOrder lists entity types in display (and sync) order.
var entityOrder = []string{
	store.EntityCalendars,
	store.EntityHabits,
	store.EntityActivity,
	store.EntityCompletions,
}

type entityReport struct {
	EntityType string   `json:"entity_type"`
	Status     string   `json:"status"`
	Pulled     int      `json:"pulled"`
	Pushed     int      `json:"pushed"`
	Skipped    int      `json:"skipped,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
}

func syncReport(status sync.Status) map[string]any {
	reports := make([]entityReport, 0, len(status.LastCycle))

	for _, entityType := range orderedEntityTypes(status.LastCycle) {
		res := status.LastCycle[entityType]
		reports = append(reports, entityReport{
			EntityType: entityType,
			Status:     res.Status.String(),
			Pulled:     res.Pulled,
			Pushed:     res.Pushed,
			Skipped:    res.Skipped,
			Reasons:    res.Reasons,
		})
	}

	return map[string]any{
		"state":    status.State.String(),
		"entities": reports,
	}
}

func printSyncReport(status sync.Status) {
	rows := make([][]string, 0, len(status.LastCycle))

	for _, entityType := range orderedEntityTypes(status.LastCycle) {
		res := status.LastCycle[entityType]
		rows = append(rows, []string{
			entityType,
			res.Status.String(),
			fmt.Sprintf("%d", res.Pulled),
			fmt.Sprintf("%d", res.Pushed),
			fmt.Sprintf("%d", res.Skipped),
		})
	}

	printTable(os.Stdout, []string{"ENTITY", "STATUS", "PULLED", "PUSHED", "SKIPPED"}, rows)
}

// orderedEntityTypes returns the cycle's entity types in dependency order,
// with any unknown types appended alphabetically.
func orderedEntityTypes(cycle map[string]sync.Result) []string {
	ordered := make([]string, 0, len(cycle))

	for _, entityType := range entityOrder {
		if _, ok := cycle[entityType]; ok {
			ordered = append(ordered, entityType)
		}
	}

	var extra []string

	for entityType := range cycle {
		known := false

		for _, k := range entityOrder {
			if k == entityType {
				known = true
				break
			}
		}

		if !known {
			extra = append(extra, entityType)
		}
	}

	sort.Strings(extra)

	return append(ordered, extra...)
}
